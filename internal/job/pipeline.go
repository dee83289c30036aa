// Package job implements the bounded scan pool and the per-job analysis
// pipeline.
package job

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rankly-scanner/internal/adapter"
	"github.com/rankly-scanner/internal/errors"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/prompts"
	"github.com/rankly-scanner/internal/retry"
	"github.com/rankly-scanner/internal/storage"
	"github.com/rankly-scanner/internal/types"
)

// JobStore is the job persistence surface the pipeline and pool consume
type JobStore interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
	GetByID(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	Update(ctx context.Context, job *models.AnalysisJob) error
	UpdateProgress(ctx context.Context, jobID string, status types.JobStatus, step string, percent int, message string) error
	FindPending(ctx context.Context, limit int) ([]*models.AnalysisJob, error)
	FindInProgress(ctx context.Context) ([]*models.AnalysisJob, error)
	CountPending(ctx context.Context) (int, error)
	CountByStatusSince(ctx context.Context, status types.JobStatus, since time.Time) (int, error)
}

// BusinessConfirmer records scan completion on the business row
type BusinessConfirmer interface {
	ConfirmScanCompleted(ctx context.Context, businessID string, completedAt time.Time) error
}

// RankingWriter persists per-prompt engine results
type RankingWriter interface {
	BatchInsert(ctx context.Context, records []*models.RankingRecord) error
}

// Extractor pulls business metadata off a website
type Extractor interface {
	Extract(ctx context.Context, websiteURL string) (*adapter.SiteMetadata, error)
}

// ProgressSink receives live progress snapshots. Optional: a nil sink
// disables progress caching, progress still lands in the job store.
type ProgressSink interface {
	SetJobProgress(ctx context.Context, progress *storage.JobProgress) error
}

// ScanPipeline runs a single analysis job through its stages:
// prompt-forming, model-analysis, processing.
type ScanPipeline struct {
	jobs       JobStore
	businesses BusinessConfirmer
	rankings   RankingWriter
	providers  []adapter.AIProvider
	extractor  Extractor
	strategy   prompts.Strategy
	progress   ProgressSink
}

// NewScanPipeline creates a new scan pipeline
func NewScanPipeline(
	jobs JobStore,
	businesses BusinessConfirmer,
	rankings RankingWriter,
	providers []adapter.AIProvider,
	extractor Extractor,
	strategy prompts.Strategy,
	progress ProgressSink,
) *ScanPipeline {
	return &ScanPipeline{
		jobs:       jobs,
		businesses: businesses,
		rankings:   rankings,
		providers:  providers,
		extractor:  extractor,
		strategy:   strategy,
		progress:   progress,
	}
}

// Execute runs the job to completion. Any returned error has already been
// classified; the caller decides retry vs permanent via errors.IsRetryable.
// Execute does not write failure status itself, that is the pool's job.
func (p *ScanPipeline) Execute(ctx context.Context, job *models.AnalysisJob) error {
	// Stage 1: prompt-forming
	if err := p.formPrompts(ctx, job); err != nil {
		return err
	}

	// Stage 2: model-analysis
	results, err := p.queryEngines(ctx, job)
	if err != nil {
		return err
	}

	// Stage 3: processing. The pool writes the terminal completed status
	// once Execute returns nil.
	if err := p.processResults(ctx, job, results); err != nil {
		return err
	}

	p.reportProgress(ctx, job.ID, types.JobStatusCompleted, "done", 100, "Scan completed")
	return nil
}

// formPrompts fills in the business payload (extracting from the website
// when the job carries no manual data) and finalizes the prompt list.
func (p *ScanPipeline) formPrompts(ctx context.Context, job *models.AnalysisJob) error {
	p.reportProgress(ctx, job.ID, types.JobStatusPromptForming, "prompt-forming", 10, "Preparing prompts")
	if err := p.jobs.UpdateProgress(ctx, job.ID, types.JobStatusPromptForming, "prompt-forming", 10, "Preparing prompts"); err != nil {
		return errors.NewDatabaseError("update job progress", err)
	}

	if !job.ManualData && job.BusinessName == "" {
		meta, err := p.extractor.Extract(ctx, job.WebsiteURL)
		if err != nil {
			return err
		}
		job.BusinessName = meta.Title
		job.Description = meta.Description
		if len(job.Keywords) == 0 {
			job.Keywords = meta.Keywords
		}
		if err := p.jobs.Update(ctx, job); err != nil {
			return errors.NewDatabaseError("update job payload", err)
		}
	}

	if len(job.Prompts) == 0 {
		job.Prompts = p.strategy.Generate(prompts.BusinessInput{
			Name:        job.BusinessName,
			Industry:    job.Industry,
			Location:    job.Location,
			Description: job.Description,
			Keywords:    job.Keywords,
		})
		if err := p.jobs.Update(ctx, job); err != nil {
			return errors.NewDatabaseError("update job prompts", err)
		}
	}

	if len(job.Prompts) == 0 {
		return errors.NewInvalidParameterError("prompts", "no prompts could be generated for the job")
	}
	return nil
}

// queryEngines runs every prompt against every configured engine. Partial
// engine failures are tolerated; the stage fails only when no query at all
// produced a result.
func (p *ScanPipeline) queryEngines(ctx context.Context, job *models.AnalysisJob) ([]*types.RankedResult, error) {
	p.reportProgress(ctx, job.ID, types.JobStatusModelAnalysis, "model-analysis", 35, "Querying AI engines")
	if err := p.jobs.UpdateProgress(ctx, job.ID, types.JobStatusModelAnalysis, "model-analysis", 35, "Querying AI engines"); err != nil {
		return nil, errors.NewDatabaseError("update job progress", err)
	}

	total := len(job.Prompts) * len(p.providers)
	results := make([]*types.RankedResult, 0, total)
	var lastErr error
	done := 0

	for _, provider := range p.providers {
		for _, prompt := range job.Prompts {
			select {
			case <-ctx.Done():
				return nil, errors.NewInternalError("scan cancelled", ctx.Err())
			default:
			}

			answer, err := provider.Query(ctx, prompt)
			done++
			if err != nil {
				log.Printf("[Pipeline] Engine %s failed for job %s: %v", provider.Name(), job.ID, err)
				lastErr = err
				continue
			}

			result := analyzeAnswer(job.BusinessName, job.WebsiteURL, prompt, provider.Name(), answer)
			results = append(results, result)

			// Spread the 35..80 band across the query batch
			percent := 35 + (45*done)/total
			p.reportProgress(ctx, job.ID, types.JobStatusModelAnalysis, "model-analysis", percent,
				fmt.Sprintf("Queried %d/%d", done, total))
		}
	}

	if len(results) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errors.NewInternalError("no engine results", nil)
	}
	return results, nil
}

// processResults scores visibility, persists ranking history and confirms
// the scan on the business record.
func (p *ScanPipeline) processResults(ctx context.Context, job *models.AnalysisJob, results []*types.RankedResult) error {
	p.reportProgress(ctx, job.ID, types.JobStatusProcessing, "processing", 85, "Persisting results")
	if err := p.jobs.UpdateProgress(ctx, job.ID, types.JobStatusProcessing, "processing", 85, "Persisting results"); err != nil {
		return errors.NewDatabaseError("update job progress", err)
	}

	score := VisibilityScore(results)
	businessID := ""
	if job.BusinessID != nil {
		businessID = *job.BusinessID
	}

	records := make([]*models.RankingRecord, 0, len(results))
	for _, r := range results {
		records = append(records, models.FromRankedResult(r, job.ID, businessID, score))
	}
	// Transient ClickHouse hiccups should not burn a job retry, so the
	// batch write gets its own short backoff.
	insertRetry := &retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
	result := retry.WithExponentialBackoff(ctx, insertRetry, func(ctx context.Context, attempt int) error {
		return p.rankings.BatchInsert(ctx, records)
	})
	if !result.Success {
		return errors.NewDatabaseError("insert ranking history", result.LastError)
	}

	if businessID != "" {
		if err := p.businesses.ConfirmScanCompleted(ctx, businessID, time.Now()); err != nil {
			return errors.NewDatabaseError("confirm scan", err)
		}
	}

	log.Printf("[Pipeline] Job %s scored %.1f across %d results", job.ID, score, len(results))
	return nil
}

// reportProgress pushes a snapshot into the progress cache. Cache failures
// are logged and swallowed, progress polling is best-effort.
func (p *ScanPipeline) reportProgress(ctx context.Context, jobID string, status types.JobStatus, step string, percent int, message string) {
	if p.progress == nil {
		return
	}
	err := p.progress.SetJobProgress(ctx, &storage.JobProgress{
		JobID:           jobID,
		Status:          status,
		CurrentStep:     step,
		ProgressPercent: percent,
		ProgressMessage: message,
		UpdatedAt:       time.Now(),
	})
	if err != nil {
		log.Printf("[Pipeline] Progress cache write failed for job %s: %v", jobID, err)
	}
}

// listItemRe matches numbered or bulleted list lines in an engine answer
var listItemRe = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)

// analyzeAnswer checks whether the business is mentioned in an engine answer
// and at which list position.
func analyzeAnswer(businessName, websiteURL, prompt string, engine types.AIEngine, answer string) *types.RankedResult {
	result := &types.RankedResult{
		Prompt:    prompt,
		Engine:    engine,
		QueriedAt: time.Now(),
	}

	needles := mentionNeedles(businessName, websiteURL)
	if len(needles) == 0 {
		return result
	}

	lowerAnswer := strings.ToLower(answer)
	for _, needle := range needles {
		if strings.Contains(lowerAnswer, needle) {
			result.Mentioned = true
			break
		}
	}
	if !result.Mentioned {
		return result
	}

	// Rank within the answer's list structure, if it has one
	itemNo := 0
	for _, line := range strings.Split(answer, "\n") {
		if !listItemRe.MatchString(line) {
			continue
		}
		itemNo++
		lowerLine := strings.ToLower(line)
		for _, needle := range needles {
			if strings.Contains(lowerLine, needle) {
				result.Position = itemNo
				result.Snippet = strings.TrimSpace(line)
				break
			}
		}
		if result.Position > 0 {
			break
		}
	}

	if result.Snippet == "" {
		result.Snippet = mentionSnippet(answer, needles)
	}
	return result
}

// mentionNeedles builds the lowercase substrings that count as a mention:
// the business name and the website's bare domain.
func mentionNeedles(businessName, websiteURL string) []string {
	var needles []string
	if name := strings.ToLower(strings.TrimSpace(businessName)); name != "" {
		needles = append(needles, name)
	}
	if domain := bareDomain(websiteURL); domain != "" {
		needles = append(needles, domain)
	}
	return needles
}

// bareDomain extracts "example.com" from a website URL
func bareDomain(websiteURL string) string {
	if websiteURL == "" {
		return ""
	}
	if !strings.Contains(websiteURL, "://") {
		websiteURL = "https://" + websiteURL
	}
	u, err := url.Parse(websiteURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

// mentionSnippet returns the first line containing a mention
func mentionSnippet(answer string, needles []string) string {
	for _, line := range strings.Split(answer, "\n") {
		lowerLine := strings.ToLower(line)
		for _, needle := range needles {
			if strings.Contains(lowerLine, needle) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// VisibilityScore aggregates ranked results into a 0-100 score. A mention
// at position k contributes 1/k of a full point; an unranked mention
// contributes half a point.
func VisibilityScore(results []*types.RankedResult) float64 {
	if len(results) == 0 {
		return 0
	}

	var total float64
	for _, r := range results {
		switch {
		case r.Position > 0:
			total += 1.0 / float64(r.Position)
		case r.Mentioned:
			total += 0.5
		}
	}
	return 100 * total / float64(len(results))
}
