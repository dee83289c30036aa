// Package scheduler decides which businesses are due for a recurring scan
// and enqueues analysis jobs for them.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/types"
)

// BusinessStore is the business persistence surface the scheduler consumes
type BusinessStore interface {
	FindDueForScan(ctx context.Context, now time.Time) ([]*models.Business, error)
	UpdateScanSchedule(ctx context.Context, businessID string, schedule models.ScanSchedule) error
}

// JobStore creates the analysis jobs the scheduler enqueues
type JobStore interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
}

// UserStore resolves the owning user for a business
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	FindFirstOrgMember(ctx context.Context, orgID string) (*models.User, error)
}

// InputHistoryStore returns the latest captured keyword/prompt set
type InputHistoryStore interface {
	LatestForBusiness(ctx context.Context, businessID string) (*models.InputHistory, error)
}

// FeatureChecker reports whether a plan tier includes a gated capability
type FeatureChecker func(tier types.PlanTier, feature types.PlanFeature) bool

// BusinessResult is the per-business outcome of one sweep
type BusinessResult struct {
	BusinessID   string `json:"businessId"`
	BusinessName string `json:"businessName"`
	Queued       bool   `json:"queued"`
	JobID        string `json:"jobId,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"` // recurring scans turned off (tier gate)
	Skipped      bool   `json:"skipped,omitempty"`  // no owning user resolved
	Error        string `json:"error,omitempty"`
}

// SweepSummary summarizes one runDueScans invocation
type SweepSummary struct {
	Candidates int              `json:"candidates"`
	Queued     int              `json:"queued"`
	Disabled   int              `json:"disabled"`
	Skipped    int              `json:"skipped"`
	Errors     int              `json:"errors"`
	Results    []BusinessResult `json:"results"`
	SweptAt    time.Time        `json:"sweptAt"`
}

// RecurringScheduler sweeps due businesses on a fixed interval and enqueues
// one analysis job per due business.
type RecurringScheduler struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	businesses BusinessStore
	jobs       JobStore
	users      UserStore
	history    InputHistoryStore
	hasFeature FeatureChecker

	checkInterval time.Duration
	lastSweep     *SweepSummary
}

// NewRecurringScheduler creates a new recurring scan scheduler
func NewRecurringScheduler(
	businesses BusinessStore,
	jobs JobStore,
	users UserStore,
	history InputHistoryStore,
	checkInterval time.Duration,
) *RecurringScheduler {
	if checkInterval <= 0 {
		checkInterval = 15 * time.Minute
	}
	return &RecurringScheduler{
		businesses:    businesses,
		jobs:          jobs,
		users:         users,
		history:       history,
		hasFeature:    types.HasFeature,
		checkInterval: checkInterval,
	}
}

// Start begins the periodic sweep loop. Idempotent.
func (s *RecurringScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.sweepLoop(ctx)

	log.Printf("[Scheduler] Started (interval=%v)", s.checkInterval)
	return nil
}

// Stop halts the sweep loop and waits for the current sweep to finish
func (s *RecurringScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	log.Printf("[Scheduler] Stopped")
	return nil
}

// IsRunning reports whether the sweep loop is active
func (s *RecurringScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastSweep returns the most recent sweep summary, nil if none has run yet
func (s *RecurringScheduler) LastSweep() *SweepSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSweep
}

// sweepLoop runs RunDueScans on the check interval until stopped
func (s *RecurringScheduler) sweepLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			summary, err := s.RunDueScans(ctx, time.Now())
			if err != nil {
				log.Printf("[Scheduler] Sweep failed: %v", err)
				continue
			}
			if summary.Candidates > 0 {
				log.Printf("[Scheduler] Sweep: %d candidates, %d queued, %d disabled, %d errors",
					summary.Candidates, summary.Queued, summary.Disabled, summary.Errors)
			}
		}
	}
}

// RunDueScans finds every business due for a recurring scan and enqueues one
// job per business. It never aborts mid-batch: per-business failures are
// recorded in the summary and the business's schedule is still advanced so a
// broken business cannot be retried every cycle.
func (s *RecurringScheduler) RunDueScans(ctx context.Context, now time.Time) (*SweepSummary, error) {
	due, err := s.businesses.FindDueForScan(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find due businesses: %w", err)
	}

	summary := &SweepSummary{
		Candidates: len(due),
		Results:    make([]BusinessResult, 0, len(due)),
		SweptAt:    now,
	}

	for _, business := range due {
		result := s.scheduleBusiness(ctx, business, now)
		summary.Results = append(summary.Results, result)
		switch {
		case result.Queued:
			summary.Queued++
		case result.Disabled:
			summary.Disabled++
		case result.Skipped:
			summary.Skipped++
		}
		if result.Error != "" {
			summary.Errors++
		}
	}

	s.mu.Lock()
	s.lastSweep = summary
	s.mu.Unlock()

	return summary, nil
}

// scheduleBusiness handles one due business: resolve the owner, enforce the
// plan gate, enqueue a job and advance the schedule.
func (s *RecurringScheduler) scheduleBusiness(ctx context.Context, business *models.Business, now time.Time) BusinessResult {
	result := BusinessResult{
		BusinessID:   business.ID,
		BusinessName: business.Name,
	}

	owner, err := s.resolveOwner(ctx, business)
	if err != nil {
		result.Error = err.Error()
		s.advanceSchedule(ctx, business, now, &result)
		return result
	}
	if owner == nil {
		// No owning user. Not an error: the business stays due until
		// ownership is repaired.
		log.Printf("[Scheduler] Skipping business %s: no owning user", business.ID)
		result.Skipped = true
		return result
	}

	if !s.hasFeature(owner.PlanTier, types.FeatureRecurringScans) {
		// Policy enforcement, not a failure: the plan no longer includes
		// recurring scans, so turn them off for this business.
		disabled := false
		if err := s.businesses.UpdateScanSchedule(ctx, business.ID, models.ScanSchedule{
			LastScanDate:   business.LastScanDate,
			NextScanDate:   nil,
			RecurringScans: &disabled,
		}); err != nil {
			result.Error = fmt.Sprintf("failed to disable recurring scans: %v", err)
			return result
		}
		log.Printf("[Scheduler] Disabled recurring scans for business %s (tier %s)", business.ID, owner.PlanTier)
		result.Disabled = true
		return result
	}

	job, err := s.buildJob(ctx, business, owner)
	if err == nil {
		err = s.jobs.Create(ctx, job)
	}
	if err != nil {
		result.Error = fmt.Sprintf("failed to enqueue job: %v", err)
		s.advanceSchedule(ctx, business, now, &result)
		return result
	}

	result.Queued = true
	result.JobID = job.ID
	s.advanceSchedule(ctx, business, now, &result)
	return result
}

// buildJob assembles the analysis job for a recurring scan. The payload is
// seeded from the business record plus its latest input history, so the
// pipeline can skip website re-extraction.
func (s *RecurringScheduler) buildJob(ctx context.Context, business *models.Business, owner *models.User) (*models.AnalysisJob, error) {
	var keywords, promptList []string
	latest, err := s.history.LatestForBusiness(ctx, business.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load input history: %w", err)
	}
	if latest != nil {
		keywords = latest.Keywords
		promptList = latest.Prompts
	}

	orgID := ""
	if business.OrgID != nil {
		orgID = *business.OrgID
	}

	now := time.Now()
	businessID := business.ID
	return &models.AnalysisJob{
		ID:           uuid.New().String(),
		WebsiteURL:   business.WebsiteURL,
		UserID:       owner.ID,
		OrgID:        orgID,
		BusinessID:   &businessID,
		Status:       types.JobStatusNotStarted,
		CurrentStep:  "queued",
		BusinessName: business.Name,
		Industry:     business.Industry,
		Location:     business.Location,
		Description:  business.Description,
		Keywords:     keywords,
		Prompts:      promptList,
		IsRecurring:  true,
		ManualData:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// advanceSchedule moves the business's scan window forward regardless of
// whether the enqueue succeeded. A schedule that only advances on success
// would retry a permanently broken business every sweep.
func (s *RecurringScheduler) advanceSchedule(ctx context.Context, business *models.Business, now time.Time, result *BusinessResult) {
	frequency := types.FrequencyWeekly
	if business.ScanFrequency != nil {
		frequency = *business.ScanFrequency
	}
	next := ComputeNextScanDate(now, frequency)

	if err := s.businesses.UpdateScanSchedule(ctx, business.ID, models.ScanSchedule{
		LastScanDate: &now,
		NextScanDate: &next,
	}); err != nil {
		log.Printf("[Scheduler] Failed to advance schedule for business %s: %v", business.ID, err)
		if result.Error == "" {
			result.Error = fmt.Sprintf("failed to advance schedule: %v", err)
		}
	}
}

// resolveOwner returns the business owner, falling back to the first member
// of the linked organization. Returns nil with no error when nobody resolves.
func (s *RecurringScheduler) resolveOwner(ctx context.Context, business *models.Business) (*models.User, error) {
	if business.OwnerUserID != nil && *business.OwnerUserID != "" {
		owner, err := s.users.GetByID(ctx, *business.OwnerUserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load owner: %w", err)
		}
		if owner != nil {
			return owner, nil
		}
	}

	if business.OrgID != nil && *business.OrgID != "" {
		member, err := s.users.FindFirstOrgMember(ctx, *business.OrgID)
		if err != nil {
			return nil, fmt.Errorf("failed to load org member: %w", err)
		}
		return member, nil
	}

	return nil, nil
}

// ComputeNextScanDate returns the next due timestamp for a cadence. Monthly
// uses calendar month arithmetic, so Jan 31 advances into early March when
// February is short, matching time.AddDate overflow rules. Unknown cadences
// fall back to weekly.
func ComputeNextScanDate(from time.Time, frequency types.ScanFrequency) time.Time {
	switch frequency {
	case types.FrequencyDaily:
		return from.Add(24 * time.Hour)
	case types.FrequencyWeekly:
		return from.Add(7 * 24 * time.Hour)
	case types.FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.Add(7 * 24 * time.Hour)
	}
}
