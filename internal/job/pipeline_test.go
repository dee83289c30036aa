package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rankly-scanner/internal/adapter"
	"github.com/rankly-scanner/internal/errors"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/prompts"
	"github.com/rankly-scanner/internal/types"
)

// mockProvider is an AIProvider with an overridable query func
type mockProvider struct {
	name    types.AIEngine
	queryFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockProvider) Name() types.AIEngine {
	return m.name
}

func (m *mockProvider) Query(ctx context.Context, prompt string) (string, error) {
	return m.queryFn(ctx, prompt)
}

// mockExtractor returns fixed metadata
type mockExtractor struct {
	meta   *adapter.SiteMetadata
	err    error
	called bool
}

func (m *mockExtractor) Extract(ctx context.Context, websiteURL string) (*adapter.SiteMetadata, error) {
	m.called = true
	return m.meta, m.err
}

// mockRankingWriter records inserted batches
type mockRankingWriter struct {
	mu      sync.Mutex
	records []*models.RankingRecord
}

func (m *mockRankingWriter) BatchInsert(ctx context.Context, records []*models.RankingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

// mockBusinessConfirmer records confirmed scans
type mockBusinessConfirmer struct {
	confirmed []string
}

func (m *mockBusinessConfirmer) ConfirmScanCompleted(ctx context.Context, businessID string, completedAt time.Time) error {
	m.confirmed = append(m.confirmed, businessID)
	return nil
}

// fixedStrategy returns a constant prompt list
type fixedStrategy struct {
	prompts []string
}

func (s *fixedStrategy) Generate(input prompts.BusinessInput) []string {
	return s.prompts
}

func recurringJob(businessID string) *models.AnalysisJob {
	return &models.AnalysisJob{
		ID:           "job-1",
		WebsiteURL:   "https://acmeplumbing.com",
		BusinessID:   &businessID,
		Status:       types.JobStatusNotStarted,
		BusinessName: "Acme Plumbing",
		Industry:     "plumbing",
		Location:     "Austin",
		Keywords:     []string{"emergency plumber"},
		Prompts:      []string{"best plumber in austin"},
		IsRecurring:  true,
		ManualData:   true,
		CreatedAt:    time.Now(),
	}
}

func TestPipelineExecuteHappyPath(t *testing.T) {
	store := newFakeJobStore()
	job := recurringJob("biz-1")
	store.Create(context.Background(), job)

	extractor := &mockExtractor{}
	rankings := &mockRankingWriter{}
	businesses := &mockBusinessConfirmer{}
	provider := &mockProvider{
		name: types.EngineOpenAI,
		queryFn: func(ctx context.Context, prompt string) (string, error) {
			return "Here are your options:\n1. Acme Plumbing - great reviews\n2. Other Co", nil
		},
	}

	p := NewScanPipeline(store, businesses, rankings, []adapter.AIProvider{provider}, extractor, &fixedStrategy{}, nil)
	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if extractor.called {
		t.Error("extractor must not run for manual-data jobs")
	}
	if len(rankings.records) != 1 {
		t.Fatalf("got %d records, want 1", len(rankings.records))
	}
	rec := rankings.records[0]
	if !rec.Mentioned || rec.Position != 1 {
		t.Errorf("record = %+v, want mentioned at position 1", rec)
	}
	if rec.BusinessID != "biz-1" {
		t.Errorf("businessID = %s", rec.BusinessID)
	}
	if len(businesses.confirmed) != 1 || businesses.confirmed[0] != "biz-1" {
		t.Errorf("confirmed = %v, want [biz-1]", businesses.confirmed)
	}
}

func TestPipelineExtractsWhenNoManualData(t *testing.T) {
	store := newFakeJobStore()
	job := &models.AnalysisJob{
		ID:         "job-2",
		WebsiteURL: "https://acmeplumbing.com",
		Status:     types.JobStatusNotStarted,
		CreatedAt:  time.Now(),
	}
	store.Create(context.Background(), job)

	extractor := &mockExtractor{meta: &adapter.SiteMetadata{
		Title:       "Acme Plumbing",
		Description: "Plumbers in Austin",
		Keywords:    []string{"plumber"},
	}}
	provider := &mockProvider{
		name: types.EngineOpenAI,
		queryFn: func(ctx context.Context, prompt string) (string, error) {
			return "Acme Plumbing is a solid choice.", nil
		},
	}
	strategy := &fixedStrategy{prompts: []string{"who fixes pipes in austin"}}

	p := NewScanPipeline(store, &mockBusinessConfirmer{}, &mockRankingWriter{},
		[]adapter.AIProvider{provider}, extractor, strategy, nil)
	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !extractor.called {
		t.Error("extractor should run when the job has no manual data")
	}
	if job.BusinessName != "Acme Plumbing" {
		t.Errorf("businessName = %q", job.BusinessName)
	}
	if len(job.Prompts) != 1 {
		t.Errorf("prompts = %v, want the generated prompt", job.Prompts)
	}
}

func TestPipelineToleratesPartialEngineFailure(t *testing.T) {
	store := newFakeJobStore()
	job := recurringJob("biz-1")
	job.Prompts = []string{"p1", "p2"}
	store.Create(context.Background(), job)

	calls := 0
	provider := &mockProvider{
		name: types.EngineOpenAI,
		queryFn: func(ctx context.Context, prompt string) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.NewEngineTimeoutError(types.EngineOpenAI)
			}
			return "Acme Plumbing", nil
		},
	}
	rankings := &mockRankingWriter{}

	p := NewScanPipeline(store, &mockBusinessConfirmer{}, rankings,
		[]adapter.AIProvider{provider}, &mockExtractor{}, &fixedStrategy{}, nil)
	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute should tolerate partial failure, got %v", err)
	}

	if len(rankings.records) != 1 {
		t.Errorf("got %d records, want 1 from the surviving query", len(rankings.records))
	}
}

func TestPipelineFailsWhenAllEnginesFail(t *testing.T) {
	store := newFakeJobStore()
	job := recurringJob("biz-1")
	store.Create(context.Background(), job)

	provider := &mockProvider{
		name: types.EngineOpenAI,
		queryFn: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.NewEngineTimeoutError(types.EngineOpenAI)
		},
	}

	p := NewScanPipeline(store, &mockBusinessConfirmer{}, &mockRankingWriter{},
		[]adapter.AIProvider{provider}, &mockExtractor{}, &fixedStrategy{}, nil)
	err := p.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error when every query fails")
	}
	if !errors.IsRetryable(err) {
		t.Errorf("engine timeout should classify retryable, got %v", err)
	}
}

func TestPipelineFailsWithoutPrompts(t *testing.T) {
	store := newFakeJobStore()
	job := recurringJob("biz-1")
	job.Prompts = nil
	store.Create(context.Background(), job)

	p := NewScanPipeline(store, &mockBusinessConfirmer{}, &mockRankingWriter{},
		nil, &mockExtractor{}, &fixedStrategy{}, nil)
	err := p.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error when no prompts can be generated")
	}
	if errors.IsRetryable(err) {
		t.Errorf("empty prompt list is not retryable, got %v", err)
	}
}

func TestAnalyzeAnswer(t *testing.T) {
	tests := []struct {
		name          string
		answer        string
		wantMentioned bool
		wantPosition  int
	}{
		{
			name:          "mentioned first in numbered list",
			answer:        "Top picks:\n1. Acme Plumbing\n2. Rival Co",
			wantMentioned: true,
			wantPosition:  1,
		},
		{
			name:          "mentioned third in bulleted list",
			answer:        "- Rival One\n- Rival Two\n- Acme Plumbing is also good",
			wantMentioned: true,
			wantPosition:  3,
		},
		{
			name:          "mentioned by domain only",
			answer:        "You could try acmeplumbing.com for this.",
			wantMentioned: true,
			wantPosition:  0,
		},
		{
			name:          "mentioned in prose without list",
			answer:        "Many people recommend Acme Plumbing for emergencies.",
			wantMentioned: true,
			wantPosition:  0,
		},
		{
			name:          "case insensitive match",
			answer:        "1) ACME PLUMBING",
			wantMentioned: true,
			wantPosition:  1,
		},
		{
			name:   "not mentioned",
			answer: "1. Rival One\n2. Rival Two",
		},
		{
			name:   "empty answer",
			answer: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := analyzeAnswer("Acme Plumbing", "https://www.acmeplumbing.com", "prompt", types.EngineOpenAI, tt.answer)
			if got.Mentioned != tt.wantMentioned {
				t.Errorf("Mentioned = %v, want %v", got.Mentioned, tt.wantMentioned)
			}
			if got.Position != tt.wantPosition {
				t.Errorf("Position = %d, want %d", got.Position, tt.wantPosition)
			}
			if tt.wantMentioned && got.Snippet == "" {
				t.Error("mentioned result should carry a snippet")
			}
		})
	}
}

func TestVisibilityScore(t *testing.T) {
	tests := []struct {
		name    string
		results []*types.RankedResult
		want    float64
	}{
		{
			name: "empty",
			want: 0,
		},
		{
			name: "single first place",
			results: []*types.RankedResult{
				{Mentioned: true, Position: 1},
			},
			want: 100,
		},
		{
			name: "half: one first place, one absent",
			results: []*types.RankedResult{
				{Mentioned: true, Position: 1},
				{},
			},
			want: 50,
		},
		{
			name: "second place counts half",
			results: []*types.RankedResult{
				{Mentioned: true, Position: 2},
			},
			want: 50,
		},
		{
			name: "unranked mention counts half",
			results: []*types.RankedResult{
				{Mentioned: true},
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VisibilityScore(tt.results)
			if diff := got - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("VisibilityScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBareDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.acme.com", "acme.com"},
		{"http://acme.com/path", "acme.com"},
		{"acme.com", "acme.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := bareDomain(tt.in); got != tt.want {
			t.Errorf("bareDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVisibilityScoreBounds(t *testing.T) {
	var results []*types.RankedResult
	for i := 1; i <= 20; i++ {
		results = append(results, &types.RankedResult{Mentioned: true, Position: i % 5})
	}
	score := VisibilityScore(results)
	if score < 0 || score > 100 {
		t.Errorf("score %v out of [0,100]", score)
	}
}
