package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rankly-scanner/internal/job"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/scheduler"
	"github.com/rankly-scanner/internal/storage"
	"github.com/rankly-scanner/internal/types"
)

// mockPool implements PoolControllerInterface with overridable behavior
type mockPool struct {
	active        bool
	startErr      error
	stopErr       error
	runOnceErr    error
	cleanupReport *job.CleanupReport
	cleanupErr    error
	statusErr     error
	resets        int
	runOnceCalls  int
	statusCalls   int
}

func (m *mockPool) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.active = true
	return nil
}

func (m *mockPool) Stop() error {
	if m.stopErr != nil {
		return m.stopErr
	}
	m.active = false
	return nil
}

func (m *mockPool) IsActive() bool { return m.active }

func (m *mockPool) RunOnce(ctx context.Context) error {
	m.runOnceCalls++
	return m.runOnceErr
}

func (m *mockPool) ForceCleanup(ctx context.Context) (*job.CleanupReport, error) {
	if m.cleanupErr != nil {
		return nil, m.cleanupErr
	}
	if m.cleanupReport != nil {
		return m.cleanupReport, nil
	}
	return &job.CleanupReport{}, nil
}

func (m *mockPool) EmergencyReset() { m.resets++ }

func (m *mockPool) SystemStatus(ctx context.Context) (*job.SystemStatus, error) {
	m.statusCalls++
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &job.SystemStatus{
		Active:        m.active,
		Running:       1,
		Pending:       2,
		MaxConcurrent: 3,
		Utilization:   1.0 / 3,
	}, nil
}

func (m *mockPool) PerformanceMetrics() *job.PerformanceMetrics {
	return &job.PerformanceMetrics{JobsPerHour: 12}
}

func (m *mockPool) HealthReport(ctx context.Context) *job.HealthReport {
	return &job.HealthReport{Healthy: true, Warnings: []string{}, GeneratedAt: time.Now()}
}

// mockScheduler implements SchedulerInterface
type mockScheduler struct {
	sweep      *scheduler.SweepSummary
	sweepErr   error
	sweepCalls int
}

func (m *mockScheduler) RunDueScans(ctx context.Context, now time.Time) (*scheduler.SweepSummary, error) {
	m.sweepCalls++
	if m.sweepErr != nil {
		return nil, m.sweepErr
	}
	if m.sweep != nil {
		return m.sweep, nil
	}
	return &scheduler.SweepSummary{SweptAt: now}, nil
}

func (m *mockScheduler) IsRunning() bool { return true }

func (m *mockScheduler) LastSweep() *scheduler.SweepSummary { return m.sweep }

// mockJobReader returns a fixed job
type mockJobReader struct {
	job *models.AnalysisJob
	err error
}

func (m *mockJobReader) GetByID(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	return m.job, m.err
}

// mockProgressCache returns a fixed snapshot and mimics the Redis status
// cache with an in-memory JSON round trip
type mockProgressCache struct {
	snapshot     *storage.JobProgress
	cachedStatus interface{}
	setCalls     int
}

func (m *mockProgressCache) GetJobProgress(ctx context.Context, jobID string) (*storage.JobProgress, error) {
	return m.snapshot, nil
}

func (m *mockProgressCache) SetScannerStatus(ctx context.Context, status interface{}, ttl time.Duration) error {
	m.setCalls++
	m.cachedStatus = status
	return nil
}

func (m *mockProgressCache) GetScannerStatus(ctx context.Context, dest interface{}) (bool, error) {
	if m.cachedStatus == nil {
		return false, nil
	}
	data, err := json.Marshal(m.cachedStatus)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// mockRankingReader returns fixed records
type mockRankingReader struct {
	records []*models.RankingRecord
	err     error
}

func (m *mockRankingReader) ListByBusiness(ctx context.Context, businessID string, limit int) ([]*models.RankingRecord, error) {
	return m.records, m.err
}

func newTestServer(pool *mockPool, sched *mockScheduler) *Server {
	if pool == nil {
		pool = &mockPool{}
	}
	if sched == nil {
		sched = &mockScheduler{}
	}
	return NewServer(
		DefaultServerConfig("127.0.0.1", "0"),
		pool,
		sched,
		&mockJobReader{},
		&mockProgressCache{},
		&mockRankingReader{},
	)
}

func doControl(t *testing.T, s *Server, action string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"action": action})
	req := httptest.NewRequest("POST", "/api/scanner/control", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestScannerControlActions(t *testing.T) {
	tests := []struct {
		action      string
		wantRunning bool
	}{
		{"start", true},
		{"stop", false},
		{"run-once", false},
		{"force-scan", false},
		{"force-cleanup", false},
		{"emergency-reset", false},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			pool := &mockPool{}
			sched := &mockScheduler{}
			s := newTestServer(pool, sched)

			rec := doControl(t, s, tt.action)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}

			var resp controlResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if !resp.Success {
				t.Error("success = false")
			}
			if resp.Running != tt.wantRunning {
				t.Errorf("running = %v, want %v", resp.Running, tt.wantRunning)
			}
			if resp.Status == nil {
				t.Error("status missing from control response")
			}
		})
	}
}

func TestScannerControlUnknownAction(t *testing.T) {
	s := newTestServer(nil, nil)

	rec := doControl(t, s, "explode")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.Code != ErrCodeUnknownAction {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeUnknownAction)
	}

	actions, ok := resp.Error.Details["validActions"].([]interface{})
	if !ok {
		t.Fatalf("validActions missing from details: %v", resp.Error.Details)
	}
	if len(actions) != len(validActions) {
		t.Errorf("got %d valid actions, want %d", len(actions), len(validActions))
	}
}

func TestScannerControlInvalidBody(t *testing.T) {
	s := newTestServer(nil, nil)

	req := httptest.NewRequest("POST", "/api/scanner/control", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScannerControlForceScanRunsScheduler(t *testing.T) {
	sched := &mockScheduler{sweep: &scheduler.SweepSummary{Candidates: 3, Queued: 2}}
	s := newTestServer(nil, sched)

	rec := doControl(t, s, "force-scan")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if sched.sweepCalls != 1 {
		t.Errorf("sweepCalls = %d, want 1", sched.sweepCalls)
	}

	var resp controlResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Sweep == nil || resp.Sweep.Queued != 2 {
		t.Errorf("sweep = %+v, want queued=2", resp.Sweep)
	}
}

func TestScannerControlEmergencyReset(t *testing.T) {
	pool := &mockPool{}
	s := newTestServer(pool, nil)

	rec := doControl(t, s, "emergency-reset")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if pool.resets != 1 {
		t.Errorf("resets = %d, want 1", pool.resets)
	}
}

func TestScannerControlActionFailure(t *testing.T) {
	sched := &mockScheduler{sweepErr: fmt.Errorf("store unavailable")}
	s := newTestServer(nil, sched)

	rec := doControl(t, s, "force-scan")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.Details["error"] != "store unavailable" {
		t.Errorf("details = %v, want underlying error surfaced", resp.Error.Details)
	}
}

func TestScannerStatus(t *testing.T) {
	pool := &mockPool{active: true}
	s := newTestServer(pool, nil)

	req := httptest.NewRequest("GET", "/api/scanner/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status == nil || !resp.Status.Active {
		t.Errorf("status = %+v, want active", resp.Status)
	}
	if resp.Performance == nil || resp.Performance.JobsPerHour != 12 {
		t.Errorf("performance = %+v", resp.Performance)
	}
	if resp.Health == nil || !resp.Health.Healthy {
		t.Errorf("health = %+v", resp.Health)
	}
	if resp.Message != "Scanner is running" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestScannerStatusServedFromCache(t *testing.T) {
	pool := &mockPool{active: true}
	progress := &mockProgressCache{}
	s := NewServer(
		DefaultServerConfig("127.0.0.1", "0"),
		pool,
		&mockScheduler{},
		&mockJobReader{},
		progress,
		&mockRankingReader{},
	)

	doStatus := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/scanner/status", nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		return rec
	}

	// First request misses the cache and populates it
	rec := doStatus()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if progress.setCalls != 1 {
		t.Fatalf("setCalls = %d after first request, want 1", progress.setCalls)
	}
	if pool.statusCalls != 1 {
		t.Fatalf("statusCalls = %d after first request, want 1", pool.statusCalls)
	}

	// Second request is served from the cache without touching the pool
	rec = doStatus()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if pool.statusCalls != 1 {
		t.Errorf("statusCalls = %d after cached request, want 1", pool.statusCalls)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status == nil || !resp.Status.Active {
		t.Errorf("cached status = %+v, want active", resp.Status)
	}
}

func TestScannerControlRefreshesStatusCache(t *testing.T) {
	pool := &mockPool{active: true}
	progress := &mockProgressCache{}
	s := NewServer(
		DefaultServerConfig("127.0.0.1", "0"),
		pool,
		&mockScheduler{},
		&mockJobReader{},
		progress,
		&mockRankingReader{},
	)

	// Prime the cache with the running state
	req := httptest.NewRequest("GET", "/api/scanner/status", nil)
	s.Router().ServeHTTP(httptest.NewRecorder(), req)

	// Stopping must replace the snapshot, not leave it stale for the TTL
	rec := doControl(t, s, "stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/api/scanner/status", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status == nil || resp.Status.Active {
		t.Errorf("status after stop = %+v, want stopped", resp.Status)
	}
	if resp.Message != "Scanner is stopped" {
		t.Errorf("message = %q, want stopped message", resp.Message)
	}
}

func TestGetJob(t *testing.T) {
	jobRecord := &models.AnalysisJob{
		ID:     "job-1",
		Status: types.JobStatusModelAnalysis,
	}
	snapshot := &storage.JobProgress{
		JobID:           "job-1",
		Status:          types.JobStatusModelAnalysis,
		ProgressPercent: 60,
	}

	s := NewServer(
		DefaultServerConfig("127.0.0.1", "0"),
		&mockPool{},
		&mockScheduler{},
		&mockJobReader{job: jobRecord},
		&mockProgressCache{snapshot: snapshot},
		&mockRankingReader{},
	)

	req := httptest.NewRequest("GET", "/api/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Job == nil || resp.Job.ID != "job-1" {
		t.Errorf("job = %+v", resp.Job)
	}
	if resp.Progress == nil || resp.Progress.ProgressPercent != 60 {
		t.Errorf("progress = %+v", resp.Progress)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := NewServer(
		DefaultServerConfig("127.0.0.1", "0"),
		&mockPool{},
		&mockScheduler{},
		&mockJobReader{},
		&mockProgressCache{},
		&mockRankingReader{},
	)

	req := httptest.NewRequest("GET", "/api/jobs/missing", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListRankings(t *testing.T) {
	s := NewServer(
		DefaultServerConfig("127.0.0.1", "0"),
		&mockPool{},
		&mockScheduler{},
		&mockJobReader{},
		&mockProgressCache{},
		&mockRankingReader{records: []*models.RankingRecord{
			{BusinessID: "biz-1", Prompt: "p", Engine: types.EngineOpenAI, Mentioned: true, Position: 1},
		}},
	)

	req := httptest.NewRequest("GET", "/api/businesses/biz-1/rankings?limit=10", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Count    int                     `json:"count"`
		Rankings []*models.RankingRecord `json:"rankings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 1 || len(resp.Rankings) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListRankingsBadLimit(t *testing.T) {
	s := newTestServer(nil, nil)

	req := httptest.NewRequest("GET", "/api/businesses/biz-1/rankings?limit=0", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
