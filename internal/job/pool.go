package job

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rankly-scanner/internal/errors"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/types"
)

// Executor runs one job's pipeline to completion
type Executor interface {
	Execute(ctx context.Context, job *models.AnalysisJob) error
}

// poolSlot tracks one executing job in the in-memory running set
type poolSlot struct {
	jobID      string
	businessID string
	startedAt  time.Time
}

// CleanupReport summarizes one maintenance sweep
type CleanupReport struct {
	Scanned  int `json:"scanned"`
	Orphans  int `json:"orphans"`
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

// ScanPoolManager runs analysis jobs with bounded concurrency. At most
// maxConcurrent jobs execute at once; further pending jobs wait in the store
// in FIFO order by creation time.
//
// The in-memory running set is the source of truth for "currently
// executing". The persisted InProgress flag exists only so a maintenance
// sweep can spot jobs orphaned by a crash.
type ScanPoolManager struct {
	mu      sync.RWMutex
	active  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	running map[string]*poolSlot
	sem     chan struct{}

	jobs     JobStore
	executor Executor

	maxConcurrent   int
	pollInterval    time.Duration
	cleanupInterval time.Duration
	maxRetries      int
	stuckThreshold  time.Duration

	// Lifetime accounting for performance metrics
	startedAt     time.Time
	completed     int64
	failures      int64
	retries       int64
	totalDuration time.Duration
}

// PoolConfig configures the scan pool
type PoolConfig struct {
	MaxConcurrent   int
	PollInterval    time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
	StuckThreshold  time.Duration
}

// NewScanPoolManager creates a new scan pool manager
func NewScanPoolManager(jobs JobStore, executor Executor, cfg PoolConfig) *ScanPoolManager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 30 * time.Minute
	}

	return &ScanPoolManager{
		running:         make(map[string]*poolSlot),
		sem:             make(chan struct{}, cfg.MaxConcurrent),
		jobs:            jobs,
		executor:        executor,
		maxConcurrent:   cfg.MaxConcurrent,
		pollInterval:    cfg.PollInterval,
		cleanupInterval: cfg.CleanupInterval,
		maxRetries:      cfg.MaxRetries,
		stuckThreshold:  cfg.StuckThreshold,
	}
}

// Start begins the poll/dispatch and maintenance loops. Idempotent: calling
// Start on an active pool is a no-op.
func (p *ScanPoolManager) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.startedAt = time.Now()
	p.mu.Unlock()

	go p.runLoops(ctx)

	log.Printf("[ScanPool] Started (maxConcurrent=%d, poll=%v)", p.maxConcurrent, p.pollInterval)
	return nil
}

// Stop halts polling. Cooperative: in-flight jobs run to completion, they
// are never killed. Idempotent.
func (p *ScanPoolManager) Stop() error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done
	log.Printf("[ScanPool] Stopped, in-flight jobs will finish")
	return nil
}

// IsActive reports whether the poll loop is running
func (p *ScanPoolManager) IsActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// RunningCount returns the number of currently executing jobs
func (p *ScanPoolManager) RunningCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.running)
}

// runLoops drives poll and maintenance ticks until stopped
func (p *ScanPoolManager) runLoops(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.pollInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(p.cleanupInterval)
	defer cleanupTicker.Stop()

	// Reconcile any jobs orphaned by the previous process before dispatching
	if _, err := p.ForceCleanup(ctx); err != nil {
		log.Printf("[ScanPool] Startup cleanup failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-pollTicker.C:
			if err := p.RunOnce(ctx); err != nil {
				log.Printf("[ScanPool] Dispatch cycle failed: %v", err)
			}
		case <-cleanupTicker.C:
			report, err := p.ForceCleanup(ctx)
			if err != nil {
				log.Printf("[ScanPool] Maintenance sweep failed: %v", err)
				continue
			}
			if report.Orphans > 0 {
				log.Printf("[ScanPool] Maintenance sweep: %d orphans (%d requeued, %d failed)",
					report.Orphans, report.Requeued, report.Failed)
			}
		}
	}
}

// RunOnce executes one poll-and-dispatch cycle synchronously: it pulls
// pending jobs up to the free-slot count and starts them, returning without
// waiting for completion.
func (p *ScanPoolManager) RunOnce(ctx context.Context) error {
	p.mu.RLock()
	free := p.maxConcurrent - len(p.running)
	p.mu.RUnlock()
	if free <= 0 {
		return nil
	}

	pending, err := p.jobs.FindPending(ctx, free)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	for _, job := range pending {
		if !p.dispatch(ctx, job) {
			break // pool filled up mid-cycle
		}
	}
	return nil
}

// dispatch claims one job and starts its pipeline in a worker goroutine.
// Returns false when no slot was available.
func (p *ScanPoolManager) dispatch(ctx context.Context, job *models.AnalysisJob) bool {
	p.mu.Lock()
	if _, alreadyRunning := p.running[job.ID]; alreadyRunning {
		p.mu.Unlock()
		return true
	}

	select {
	case p.sem <- struct{}{}:
	default:
		p.mu.Unlock()
		return false
	}

	businessID := ""
	if job.BusinessID != nil {
		businessID = *job.BusinessID
	}
	p.running[job.ID] = &poolSlot{
		jobID:      job.ID,
		businessID: businessID,
		startedAt:  time.Now(),
	}
	// Capture the semaphore so a later EmergencyReset cannot strand this
	// worker's release.
	sem := p.sem
	p.mu.Unlock()

	// Claim in the store: the InProgress flag is the crash-detection trace
	job.InProgress = true
	job.Status = types.JobStatusPromptForming
	job.CurrentStep = "prompt-forming"
	if err := p.jobs.Update(ctx, job); err != nil {
		log.Printf("[ScanPool] Failed to claim job %s: %v", job.ID, err)
		p.release(job.ID, sem)
		return true
	}

	go p.runJob(ctx, job, sem)
	return true
}

// runJob executes one job's pipeline, handling panics and classifying
// failures. A single job's failure never touches other jobs or the pool.
func (p *ScanPoolManager) runJob(ctx context.Context, job *models.AnalysisJob, sem chan struct{}) {
	started := time.Now()
	defer p.release(job.ID, sem)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ScanPool] Panic in job %s: %v", job.ID, r)
			p.handleFailure(ctx, job, errors.NewInternalError(fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	if err := p.executor.Execute(ctx, job); err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	job.InProgress = false
	job.Status = types.JobStatusCompleted
	job.CurrentStep = "done"
	job.ProgressPercent = 100
	job.ProgressMessage = "Scan completed"
	if err := p.jobs.Update(ctx, job); err != nil {
		log.Printf("[ScanPool] Failed to finalize job %s: %v", job.ID, err)
	}

	p.mu.Lock()
	p.completed++
	p.totalDuration += time.Since(started)
	p.mu.Unlock()

	log.Printf("[ScanPool] Job %s completed in %v", job.ID, time.Since(started))
}

// release frees the pool slot held by a job
func (p *ScanPoolManager) release(jobID string, sem chan struct{}) {
	p.mu.Lock()
	delete(p.running, jobID)
	p.mu.Unlock()

	select {
	case <-sem:
	default:
		// Semaphore was replaced by an emergency reset
	}
}

// handleFailure classifies a job error and either requeues the job or marks
// it permanently failed. A retryable failure consumes one unit of the retry
// budget; the budget allows maxRetries requeues, the failure after that is
// terminal.
func (p *ScanPoolManager) handleFailure(ctx context.Context, job *models.AnalysisJob, jobErr error) {
	p.mu.Lock()
	p.failures++
	p.mu.Unlock()

	job.InProgress = false

	if errors.IsRetryable(jobErr) {
		job.RetryCount++
		if job.RetryCount <= p.maxRetries {
			p.mu.Lock()
			p.retries++
			p.mu.Unlock()

			job.Status = types.JobStatusFailedRetryable
			job.ProgressMessage = fmt.Sprintf("Retryable failure (%d/%d): %v", job.RetryCount, p.maxRetries, jobErr)
			if err := p.jobs.Update(ctx, job); err != nil {
				log.Printf("[ScanPool] Failed to requeue job %s: %v", job.ID, err)
			}
			log.Printf("[ScanPool] Job %s requeued after retryable failure (%d/%d)", job.ID, job.RetryCount, p.maxRetries)
			return
		}
	}

	job.Status = types.JobStatusFailedPermanent
	job.ProgressMessage = fmt.Sprintf("Permanent failure: %v", jobErr)
	if err := p.jobs.Update(ctx, job); err != nil {
		log.Printf("[ScanPool] Failed to mark job %s permanently failed: %v", job.ID, err)
	}
	log.Printf("[ScanPool] Job %s failed permanently: %v", job.ID, jobErr)
}

// ForceCleanup reconciles persisted state with the in-memory running set.
// Jobs flagged InProgress in the store but absent from the running set were
// orphaned by a crash or reset: they are requeued up to their retry budget,
// otherwise marked permanently failed.
func (p *ScanPoolManager) ForceCleanup(ctx context.Context) (*CleanupReport, error) {
	flagged, err := p.jobs.FindInProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find in-progress jobs: %w", err)
	}

	report := &CleanupReport{Scanned: len(flagged)}

	for _, job := range flagged {
		p.mu.RLock()
		_, isRunning := p.running[job.ID]
		p.mu.RUnlock()
		if isRunning {
			continue
		}

		if job.Status.IsTerminal() {
			// Finished job whose flag never got cleared: clear it so it
			// stops showing up in the sweep.
			job.InProgress = false
			if err := p.jobs.Update(ctx, job); err != nil {
				log.Printf("[ScanPool] Failed to clear flag on job %s: %v", job.ID, err)
			}
			continue
		}

		report.Orphans++
		job.InProgress = false
		job.RetryCount++
		if job.RetryCount <= p.maxRetries {
			job.Status = types.JobStatusNotStarted
			job.CurrentStep = "queued"
			job.ProgressMessage = "Recovered after interrupted run"
			report.Requeued++
		} else {
			job.Status = types.JobStatusFailedPermanent
			job.ProgressMessage = "Interrupted run exhausted the retry budget"
			report.Failed++
		}

		if err := p.jobs.Update(ctx, job); err != nil {
			log.Printf("[ScanPool] Failed to reconcile orphaned job %s: %v", job.ID, err)
		}
	}

	return report, nil
}

// EmergencyReset clears the in-memory running set and slot semaphore without
// touching persisted job records. Used to recover from an internal deadlock
// or slot leak without restarting the process; the next maintenance sweep
// reconciles the store.
func (p *ScanPoolManager) EmergencyReset() {
	p.mu.Lock()
	cleared := len(p.running)
	p.running = make(map[string]*poolSlot)
	p.sem = make(chan struct{}, p.maxConcurrent)
	p.mu.Unlock()

	log.Printf("[ScanPool] Emergency reset: cleared %d tracked jobs", cleared)
}

// stuckCount returns how many running slots exceed the stuck threshold
func (p *ScanPoolManager) stuckCount(now time.Time) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stuck := 0
	for _, slot := range p.running {
		if now.Sub(slot.startedAt) > p.stuckThreshold {
			stuck++
		}
	}
	return stuck
}
