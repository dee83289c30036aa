package job

import (
	"context"
	"fmt"
	"time"

	"github.com/rankly-scanner/internal/types"
)

// SystemStatus is the point-in-time view of the pool exposed by the control
// surface.
type SystemStatus struct {
	Active         bool    `json:"active"`
	Running        int     `json:"running"`
	Pending        int     `json:"pending"`
	CompletedToday int     `json:"completedToday"`
	FailedToday    int     `json:"failedToday"`
	MaxConcurrent  int     `json:"maxConcurrent"`
	Utilization    float64 `json:"utilization"` // running / maxConcurrent
}

// PerformanceMetrics aggregates throughput since the pool started
type PerformanceMetrics struct {
	JobsPerHour        float64 `json:"jobsPerHour"`
	AvgDurationSeconds float64 `json:"avgDurationSeconds"`
	RetryRate          float64 `json:"retryRate"` // retries / (completed + failures)
	UptimeSeconds      float64 `json:"uptimeSeconds"`
}

// HealthReport carries derived warnings about pool health
type HealthReport struct {
	Healthy     bool      `json:"healthy"`
	Warnings    []string  `json:"warnings"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// SystemStatus returns current pool counts. Running and utilization come
// from the in-memory running set; pending and daily counts come from the
// store so they survive restarts.
func (p *ScanPoolManager) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	pending, err := p.jobs.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending jobs: %w", err)
	}

	midnight := startOfDay(time.Now())
	completedToday, err := p.jobs.CountByStatusSince(ctx, types.JobStatusCompleted, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed jobs: %w", err)
	}
	failedToday, err := p.jobs.CountByStatusSince(ctx, types.JobStatusFailedPermanent, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return &SystemStatus{
		Active:         p.active,
		Running:        len(p.running),
		Pending:        pending,
		CompletedToday: completedToday,
		FailedToday:    failedToday,
		MaxConcurrent:  p.maxConcurrent,
		Utilization:    float64(len(p.running)) / float64(p.maxConcurrent),
	}, nil
}

// PerformanceMetrics returns throughput and retry statistics accumulated
// since the pool last started.
func (p *ScanPoolManager) PerformanceMetrics() *PerformanceMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metrics := &PerformanceMetrics{}
	if !p.startedAt.IsZero() {
		metrics.UptimeSeconds = time.Since(p.startedAt).Seconds()
	}
	if metrics.UptimeSeconds > 0 {
		metrics.JobsPerHour = float64(p.completed) / (metrics.UptimeSeconds / 3600)
	}
	if p.completed > 0 {
		metrics.AvgDurationSeconds = p.totalDuration.Seconds() / float64(p.completed)
	}
	if attempts := p.completed + p.failures; attempts > 0 {
		metrics.RetryRate = float64(p.retries) / float64(attempts)
	}
	return metrics
}

// HealthReport derives operator-facing warnings from current pool state
func (p *ScanPoolManager) HealthReport(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Healthy:     true,
		Warnings:    []string{},
		GeneratedAt: time.Now(),
	}

	p.mu.RLock()
	running := len(p.running)
	active := p.active
	p.mu.RUnlock()

	if running >= p.maxConcurrent {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("pool saturated: all %d slots busy", p.maxConcurrent))
	}

	if metrics := p.PerformanceMetrics(); metrics.RetryRate > 0.3 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("high retry rate: %.0f%% of jobs retried", metrics.RetryRate*100))
	}

	if stuck := p.stuckCount(time.Now()); stuck > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("stuck jobs detected: %d running longer than %v", stuck, p.stuckThreshold))
	}

	if !active {
		if pending, err := p.jobs.CountPending(ctx); err == nil && pending > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("pool inactive with %d pending jobs", pending))
		}
	}

	report.Healthy = len(report.Warnings) == 0
	return report
}

// startOfDay truncates a timestamp to local midnight
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
