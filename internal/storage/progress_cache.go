package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rankly-scanner/internal/types"
)

// JobProgress is the live progress snapshot the dashboard polls while a scan
// runs. It mirrors the job row but is served from Redis to keep progress
// polling off Postgres.
type JobProgress struct {
	JobID           string          `json:"jobId"`
	Status          types.JobStatus `json:"status"`
	CurrentStep     string          `json:"currentStep"`
	ProgressPercent int             `json:"progressPercent"`
	ProgressMessage string          `json:"progressMessage"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ProgressCache stores live job progress and scanner status in Redis
type ProgressCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewProgressCache creates a new progress cache with a default 30 minute TTL
func NewProgressCache(cache *RedisCache) *ProgressCache {
	return &ProgressCache{
		cache: cache,
		ttl:   30 * time.Minute,
	}
}

func jobProgressKey(jobID string) string {
	return fmt.Sprintf("scan:progress:%s", jobID)
}

const scannerStatusKey = "scan:status"

// SetJobProgress writes the progress snapshot for a job
func (p *ProgressCache) SetJobProgress(ctx context.Context, progress *JobProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal job progress: %w", err)
	}

	return p.cache.Client().Set(ctx, jobProgressKey(progress.JobID), data, p.ttl).Err()
}

// GetJobProgress reads the progress snapshot for a job.
// Returns nil without error when no snapshot exists.
func (p *ProgressCache) GetJobProgress(ctx context.Context, jobID string) (*JobProgress, error) {
	data, err := p.cache.Client().Get(ctx, jobProgressKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job progress: %w", err)
	}

	var progress JobProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job progress: %w", err)
	}

	return &progress, nil
}

// SetScannerStatus caches the serialized scanner status payload
func (p *ProgressCache) SetScannerStatus(ctx context.Context, status interface{}, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal scanner status: %w", err)
	}

	return p.cache.Client().Set(ctx, scannerStatusKey, data, ttl).Err()
}

// GetScannerStatus reads the cached scanner status payload into dest.
// Returns false without error on a cache miss.
func (p *ProgressCache) GetScannerStatus(ctx context.Context, dest interface{}) (bool, error) {
	data, err := p.cache.Client().Get(ctx, scannerStatusKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get scanner status: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal scanner status: %w", err)
	}

	return true, nil
}
