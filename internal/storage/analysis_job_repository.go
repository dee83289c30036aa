package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/rankly-scanner/internal/errors"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/types"
)

// AnalysisJobRepository handles analysis job persistence
type AnalysisJobRepository struct {
	db *PostgresDB
}

// NewAnalysisJobRepository creates a new analysis job repository
func NewAnalysisJobRepository(db *PostgresDB) *AnalysisJobRepository {
	return &AnalysisJobRepository{db: db}
}

const jobColumns = `
	id, website_url, user_id, org_id, business_id, status, current_step,
	progress_percent, progress_message, retry_count, in_progress,
	business_name, industry, location, description, keywords,
	is_recurring, manual_data, prompts, created_at, updated_at
`

// Create inserts a new analysis job record
func (r *AnalysisJobRepository) Create(ctx context.Context, job *models.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (
			id, website_url, user_id, org_id, business_id, status, current_step,
			progress_percent, progress_message, retry_count, in_progress,
			business_name, industry, location, description, keywords,
			is_recurring, manual_data, prompts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		job.WebsiteURL,
		job.UserID,
		job.OrgID,
		job.BusinessID,
		string(job.Status),
		job.CurrentStep,
		job.ProgressPercent,
		job.ProgressMessage,
		job.RetryCount,
		job.InProgress,
		job.BusinessName,
		job.Industry,
		job.Location,
		job.Description,
		job.Keywords,
		job.IsRecurring,
		job.ManualData,
		job.Prompts,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create analysis job: %w", err)
	}

	return nil
}

// GetByID retrieves an analysis job by ID
func (r *AnalysisJobRepository) GetByID(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1`

	row := r.db.Pool().QueryRow(ctx, query, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("analysis job", jobID)
		}
		return nil, fmt.Errorf("failed to get analysis job: %w", err)
	}

	return job, nil
}

// Update writes back the full mutable state of a job
func (r *AnalysisJobRepository) Update(ctx context.Context, job *models.AnalysisJob) error {
	job.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE analysis_jobs
		SET status = $2, current_step = $3, progress_percent = $4,
			progress_message = $5, retry_count = $6, in_progress = $7,
			business_name = $8, industry = $9, location = $10, description = $11,
			keywords = $12, prompts = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.CurrentStep,
		job.ProgressPercent,
		job.ProgressMessage,
		job.RetryCount,
		job.InProgress,
		job.BusinessName,
		job.Industry,
		job.Location,
		job.Description,
		job.Keywords,
		job.Prompts,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update analysis job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("analysis job not found: %s", job.ID)
	}

	return nil
}

// UpdateProgress updates only the progress fields of a job
func (r *AnalysisJobRepository) UpdateProgress(ctx context.Context, jobID string, status types.JobStatus, step string, percent int, message string) error {
	query := `
		UPDATE analysis_jobs
		SET status = $2, current_step = $3, progress_percent = $4,
			progress_message = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, string(status), step, percent, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("analysis job not found: %s", jobID)
	}

	return nil
}

// FindPending retrieves jobs eligible for dispatch, FIFO by creation time.
// Both fresh jobs and jobs awaiting a retry are eligible.
func (r *AnalysisJobRepository) FindPending(ctx context.Context, limit int) ([]*models.AnalysisJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE status = ANY($1) AND in_progress = false
		ORDER BY created_at ASC
		LIMIT $2
	`

	pending := []string{string(types.JobStatusNotStarted), string(types.JobStatusFailedRetryable)}

	rows, err := r.db.Pool().Query(ctx, query, pending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// FindInProgress retrieves jobs whose in_progress trace flag is set. The
// caller compares against the in-memory running set to detect orphans.
func (r *AnalysisJobRepository) FindInProgress(ctx context.Context) ([]*models.AnalysisJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE in_progress = true
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find in-progress jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountPending returns the number of jobs waiting for a pool slot
func (r *AnalysisJobRepository) CountPending(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM analysis_jobs
		WHERE status = ANY($1) AND in_progress = false
	`

	pending := []string{string(types.JobStatusNotStarted), string(types.JobStatusFailedRetryable)}

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, pending).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}

	return count, nil
}

// CountByStatusSince returns the number of jobs that reached the given
// status on or after the cutoff
func (r *AnalysisJobRepository) CountByStatusSince(ctx context.Context, status types.JobStatus, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM analysis_jobs
		WHERE status = $1 AND updated_at >= $2
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, string(status), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}

	return count, nil
}

// scanJob scans a single job row
func scanJob(row pgx.Row) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	var status string

	err := row.Scan(
		&job.ID,
		&job.WebsiteURL,
		&job.UserID,
		&job.OrgID,
		&job.BusinessID,
		&status,
		&job.CurrentStep,
		&job.ProgressPercent,
		&job.ProgressMessage,
		&job.RetryCount,
		&job.InProgress,
		&job.BusinessName,
		&job.Industry,
		&job.Location,
		&job.Description,
		&job.Keywords,
		&job.IsRecurring,
		&job.ManualData,
		&job.Prompts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = types.JobStatus(status)
	return &job, nil
}

// collectJobs scans all rows into job models
func collectJobs(rows pgx.Rows) ([]*models.AnalysisJob, error) {
	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis jobs: %w", err)
	}

	return jobs, nil
}
