package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/types"
)

// BusinessRepository handles business persistence
type BusinessRepository struct {
	db *PostgresDB
}

// NewBusinessRepository creates a new business repository
func NewBusinessRepository(db *PostgresDB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = `
	id, name, website_url, industry, location, description,
	owner_user_id, org_id, recurring_scans, scan_frequency,
	last_scan_date, next_scan_date, created_at, updated_at
`

// GetByID retrieves a business by ID
func (r *BusinessRepository) GetByID(ctx context.Context, businessID string) (*models.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1`

	row := r.db.Pool().QueryRow(ctx, query, businessID)
	business, err := scanBusiness(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("business not found: %s", businessID)
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	return business, nil
}

// FindDueForScan retrieves businesses with recurring scans enabled whose
// next scan is unset or has arrived
func (r *BusinessRepository) FindDueForScan(ctx context.Context, now time.Time) ([]*models.Business, error) {
	query := `
		SELECT ` + businessColumns + `
		FROM businesses
		WHERE recurring_scans = true
		  AND (next_scan_date IS NULL OR next_scan_date <= $1)
		ORDER BY next_scan_date ASC NULLS FIRST
	`

	rows, err := r.db.Pool().Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find due businesses: %w", err)
	}
	defer rows.Close()

	var businesses []*models.Business
	for rows.Next() {
		business, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, business)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating businesses: %w", err)
	}

	return businesses, nil
}

// UpdateScanSchedule writes back scheduling state after a scan is queued or
// attempted. Only the fields set on the schedule are updated.
func (r *BusinessRepository) UpdateScanSchedule(ctx context.Context, businessID string, schedule models.ScanSchedule) error {
	sets := []string{"last_scan_date = $2", "next_scan_date = $3", "updated_at = $4"}
	args := []interface{}{businessID, schedule.LastScanDate, schedule.NextScanDate, time.Now().UTC()}

	if schedule.RecurringScans != nil {
		args = append(args, *schedule.RecurringScans)
		sets = append(sets, fmt.Sprintf("recurring_scans = $%d", len(args)))
	}
	if schedule.ScanFrequency != nil {
		args = append(args, string(*schedule.ScanFrequency))
		sets = append(sets, fmt.Sprintf("scan_frequency = $%d", len(args)))
	}

	query := fmt.Sprintf("UPDATE businesses SET %s WHERE id = $1", strings.Join(sets, ", "))

	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update scan schedule: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("business not found: %s", businessID)
	}

	return nil
}

// ConfirmScanCompleted records the completion time of a finished scan
func (r *BusinessRepository) ConfirmScanCompleted(ctx context.Context, businessID string, completedAt time.Time) error {
	query := `UPDATE businesses SET last_scan_date = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, businessID, completedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to confirm scan completion: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("business not found: %s", businessID)
	}

	return nil
}

// scanBusiness scans a single business row
func scanBusiness(row pgx.Row) (*models.Business, error) {
	var business models.Business
	var frequency *string

	err := row.Scan(
		&business.ID,
		&business.Name,
		&business.WebsiteURL,
		&business.Industry,
		&business.Location,
		&business.Description,
		&business.OwnerUserID,
		&business.OrgID,
		&business.RecurringScans,
		&frequency,
		&business.LastScanDate,
		&business.NextScanDate,
		&business.CreatedAt,
		&business.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if frequency != nil {
		f := types.ScanFrequency(*frequency)
		business.ScanFrequency = &f
	}

	return &business, nil
}
