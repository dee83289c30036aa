package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rankly-scanner/internal/models"
)

// InputHistoryRepository handles keyword/prompt history persistence
type InputHistoryRepository struct {
	db *PostgresDB
}

// NewInputHistoryRepository creates a new input history repository
func NewInputHistoryRepository(db *PostgresDB) *InputHistoryRepository {
	return &InputHistoryRepository{db: db}
}

// Create inserts a new input history record
func (r *InputHistoryRepository) Create(ctx context.Context, history *models.InputHistory) error {
	query := `
		INSERT INTO input_history (id, business_id, keywords, prompts, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		history.ID,
		history.BusinessID,
		history.Keywords,
		history.Prompts,
		history.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create input history: %w", err)
	}

	return nil
}

// LatestForBusiness returns the most recent input history for a business.
// Returns nil without error when no history exists.
func (r *InputHistoryRepository) LatestForBusiness(ctx context.Context, businessID string) (*models.InputHistory, error) {
	query := `
		SELECT id, business_id, keywords, prompts, created_at
		FROM input_history
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var history models.InputHistory

	err := r.db.Pool().QueryRow(ctx, query, businessID).Scan(
		&history.ID,
		&history.BusinessID,
		&history.Keywords,
		&history.Prompts,
		&history.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get input history: %w", err)
	}

	return &history, nil
}
