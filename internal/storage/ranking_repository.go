package storage

import (
	"context"
	"fmt"

	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/types"
)

// RankingRepository handles ranking history persistence in ClickHouse.
// Scan results are append-only and queried over time ranges, which fits
// ClickHouse much better than the transactional store.
type RankingRepository struct {
	db *ClickHouseDB
}

// NewRankingRepository creates a new ranking repository
func NewRankingRepository(db *ClickHouseDB) *RankingRepository {
	return &RankingRepository{db: db}
}

// BatchInsert inserts all ranking records of a scan in a single batch
func (r *RankingRepository) BatchInsert(ctx context.Context, records []*models.RankingRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ranking_history (
			job_id, business_id, prompt, engine, mentioned, position, snippet, score, scanned_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ranking batch: %w", err)
	}

	for _, record := range records {
		err := batch.Append(
			record.JobID,
			record.BusinessID,
			record.Prompt,
			string(record.Engine),
			record.Mentioned,
			int32(record.Position),
			record.Snippet,
			record.Score,
			record.ScannedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append ranking record: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert ranking records: %w", err)
	}

	return nil
}

// ListByBusiness retrieves recent ranking records for a business
func (r *RankingRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]*models.RankingRecord, error) {
	query := `
		SELECT job_id, business_id, prompt, engine, mentioned, position, snippet, score, scanned_at
		FROM ranking_history
		WHERE business_id = ?
		ORDER BY scanned_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking records: %w", err)
	}
	defer rows.Close()

	var records []*models.RankingRecord
	for rows.Next() {
		var record models.RankingRecord
		var engine string
		var position int32

		err := rows.Scan(
			&record.JobID,
			&record.BusinessID,
			&record.Prompt,
			&engine,
			&record.Mentioned,
			&position,
			&record.Snippet,
			&record.Score,
			&record.ScannedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranking record: %w", err)
		}

		record.Engine = types.AIEngine(engine)
		record.Position = int(position)
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranking records: %w", err)
	}

	return records, nil
}
