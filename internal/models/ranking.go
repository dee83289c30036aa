package models

import (
	"time"

	"github.com/rankly-scanner/internal/types"
)

// RankingRecord is one prompt/engine result persisted to the ranking history
// store by the processing stage of a scan.
type RankingRecord struct {
	JobID      string         `json:"jobId"`
	BusinessID string         `json:"businessId"`
	Prompt     string         `json:"prompt"`
	Engine     types.AIEngine `json:"engine"`
	Mentioned  bool           `json:"mentioned"`
	Position   int            `json:"position"`
	Snippet    string         `json:"snippet,omitempty"`
	Score      float64        `json:"score"` // overall visibility score for the scan (0-100)
	ScannedAt  time.Time      `json:"scannedAt"`
}

// FromRankedResult converts an engine result into a persistable record
func FromRankedResult(r *types.RankedResult, jobID, businessID string, score float64) *RankingRecord {
	return &RankingRecord{
		JobID:      jobID,
		BusinessID: businessID,
		Prompt:     r.Prompt,
		Engine:     r.Engine,
		Mentioned:  r.Mentioned,
		Position:   r.Position,
		Snippet:    r.Snippet,
		Score:      score,
		ScannedAt:  r.QueriedAt,
	}
}
