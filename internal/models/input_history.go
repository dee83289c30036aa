package models

import "time"

// InputHistory is the most recent keyword/prompt set captured for a business.
// Recurring scans seed their payload from the latest record.
type InputHistory struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Keywords   []string  `json:"keywords"`
	Prompts    []string  `json:"prompts"`
	CreatedAt  time.Time `json:"createdAt"`
}
