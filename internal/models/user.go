package models

import (
	"time"

	"github.com/rankly-scanner/internal/types"
)

// User represents an account that owns businesses and jobs
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	PlanTier  types.PlanTier `json:"planTier"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Organization groups users; the first member of a business's first linked
// organization is the fallback owner for scheduled scans.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
