package models

import (
	"time"

	"github.com/rankly-scanner/internal/types"
)

// AnalysisJob represents one scheduled unit of scan work for a business.
//
// InProgress is a crash-detection trace only: the pool manager's in-memory
// running set is the authority for "currently executing". A row with
// InProgress=true whose id is not in the running set is an orphan.
type AnalysisJob struct {
	ID              string          `json:"id"`
	WebsiteURL      string          `json:"websiteUrl"`
	UserID          string          `json:"userId"`
	OrgID           string          `json:"orgId"`
	BusinessID      *string         `json:"businessId,omitempty"`
	Status          types.JobStatus `json:"status"`
	CurrentStep     string          `json:"currentStep"`
	ProgressPercent int             `json:"progressPercent"`
	ProgressMessage string          `json:"progressMessage"`
	RetryCount      int             `json:"retryCount"`
	InProgress      bool            `json:"inProgress"`

	// Extracted business payload. Populated up front for recurring scans,
	// filled in by the extraction stage otherwise.
	BusinessName string   `json:"businessName,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Location     string   `json:"location,omitempty"`
	Description  string   `json:"description,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`

	// IsRecurring marks jobs created by the scan scheduler. ManualData skips
	// website re-extraction because business data is already known.
	IsRecurring bool `json:"isRecurring"`
	ManualData  bool `json:"manualData"`

	Prompts []string `json:"prompts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
