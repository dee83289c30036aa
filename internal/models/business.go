package models

import (
	"time"

	"github.com/rankly-scanner/internal/types"
)

// Business represents a monitored website/organization entity.
// If RecurringScans is true, ScanFrequency is non-nil; when recurring scans
// are disabled, NextScanDate may be cleared.
type Business struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	WebsiteURL     string               `json:"websiteUrl"`
	Industry       string               `json:"industry,omitempty"`
	Location       string               `json:"location,omitempty"`
	Description    string               `json:"description,omitempty"`
	OwnerUserID    *string              `json:"ownerUserId,omitempty"`
	OrgID          *string              `json:"orgId,omitempty"`
	RecurringScans bool                 `json:"recurringScans"`
	ScanFrequency  *types.ScanFrequency `json:"scanFrequency,omitempty"`
	LastScanDate   *time.Time           `json:"lastScanDate,omitempty"`
	NextScanDate   *time.Time           `json:"nextScanDate,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// ScanSchedule is the mutable scheduling state written back by the scan
// scheduler after queueing or attempting a scan.
type ScanSchedule struct {
	LastScanDate   *time.Time
	NextScanDate   *time.Time
	RecurringScans *bool                // nil leaves the flag unchanged
	ScanFrequency  *types.ScanFrequency // nil leaves the cadence unchanged
}
