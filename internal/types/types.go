// Package types provides common type definitions for the Rankly scan system.
package types

import "time"

// PlanTier represents the subscription plan level
type PlanTier string

const (
	// TierFree represents the free plan with manual scans only
	TierFree PlanTier = "free"
	// TierStarter represents the entry-level paid plan
	TierStarter PlanTier = "starter"
	// TierPro represents the professional plan
	TierPro PlanTier = "pro"
	// TierAgency represents the agency plan with multi-business support
	TierAgency PlanTier = "agency"
)

// PlanFeature represents a gated product capability
type PlanFeature string

const (
	// FeatureRecurringScans allows scheduled background scans
	FeatureRecurringScans PlanFeature = "recurring_scans"
	// FeatureCompetitorTracking allows tracking competitor visibility
	FeatureCompetitorTracking PlanFeature = "competitor_tracking"
	// FeatureMultiEngine allows querying more than one AI engine per scan
	FeatureMultiEngine PlanFeature = "multi_engine"
)

// planFeatures maps each tier to the features it unlocks
var planFeatures = map[PlanTier]map[PlanFeature]bool{
	TierFree: {},
	TierStarter: {
		FeatureRecurringScans: true,
	},
	TierPro: {
		FeatureRecurringScans:     true,
		FeatureCompetitorTracking: true,
		FeatureMultiEngine:        true,
	},
	TierAgency: {
		FeatureRecurringScans:     true,
		FeatureCompetitorTracking: true,
		FeatureMultiEngine:        true,
	},
}

// HasFeature reports whether a plan tier includes a feature.
// Unknown tiers have no features.
func HasFeature(tier PlanTier, feature PlanFeature) bool {
	features, ok := planFeatures[tier]
	if !ok {
		return false
	}
	return features[feature]
}

// ScanFrequency represents the recurring scan cadence for a business
type ScanFrequency string

const (
	// FrequencyDaily scans every 24 hours
	FrequencyDaily ScanFrequency = "daily"
	// FrequencyWeekly scans every 7 days
	FrequencyWeekly ScanFrequency = "weekly"
	// FrequencyMonthly scans on the same day of the next calendar month
	FrequencyMonthly ScanFrequency = "monthly"
)

// IsValid reports whether the frequency is one of the supported cadences
func (f ScanFrequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of an analysis job
type JobStatus string

const (
	// JobStatusNotStarted represents a job waiting to be picked up by the pool
	JobStatusNotStarted JobStatus = "not-started"
	// JobStatusPromptForming represents the prompt generation stage
	JobStatusPromptForming JobStatus = "prompt-forming"
	// JobStatusModelAnalysis represents the AI engine query stage
	JobStatusModelAnalysis JobStatus = "model-analysis"
	// JobStatusProcessing represents the scoring and persistence stage
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted represents a successfully finished job (terminal)
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailedRetryable represents a recoverable failure awaiting requeue
	JobStatusFailedRetryable JobStatus = "failed-retryable"
	// JobStatusFailedPermanent represents an unrecoverable failure (terminal)
	JobStatusFailedPermanent JobStatus = "failed-permanent"
)

// IsTerminal reports whether the status can never transition again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailedPermanent
}

// AIEngine identifies an external AI answer engine queried during a scan
type AIEngine string

const (
	// EngineOpenAI represents the OpenAI chat completion engine
	EngineOpenAI AIEngine = "openai"
	// EnginePerplexity represents the Perplexity answer engine
	EnginePerplexity AIEngine = "perplexity"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// RankedResult is one AI engine's answer for a single prompt
type RankedResult struct {
	Prompt    string    `json:"prompt"`
	Engine    AIEngine  `json:"engine"`
	Mentioned bool      `json:"mentioned"`         // business appeared in the answer
	Position  int       `json:"position"`          // 1-based rank of the mention, 0 if absent
	Snippet   string    `json:"snippet,omitempty"` // surrounding answer text
	QueriedAt time.Time `json:"queriedAt"`
}
