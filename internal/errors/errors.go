// Package errors provides categorized errors for the Rankly scan service.
// Categories drive both HTTP status mapping and the retry classification
// used by the job pool.
package errors

import (
	"fmt"
	"net/http"

	"github.com/rankly-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryEngine represents AI engine errors
	CategoryEngine ErrorCategory = "engine"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryEntitlement represents plan entitlement errors
	CategoryEntitlement ErrorCategory = "entitlement"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewEntitlementError creates a plan entitlement error
func NewEntitlementError(tier types.PlanTier, feature types.PlanFeature) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryEntitlement,
		StatusCode: http.StatusForbidden,
		Code:       "FEATURE_NOT_INCLUDED",
		Message:    fmt.Sprintf("plan tier %s does not include %s", tier, feature),
		Details: map[string]interface{}{
			"tier":    string(tier),
			"feature": string(feature),
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewEngineError creates an AI engine error
func NewEngineError(engine types.AIEngine, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryEngine,
		StatusCode: http.StatusBadGateway,
		Code:       "ENGINE_ERROR",
		Message:    fmt.Sprintf("AI engine error: %s", engine),
		Cause:      cause,
		Details: map[string]interface{}{
			"engine": string(engine),
		},
	}
}

// NewEngineTimeoutError creates an AI engine timeout error
func NewEngineTimeoutError(engine types.AIEngine) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryEngine,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "ENGINE_TIMEOUT",
		Message:    fmt.Sprintf("AI engine timeout: %s", engine),
		Details: map[string]interface{}{
			"engine": string(engine),
		},
	}
}

// NewEngineRateLimitError creates an AI engine rate limit error
func NewEngineRateLimitError(engine types.AIEngine) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "ENGINE_RATE_LIMIT",
		Message:    fmt.Sprintf("AI engine rate limit exceeded: %s", engine),
		Details: map[string]interface{}{
			"engine": string(engine),
		},
	}
}

// NewExtractionError creates a website extraction error
func NewExtractionError(website string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryEngine,
		StatusCode: http.StatusBadGateway,
		Code:       "EXTRACTION_ERROR",
		Message:    fmt.Sprintf("failed to extract business data from %s", website),
		Cause:      cause,
		Details: map[string]interface{}{
			"website": website,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	if svcErr, ok := err.(*types.ServiceError); ok {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable. Engine, database, cache
// and rate-limit errors are transient; validation and entitlement errors are
// permanent.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryEngine, CategoryDatabase, CategoryCache, CategoryRateLimit:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
