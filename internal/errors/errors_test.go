package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rankly-scanner/internal/types"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"engine error is retryable", NewEngineError(types.EngineOpenAI, fmt.Errorf("boom")), true},
		{"engine timeout is retryable", NewEngineTimeoutError(types.EnginePerplexity), true},
		{"rate limit is retryable", NewEngineRateLimitError(types.EngineOpenAI), true},
		{"database error is retryable", NewDatabaseError("insert", fmt.Errorf("conn reset")), true},
		{"cache error is retryable", NewCacheError("set", fmt.Errorf("timeout")), true},
		{"extraction error is retryable", NewExtractionError("example.com", fmt.Errorf("503")), true},
		{"invalid parameter is permanent", NewInvalidParameterError("prompts", "empty"), false},
		{"not found is permanent", NewNotFoundError("analysis job", "abc"), false},
		{"entitlement error is permanent", NewEntitlementError(types.TierFree, types.FeatureRecurringScans), false},
		{"internal error is permanent", NewInternalError("panic", fmt.Errorf("nil deref")), false},
		{"plain error is permanent", fmt.Errorf("some error"), false},
		{"nil is not retryable", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid parameter maps to 400", NewInvalidParameterError("limit", "not a number"), http.StatusBadRequest},
		{"not found maps to 404", NewNotFoundError("analysis job", "abc"), http.StatusNotFound},
		{"entitlement maps to 403", NewEntitlementError(types.TierFree, types.FeatureRecurringScans), http.StatusForbidden},
		{"rate limit maps to 429", NewEngineRateLimitError(types.EngineOpenAI), http.StatusTooManyRequests},
		{"engine error maps to 502", NewEngineError(types.EngineOpenAI, fmt.Errorf("boom")), http.StatusBadGateway},
		{"engine timeout maps to 504", NewEngineTimeoutError(types.EngineOpenAI), http.StatusGatewayTimeout},
		{"plain error maps to 500", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatusCode(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCategorizePassesThrough(t *testing.T) {
	orig := NewDatabaseError("query", fmt.Errorf("conn reset"))
	if got := Categorize(orig); got != orig {
		t.Errorf("Categorize should return the same *CategorizedError, got %v", got)
	}
}

func TestCategorizeServiceError(t *testing.T) {
	svc := &types.ServiceError{Code: "SOME_CODE", Message: "something happened"}
	got := Categorize(svc)

	if got.Code != "SOME_CODE" {
		t.Errorf("Code = %q, want SOME_CODE", got.Code)
	}
	if got.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", got.StatusCode)
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewDatabaseError("ping", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}
}

func TestToServiceError(t *testing.T) {
	err := NewInvalidParameterError("action", "unknown")
	svc := err.ToServiceError()

	if svc.Code != "INVALID_PARAMETER" {
		t.Errorf("Code = %q, want INVALID_PARAMETER", svc.Code)
	}
	if svc.Details["parameter"] != "action" {
		t.Errorf("Details[parameter] = %v, want action", svc.Details["parameter"])
	}
}
