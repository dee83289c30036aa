// Package adapter provides AI answer engine adapters for the scan pipeline.
package adapter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rankly-scanner/internal/circuitbreaker"
	"github.com/rankly-scanner/internal/config"
	"github.com/rankly-scanner/internal/types"
)

// AIProvider defines the interface for AI answer engines
type AIProvider interface {
	// Name returns the engine identifier
	Name() types.AIEngine

	// Query sends a prompt to the engine and returns the answer text
	Query(ctx context.Context, prompt string) (string, error)
}

// NewProviders constructs one provider per enabled engine, in config order.
// Called once at startup.
func NewProviders(cfg config.AIConfig) ([]AIProvider, error) {
	providers := make([]AIProvider, 0, len(cfg.Engines))
	for _, engine := range cfg.Engines {
		switch types.AIEngine(engine) {
		case types.EngineOpenAI:
			if cfg.OpenAIAPIKey == "" {
				return nil, fmt.Errorf("openai engine enabled but OPENAI_API_KEY is not set")
			}
			providers = append(providers, NewOpenAIClient(cfg))
		case types.EnginePerplexity:
			if cfg.PerplexityAPIKey == "" {
				return nil, fmt.Errorf("perplexity engine enabled but PERPLEXITY_API_KEY is not set")
			}
			providers = append(providers, NewPerplexityClient(cfg))
		default:
			return nil, fmt.Errorf("unknown AI engine %q: must be one of openai, perplexity", engine)
		}
	}
	return providers, nil
}

// newEngineLimiter builds the outbound rate limiter shared by all engine clients
func newEngineLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// newEngineBreaker builds the circuit breaker guarding a single engine
func newEngineBreaker(engine types.AIEngine) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(string(engine)))
}
