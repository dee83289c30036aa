package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/rankly-scanner/internal/circuitbreaker"
	"github.com/rankly-scanner/internal/config"
	"github.com/rankly-scanner/internal/errors"
	"github.com/rankly-scanner/internal/types"
)

// PerplexityClient handles calls to the Perplexity answer API.
// The API is chat-completions compatible, so it reuses the same wire types
// as the OpenAI client.
type PerplexityClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
}

// NewPerplexityClient creates a new Perplexity API client
func NewPerplexityClient(cfg config.AIConfig) *PerplexityClient {
	return &PerplexityClient{
		apiKey:     cfg.PerplexityAPIKey,
		model:      cfg.PerplexityModel,
		baseURL:    cfg.PerplexityBaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    newEngineLimiter(cfg.RequestsPerSecond),
		breaker:    newEngineBreaker(types.EnginePerplexity),
	}
}

// Name returns the engine identifier
func (c *PerplexityClient) Name() types.AIEngine {
	return types.EnginePerplexity
}

// Query sends a prompt to Perplexity and returns the answer text
func (c *PerplexityClient) Query(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var answer string
	err := c.breaker.Execute(ctx, func() error {
		var execErr error
		answer, execErr = c.doQuery(ctx, prompt)
		return execErr
	})
	if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyRequests {
		return "", errors.NewEngineError(types.EnginePerplexity, err)
	}
	return answer, err
}

func (c *PerplexityClient) doQuery(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.NewEngineTimeoutError(types.EnginePerplexity)
		}
		return "", errors.NewEngineError(types.EnginePerplexity, err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", errors.NewEngineError(types.EnginePerplexity, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.NewEngineRateLimitError(types.EnginePerplexity)
	case resp.StatusCode != http.StatusOK:
		return "", errors.NewEngineError(types.EnginePerplexity,
			fmt.Errorf("Perplexity API error: status=%d, body=%s", resp.StatusCode, string(body)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", errors.NewEngineError(types.EnginePerplexity, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(completion.Choices) == 0 {
		return "", errors.NewEngineError(types.EnginePerplexity, fmt.Errorf("empty choices in response"))
	}

	return completion.Choices[0].Message.Content, nil
}
