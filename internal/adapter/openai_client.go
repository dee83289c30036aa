package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/rankly-scanner/internal/circuitbreaker"
	"github.com/rankly-scanner/internal/config"
	"github.com/rankly-scanner/internal/errors"
	"github.com/rankly-scanner/internal/types"
)

// OpenAIClient handles chat completion calls to the OpenAI API
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
}

// NewOpenAIClient creates a new OpenAI chat completion client
func NewOpenAIClient(cfg config.AIConfig) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		baseURL:    cfg.OpenAIBaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    newEngineLimiter(cfg.RequestsPerSecond),
		breaker:    newEngineBreaker(types.EngineOpenAI),
	}
}

// chatMessage is a single message in a chat completion request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest represents the chat completions request body
type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatCompletionResponse represents the chat completions response body
type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Name returns the engine identifier
func (c *OpenAIClient) Name() types.AIEngine {
	return types.EngineOpenAI
}

// Query sends a prompt to OpenAI and returns the answer text
func (c *OpenAIClient) Query(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var answer string
	err := c.breaker.Execute(ctx, func() error {
		var execErr error
		answer, execErr = c.doChatCompletion(ctx, prompt)
		return execErr
	})
	if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyRequests {
		return "", errors.NewEngineError(types.EngineOpenAI, err)
	}
	return answer, err
}

// doChatCompletion performs a single chat completion request
func (c *OpenAIClient) doChatCompletion(ctx context.Context, prompt string) (string, error) {
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

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.NewEngineTimeoutError(types.EngineOpenAI)
		}
		return "", errors.NewEngineError(types.EngineOpenAI, err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", errors.NewEngineError(types.EngineOpenAI, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.NewEngineRateLimitError(types.EngineOpenAI)
	case resp.StatusCode != http.StatusOK:
		return "", errors.NewEngineError(types.EngineOpenAI,
			fmt.Errorf("OpenAI API error: status=%d, body=%s", resp.StatusCode, string(body)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", errors.NewEngineError(types.EngineOpenAI, fmt.Errorf("failed to parse response: %w", err))
	}
	if completion.Error != nil {
		return "", errors.NewEngineError(types.EngineOpenAI,
			fmt.Errorf("OpenAI API error: %s (%s)", completion.Error.Message, completion.Error.Type))
	}
	if len(completion.Choices) == 0 {
		return "", errors.NewEngineError(types.EngineOpenAI, fmt.Errorf("empty choices in response"))
	}

	log.Printf("[OpenAI] Completion in %v (model=%s)", time.Since(start), c.model)
	return completion.Choices[0].Message.Content, nil
}
