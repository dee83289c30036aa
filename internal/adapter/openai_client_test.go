package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rankly-scanner/internal/config"
	"github.com/rankly-scanner/internal/errors"
)

func testAIConfig(baseURL string) config.AIConfig {
	return config.AIConfig{
		Engines:           []string{"openai"},
		OpenAIAPIKey:      "test-key",
		OpenAIModel:       "gpt-4o-mini",
		OpenAIBaseURL:     baseURL,
		RequestsPerSecond: 100,
		RequestTimeout:    5 * time.Second,
	}
}

func TestOpenAIQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "best plumber in austin" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: "1. Acme Plumbing"}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(testAIConfig(srv.URL))
	answer, err := client.Query(context.Background(), "best plumber in austin")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if answer != "1. Acme Plumbing" {
		t.Errorf("answer = %q", answer)
	}
}

func TestOpenAIQueryRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testAIConfig(srv.URL))
	_, err := client.Query(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !errors.IsRetryable(err) {
		t.Errorf("rate limit error should be retryable, got %v", err)
	}
}

func TestOpenAIQueryEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(testAIConfig(srv.URL))
	if _, err := client.Query(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AIConfig
		wantLen int
		wantErr bool
	}{
		{
			name: "openai only",
			cfg: config.AIConfig{
				Engines:      []string{"openai"},
				OpenAIAPIKey: "k",
			},
			wantLen: 1,
		},
		{
			name: "both engines",
			cfg: config.AIConfig{
				Engines:          []string{"openai", "perplexity"},
				OpenAIAPIKey:     "k",
				PerplexityAPIKey: "k",
			},
			wantLen: 2,
		},
		{
			name: "missing key",
			cfg: config.AIConfig{
				Engines: []string{"openai"},
			},
			wantErr: true,
		},
		{
			name: "unknown engine",
			cfg: config.AIConfig{
				Engines: []string{"gemini"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers, err := NewProviders(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProviders failed: %v", err)
			}
			if len(providers) != tt.wantLen {
				t.Errorf("got %d providers, want %d", len(providers), tt.wantLen)
			}
		})
	}
}
