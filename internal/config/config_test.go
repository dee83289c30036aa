package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("SCANNER_POLL_INTERVAL", "30s"); err != nil {
		t.Fatalf("Failed to set SCANNER_POLL_INTERVAL: %v", err)
	}
	if err := os.Setenv("AI_ENGINES", "openai, perplexity"); err != nil {
		t.Fatalf("Failed to set AI_ENGINES: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("SCANNER_POLL_INTERVAL")
		_ = os.Unsetenv("AI_ENGINES")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Scanner.PollInterval != 30*time.Second {
		t.Errorf("Scanner.PollInterval = %v, want %v", cfg.Scanner.PollInterval, 30*time.Second)
	}

	if len(cfg.AI.Engines) != 2 || cfg.AI.Engines[0] != "openai" || cfg.AI.Engines[1] != "perplexity" {
		t.Errorf("AI.Engines = %v, want [openai perplexity]", cfg.AI.Engines)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Scanner.MaxConcurrentScans != 3 {
		t.Errorf("Scanner.MaxConcurrentScans = %v, want 3", cfg.Scanner.MaxConcurrentScans)
	}
	if cfg.Scanner.MaxRetries != 3 {
		t.Errorf("Scanner.MaxRetries = %v, want 3", cfg.Scanner.MaxRetries)
	}
	if cfg.Scanner.CleanupInterval != 5*time.Minute {
		t.Errorf("Scanner.CleanupInterval = %v, want 5m", cfg.Scanner.CleanupInterval)
	}
	if !cfg.Scheduler.Enabled {
		t.Error("Scheduler.Enabled = false, want true by default")
	}
	if cfg.Scheduler.CheckInterval != 15*time.Minute {
		t.Errorf("Scheduler.CheckInterval = %v, want 15m", cfg.Scheduler.CheckInterval)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero concurrency rejected", "SCANNER_MAX_CONCURRENT", "0"},
		{"negative concurrency rejected", "SCANNER_MAX_CONCURRENT", "-2"},
		{"sub-second poll interval rejected", "SCANNER_POLL_INTERVAL", "100ms"},
		{"empty engine list rejected", "AI_ENGINES", " , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.Setenv(tt.key, tt.value); err != nil {
				t.Fatalf("Failed to set env var: %v", err)
			}
			defer func() {
				_ = os.Unsetenv(tt.key)
			}()

			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%q expected error, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"single entry", "openai", []string{"openai"}},
		{"two entries with spaces", "openai, perplexity", []string{"openai", "perplexity"}},
		{"trailing comma", "openai,", []string{"openai"}},
		{"blank entries dropped", " , ,openai", []string{"openai"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("splitList(%q) = %v, want %v", tt.value, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("splitList(%q)[%d] = %q, want %q", tt.value, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOTSET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
