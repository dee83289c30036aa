// Package config provides configuration management for the Rankly scan service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scanner   ScannerConfig
	Scheduler SchedulerConfig
	AI        AIConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ScannerConfig holds job pool configuration
type ScannerConfig struct {
	MaxConcurrentScans int           // Pool concurrency cap
	PollInterval       time.Duration // Delay between poll/dispatch cycles
	CleanupInterval    time.Duration // Delay between maintenance sweeps
	MaxRetries         int           // Retryable failure budget per job
	StuckThreshold     time.Duration // Running time before a slot counts as stuck
}

// SchedulerConfig holds recurring scan scheduler configuration
type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration // How often due businesses are swept
}

// AIConfig holds AI engine configuration
type AIConfig struct {
	Engines           []string // Enabled engines, queried in order
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	PerplexityAPIKey  string
	PerplexityModel   string
	PerplexityBaseURL string
	RequestsPerSecond float64 // Per-engine outbound rate limit
	RequestTimeout    time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "rankly"),
				User:           getEnv("POSTGRES_USER", "rankly"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "rankly"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Scanner: ScannerConfig{
			MaxConcurrentScans: getEnvAsInt("SCANNER_MAX_CONCURRENT", 3),
			PollInterval:       getEnvAsDuration("SCANNER_POLL_INTERVAL", 10*time.Second),
			CleanupInterval:    getEnvAsDuration("SCANNER_CLEANUP_INTERVAL", 5*time.Minute),
			MaxRetries:         getEnvAsInt("SCANNER_MAX_RETRIES", 3),
			StuckThreshold:     getEnvAsDuration("SCANNER_STUCK_THRESHOLD", 30*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getEnvAsBool("SCHEDULER_ENABLED", true),
			CheckInterval: getEnvAsDuration("SCHEDULER_CHECK_INTERVAL", 15*time.Minute),
		},
		AI: AIConfig{
			Engines:           splitList(getEnv("AI_ENGINES", "openai")),
			OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			PerplexityAPIKey:  getEnv("PERPLEXITY_API_KEY", ""),
			PerplexityModel:   getEnv("PERPLEXITY_MODEL", "sonar"),
			PerplexityBaseURL: getEnv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
			RequestsPerSecond: getEnvAsFloat("AI_REQUESTS_PER_SECOND", 2),
			RequestTimeout:    getEnvAsDuration("AI_REQUEST_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) validate() error {
	if c.Scanner.MaxConcurrentScans <= 0 {
		return fmt.Errorf("SCANNER_MAX_CONCURRENT must be positive, got %d", c.Scanner.MaxConcurrentScans)
	}
	if c.Scanner.MaxRetries < 0 {
		return fmt.Errorf("SCANNER_MAX_RETRIES cannot be negative, got %d", c.Scanner.MaxRetries)
	}
	if c.Scanner.PollInterval < time.Second {
		return fmt.Errorf("SCANNER_POLL_INTERVAL must be at least 1s, got %v", c.Scanner.PollInterval)
	}
	if len(c.AI.Engines) == 0 {
		return fmt.Errorf("AI_ENGINES must list at least one engine")
	}
	return nil
}

// splitList splits a comma-separated env value into trimmed entries
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
