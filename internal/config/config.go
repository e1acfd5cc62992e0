// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LogLevel    string
	Widget      WidgetConfig
	Responder   ResponderConfig
	RateLimit   RateLimitConfig
	Recorder    RecorderConfig
	Retry       RetryConfig
}

// WidgetConfig controls live widget sessions.
type WidgetConfig struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// ResponderConfig selects and tunes the conversation responder.
// An empty Addr selects the canned-reply stub.
type ResponderConfig struct {
	Addr      string
	Timeout   time.Duration
	Retries   int
	StubDelay time.Duration
}

// RateLimitConfig bounds how many turns a single visitor may start.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// RecorderConfig controls transcript persistence.
type RecorderConfig struct {
	QueueSize int
}

// RetryConfig controls SQLite busy retries.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/voicedesk.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Widget: WidgetConfig{
			SessionTTL:    getEnvDuration("WIDGET_SESSION_TTL", 30*time.Minute),
			SweepInterval: getEnvDuration("WIDGET_SWEEP_INTERVAL", time.Minute),
		},
		Responder: ResponderConfig{
			Addr:      getEnv("RESPONDER_ADDR", ""),
			Timeout:   getEnvDuration("RESPONDER_TIMEOUT", 15*time.Second),
			Retries:   getEnvInt("RESPONDER_RETRIES", 2),
			StubDelay: getEnvDuration("RESPONDER_STUB_DELAY", time.Second),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 5),
		},
		Recorder: RecorderConfig{
			QueueSize: getEnvInt("RECORDER_QUEUE_SIZE", 256),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Widget.SessionTTL <= 0 {
		return fmt.Errorf("WIDGET_SESSION_TTL must be > 0")
	}
	if c.Widget.SweepInterval <= 0 {
		return fmt.Errorf("WIDGET_SWEEP_INTERVAL must be > 0")
	}
	if c.Responder.Timeout <= 0 {
		return fmt.Errorf("RESPONDER_TIMEOUT must be > 0")
	}
	if c.Responder.Retries < 1 {
		return fmt.Errorf("RESPONDER_RETRIES must be >= 1")
	}
	if c.Responder.StubDelay < 0 {
		return fmt.Errorf("RESPONDER_STUB_DELAY cannot be negative")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be > 0")
	}
	if c.Recorder.QueueSize <= 0 {
		return fmt.Errorf("RECORDER_QUEUE_SIZE must be > 0")
	}
	if c.Retry.DatabaseMaxRetries < 1 {
		return fmt.Errorf("DB_MAX_RETRIES must be >= 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
