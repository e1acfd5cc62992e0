package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DB_PATH", "./data/test.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Responder.Addr != "" {
		t.Fatalf("expected stub responder by default, got addr %q", cfg.Responder.Addr)
	}
	if cfg.Responder.StubDelay != time.Second {
		t.Fatalf("expected 1s stub delay, got %v", cfg.Responder.StubDelay)
	}
	if cfg.Widget.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %v", cfg.Widget.SessionTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RESPONDER_TIMEOUT", "3s")
	t.Setenv("RESPONDER_RETRIES", "4")
	t.Setenv("WIDGET_SESSION_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Responder.Timeout != 3*time.Second || cfg.Responder.Retries != 4 {
		t.Fatalf("overrides not applied: %+v", cfg.Responder)
	}
	if cfg.Widget.SessionTTL != 30*time.Minute {
		t.Fatalf("invalid duration should fall back to default, got %v", cfg.Widget.SessionTTL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PORT", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty PORT")
	}
}

func TestValidate_RateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero rate limit")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		c := &Config{LogLevel: in}
		if got := c.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsDevelopment(t *testing.T) {
	if !(&Config{}).IsDevelopment() {
		t.Fatal("empty frontend url should be development")
	}
	if (&Config{FrontendURL: "https://voicedesk.example"}).IsDevelopment() {
		t.Fatal("public frontend url should not be development")
	}
}
