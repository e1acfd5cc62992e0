//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ashureev/voicedesk/internal/store"
	"github.com/ashureev/voicedesk/internal/widget"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type fakeChecker struct{ err error }

func (f fakeChecker) Health(context.Context) error { return f.err }

type fakeStats map[string]any

func (f fakeStats) Stats() map[string]any { return f }

func TestHealth(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "health.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer repo.Close()

	cases := []struct {
		name      string
		responder HealthChecker
		want      string
		check     string
	}{
		{"stub", nil, "healthy", "stub"},
		{"responder ok", fakeChecker{}, "healthy", "ok"},
		{"responder down", fakeChecker{err: errors.New("unavailable")}, "degraded", "unreachable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(repo, widget.NewSessionManager(), tc.responder, fakeStats{"dropped": 0})
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}
			var body struct {
				Status         string            `json:"status"`
				Checks         map[string]string `json:"checks"`
				ActiveSessions int               `json:"active_sessions"`
				Recorder       map[string]any    `json:"recorder"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tc.want || body.Checks["responder"] != tc.check || body.Checks["database"] != "ok" {
				t.Errorf("Unexpected health payload %+v", body)
			}
			if body.Recorder == nil {
				t.Error("Expected recorder stats")
			}
		})
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "health.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	_ = repo.Close()

	w := httptest.NewRecorder()
	NewHealthHandler(repo, nil, nil, nil).Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
