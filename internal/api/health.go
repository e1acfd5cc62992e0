package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/voicedesk/internal/store"
	"github.com/ashureev/voicedesk/internal/widget"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StatsReporter exposes counters for the health payload.
type StatsReporter interface {
	Stats() map[string]any
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo      store.Repository
	sm        *widget.SessionManager
	responder HealthChecker
	recorder  StatsReporter
}

// NewHealthHandler creates a new health handler. responder and recorder may be nil.
func NewHealthHandler(repo store.Repository, sm *widget.SessionManager, responder HealthChecker, recorder StatsReporter) *HealthHandler {
	return &HealthHandler{repo: repo, sm: sm, responder: responder, recorder: recorder}
}

// Health returns the health status of the API and its dependencies.
// The responder is optional, so its failure degrades without failing the check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		status["status"] = "unhealthy"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.responder == nil:
		checks["responder"] = "stub"
	case h.responder.Health(ctx) != nil:
		checks["responder"] = "unreachable"
		if statusCode == http.StatusOK {
			status["status"] = "degraded"
		}
	default:
		checks["responder"] = "ok"
	}

	if h.sm != nil {
		status["active_sessions"] = h.sm.Count()
	}
	if h.recorder != nil {
		status["recorder"] = h.recorder.Stats()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
