// Package api provides HTTP handlers for the voicedesk dashboard and widget API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/identity"
	"github.com/ashureev/voicedesk/internal/store"
	"github.com/ashureev/voicedesk/internal/widget"
)

const maxRequestBody = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo   store.Repository
	sm     *widget.SessionManager
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sm *widget.SessionManager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:   repo,
		sm:     sm,
		logger: logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ownedAssistant loads an assistant and checks it belongs to the caller.
// Missing and foreign assistants both report store.ErrNotFound.
func (h *Handler) ownedAssistant(ctx context.Context, id string) (*domain.AssistantConfig, error) {
	a, err := h.repo.GetAssistant(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != identity.UserIDFromContext(ctx) {
		return nil, store.ErrNotFound
	}
	return a, nil
}

// storeError maps repository errors onto HTTP responses.
func (h *Handler) storeError(w http.ResponseWriter, err error, op string, args ...any) {
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	h.logger.Error("Store operation failed", append([]any{"op", op, "error", err}, args...)...)
	Error(w, http.StatusInternalServerError, "internal error")
}
