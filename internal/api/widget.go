package api

import (
	"net/http"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/speech"
	"github.com/go-chi/chi/v5"
)

// widgetConfig is the public subset of an assistant the embed script needs.
type widgetConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Language       string          `json:"language"`
	Locale         string          `json:"locale"`
	PrimaryColor   string          `json:"primary_color"`
	SecondaryColor string          `json:"secondary_color"`
	Logo           string          `json:"logo,omitempty"`
	Position       domain.Position `json:"position"`
	SocketPath     string          `json:"socket_path"`
}

// WidgetHandler serves the public, identity-free widget endpoints.
type WidgetHandler struct {
	*Handler
}

// NewWidgetHandler creates a new widget handler.
func NewWidgetHandler(base *Handler) *WidgetHandler {
	return &WidgetHandler{Handler: base}
}

// RegisterRoutes registers the public widget routes.
func (h *WidgetHandler) RegisterRoutes(r chi.Router) {
	r.Get("/widget/{assistantID}/config", h.GetConfig)
}

// GetConfig returns the public configuration of an active assistant.
func (h *WidgetHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	a, err := h.repo.GetAssistant(r.Context(), chi.URLParam(r, "assistantID"))
	if err != nil {
		h.storeError(w, err, "get assistant")
		return
	}
	if !a.IsActive {
		Error(w, http.StatusNotFound, "not found")
		return
	}

	JSON(w, http.StatusOK, widgetConfig{
		ID:             a.ID,
		Name:           a.Name,
		Language:       a.Language,
		Locale:         speech.Locale(a.Language),
		PrimaryColor:   a.PrimaryColor,
		SecondaryColor: a.SecondaryColor,
		Logo:           a.Logo,
		Position:       a.Position,
		SocketPath:     "/ws/widget/" + a.ID,
	})
}
