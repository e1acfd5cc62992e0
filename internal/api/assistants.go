package api

import (
	"net/http"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

// AssistantHandler handles dashboard assistant, knowledge and conversation endpoints.
type AssistantHandler struct {
	*Handler
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(base *Handler) *AssistantHandler {
	return &AssistantHandler{Handler: base}
}

// RegisterRoutes registers the owner-scoped dashboard routes. The router must
// already carry the identity middleware.
func (h *AssistantHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Route("/assistants", func(r chi.Router) {
		r.Get("/", h.ListAssistants)
		r.Post("/", h.CreateAssistant)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetAssistant)
			r.Put("/", h.UpdateAssistant)
			r.Delete("/", h.DeleteAssistant)
			r.Post("/knowledge", h.CreateKnowledge)
			r.Get("/conversations", h.ListConversations)
		})
	})
	r.Put("/knowledge/{id}", h.UpdateKnowledge)
	r.Delete("/knowledge/{id}", h.DeleteKnowledge)
	r.Get("/conversations/{id}", h.GetConversation)
}

// GetMe returns the current owner's information.
func (h *AssistantHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"username":     user.Username,
		"created_at":   user.CreatedAt,
		"last_seen_at": user.LastSeenAt,
	})
}

// assistantInput is the request body for create and update. Nil fields are
// left unchanged on update.
type assistantInput struct {
	Name           *string          `json:"name"`
	Personality    *string          `json:"personality"`
	Language       *string          `json:"language"`
	Tone           *domain.Tone     `json:"tone"`
	PrimaryColor   *string          `json:"primary_color"`
	SecondaryColor *string          `json:"secondary_color"`
	Logo           *string          `json:"logo"`
	Position       *domain.Position `json:"position"`
	IsActive       *bool            `json:"is_active"`
}

func (in assistantInput) apply(a *domain.AssistantConfig) {
	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.Personality != nil {
		a.Personality = *in.Personality
	}
	if in.Language != nil {
		a.Language = *in.Language
	}
	if in.Tone != nil {
		a.Tone = *in.Tone
	}
	if in.PrimaryColor != nil {
		a.PrimaryColor = *in.PrimaryColor
	}
	if in.SecondaryColor != nil {
		a.SecondaryColor = *in.SecondaryColor
	}
	if in.Logo != nil {
		a.Logo = *in.Logo
	}
	if in.Position != nil {
		a.Position = *in.Position
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
}

// ListAssistants returns the owner's assistants, newest first.
func (h *AssistantHandler) ListAssistants(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	assistants, err := h.repo.ListAssistants(r.Context(), userID)
	if err != nil {
		h.storeError(w, err, "list assistants", "user_id", userID)
		return
	}
	JSON(w, http.StatusOK, assistants)
}

// CreateAssistant creates an assistant with defaults for omitted fields.
// New assistants are active unless is_active is false.
func (h *AssistantHandler) CreateAssistant(w http.ResponseWriter, r *http.Request) {
	var in assistantInput
	if err := decodeJSON(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := &domain.AssistantConfig{
		OwnerID:  identity.UserIDFromContext(r.Context()),
		IsActive: true,
	}
	in.apply(a)
	a.ApplyDefaults()
	if err := a.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.CreateAssistant(r.Context(), a); err != nil {
		h.storeError(w, err, "create assistant", "user_id", a.OwnerID)
		return
	}
	h.logger.Info("Assistant created", "assistant_id", a.ID, "user_id", a.OwnerID)
	JSON(w, http.StatusCreated, a)
}

// GetAssistant returns one of the owner's assistants.
func (h *AssistantHandler) GetAssistant(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAssistant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get assistant")
		return
	}
	JSON(w, http.StatusOK, a)
}

// UpdateAssistant applies a partial update. Deactivating an assistant closes
// its live widget sessions.
func (h *AssistantHandler) UpdateAssistant(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAssistant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get assistant")
		return
	}

	var in assistantInput
	if err := decodeJSON(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wasActive := a.IsActive
	in.apply(a)
	if err := a.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpdateAssistant(r.Context(), a); err != nil {
		h.storeError(w, err, "update assistant", "assistant_id", a.ID)
		return
	}

	if wasActive && !a.IsActive && h.sm != nil {
		closed := h.sm.CloseAssistant(a.ID)
		h.logger.Info("Assistant deactivated", "assistant_id", a.ID, "sessions_closed", closed)
	}
	JSON(w, http.StatusOK, a)
}

// DeleteAssistant removes an assistant with its knowledge and conversations.
func (h *AssistantHandler) DeleteAssistant(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAssistant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get assistant")
		return
	}

	if err := h.repo.DeleteAssistant(r.Context(), a.ID); err != nil {
		h.storeError(w, err, "delete assistant", "assistant_id", a.ID)
		return
	}

	closed := 0
	if h.sm != nil {
		closed = h.sm.CloseAssistant(a.ID)
	}
	h.logger.Info("Assistant deleted", "assistant_id", a.ID, "sessions_closed", closed)
	w.WriteHeader(http.StatusNoContent)
}
