package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListConversations returns an assistant's conversations, newest first.
// The optional limit query parameter bounds the result.
func (h *AssistantHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAssistant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get assistant")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	conversations, err := h.repo.ListConversations(r.Context(), a.ID, limit)
	if err != nil {
		h.storeError(w, err, "list conversations", "assistant_id", a.ID)
		return
	}
	JSON(w, http.StatusOK, conversations)
}

// GetConversation returns a conversation with its transcript.
func (h *AssistantHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get conversation")
		return
	}
	if _, err := h.ownedAssistant(r.Context(), c.AssistantID); err != nil {
		h.storeError(w, err, "get assistant")
		return
	}
	JSON(w, http.StatusOK, c)
}
