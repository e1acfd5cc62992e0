package api

import (
	"context"
	"net/http"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/store"
	"github.com/go-chi/chi/v5"
)

type knowledgeInput struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
}

func (in knowledgeInput) apply(k *domain.KnowledgeItem) {
	if in.Title != nil {
		k.Title = *in.Title
	}
	if in.Content != nil {
		k.Content = *in.Content
	}
	if in.Category != nil {
		k.Category = *in.Category
	}
	if in.Tags != nil {
		k.Tags = append([]string(nil), (*in.Tags)...)
	}
}

// ownedKnowledge loads a knowledge item whose assistant belongs to the caller.
func (h *Handler) ownedKnowledge(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	item, err := h.repo.GetKnowledgeItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := h.ownedAssistant(ctx, item.AssistantID); err != nil {
		return nil, store.ErrNotFound
	}
	return item, nil
}

// CreateKnowledge appends a knowledge item to one of the owner's assistants.
func (h *AssistantHandler) CreateKnowledge(w http.ResponseWriter, r *http.Request) {
	a, err := h.ownedAssistant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get assistant")
		return
	}

	var in knowledgeInput
	if err := decodeJSON(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item := &domain.KnowledgeItem{AssistantID: a.ID}
	in.apply(item)
	if err := item.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.CreateKnowledgeItem(r.Context(), item); err != nil {
		h.storeError(w, err, "create knowledge item", "assistant_id", a.ID)
		return
	}
	JSON(w, http.StatusCreated, item)
}

// UpdateKnowledge applies a partial update to a knowledge item.
func (h *AssistantHandler) UpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	item, err := h.ownedKnowledge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get knowledge item")
		return
	}

	var in knowledgeInput
	if err := decodeJSON(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.apply(item)
	if err := item.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpdateKnowledgeItem(r.Context(), item); err != nil {
		h.storeError(w, err, "update knowledge item", "knowledge_id", item.ID)
		return
	}
	JSON(w, http.StatusOK, item)
}

// DeleteKnowledge removes a knowledge item.
func (h *AssistantHandler) DeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	item, err := h.ownedKnowledge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "get knowledge item")
		return
	}

	if err := h.repo.DeleteKnowledgeItem(r.Context(), item.ID); err != nil {
		h.storeError(w, err, "delete knowledge item", "knowledge_id", item.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
