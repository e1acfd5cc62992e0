// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Repository defines the interface for persisting owners, assistants and conversations.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateAssistant inserts an assistant. ID and timestamps are filled when empty.
	CreateAssistant(ctx context.Context, a *domain.AssistantConfig) error

	// GetAssistant retrieves an assistant with its knowledge items.
	GetAssistant(ctx context.Context, id string) (*domain.AssistantConfig, error)

	// ListAssistants returns the owner's assistants, newest first, with knowledge items.
	ListAssistants(ctx context.Context, ownerID string) ([]*domain.AssistantConfig, error)

	// UpdateAssistant overwrites the assistant's scalar fields. Knowledge items are untouched.
	UpdateAssistant(ctx context.Context, a *domain.AssistantConfig) error

	// DeleteAssistant removes an assistant with its knowledge items and conversations.
	DeleteAssistant(ctx context.Context, id string) error

	// CreateKnowledgeItem appends a knowledge item to an assistant.
	CreateKnowledgeItem(ctx context.Context, item *domain.KnowledgeItem) error

	// GetKnowledgeItem retrieves a single knowledge item.
	GetKnowledgeItem(ctx context.Context, id string) (*domain.KnowledgeItem, error)

	// UpdateKnowledgeItem overwrites title, content, category and tags.
	UpdateKnowledgeItem(ctx context.Context, item *domain.KnowledgeItem) error

	// DeleteKnowledgeItem removes a knowledge item.
	DeleteKnowledgeItem(ctx context.Context, id string) error

	// CreateConversation records the start of a widget conversation.
	CreateConversation(ctx context.Context, c *domain.Conversation) error

	// AppendMessage stores a transcript message and bumps the conversation's activity time.
	AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error

	// EndConversation marks a conversation as ended. Ending an ended conversation is a no-op.
	EndConversation(ctx context.Context, id string, endedAt time.Time) error

	// EndStaleConversations ends open conversations with no activity for idle.
	EndStaleConversations(ctx context.Context, idle time.Duration) (int64, error)

	// ListConversations returns an assistant's conversations, newest first, without messages.
	ListConversations(ctx context.Context, assistantID string, limit int) ([]*domain.Conversation, error)

	// GetConversation retrieves a conversation with its messages in transcript order.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
