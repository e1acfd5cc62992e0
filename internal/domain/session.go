package domain

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry. Messages are immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AudioURL  string    `json:"audio_url,omitempty"`
}

// Conversation is the persisted record of one widget session.
type Conversation struct {
	ID           string     `json:"id"`
	AssistantID  string     `json:"assistant_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastActiveAt time.Time  `json:"last_active_at"`
	UserLocation string     `json:"user_location,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	Messages     []Message  `json:"messages,omitempty"`
}

// Ended reports whether the conversation has been closed.
func (c *Conversation) Ended() bool {
	return c.EndedAt != nil
}

// Duration returns how long the conversation lasted, or has lasted so far.
func (c *Conversation) Duration(now time.Time) time.Duration {
	end := now
	if c.EndedAt != nil {
		end = *c.EndedAt
	}
	if end.Before(c.StartedAt) {
		return 0
	}
	return end.Sub(c.StartedAt)
}
