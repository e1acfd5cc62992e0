// Package domain contains core domain types for the voicedesk application.
package domain

import (
	"time"
)

// User is an anonymous dashboard owner. Assistants are scoped to the user that created them.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Owns reports whether the assistant belongs to this user.
func (u *User) Owns(a *AssistantConfig) bool {
	return u != nil && a != nil && a.OwnerID == u.UserID
}
