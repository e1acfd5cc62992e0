// Package identity provides anonymous per-device owner identity for the dashboard.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/store"
)

const (
	OwnerCookieName   = "voicedesk_owner_id"
	SessionHeaderName = "X-Voicedesk-Session-ID"
	ownerCookieMaxAge = 365 * 24 * time.Hour
	lastSeenInterval  = time.Hour
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

var (
	ownerIDPattern   = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// UserIDFromContext extracts the owner ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the owner display name from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns a context carrying the given owner. Used by tests and
// internal callers that bypass the cookie middleware.
func WithUser(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, deriveUsername(userID))
}

func generateOwnerID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate owner id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidOwnerID(id string) bool {
	return ownerIDPattern.MatchString(id)
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "owner-" + userID[len(userID)-8:]
	}
	return "owner"
}

// ensureUser creates the owner row on first sight and refreshes last_seen_at
// at most once per lastSeenInterval afterwards.
func ensureUser(ctx context.Context, repo store.Repository, userID string, now time.Time) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user != nil {
		if now.Sub(user.LastSeenAt) < lastSeenInterval {
			return nil
		}
		return repo.UpdateLastSeen(ctx, userID, now)
	}

	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setOwnerCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OwnerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ownerCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(ownerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateOwnerID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(OwnerCookieName); err == nil && isValidOwnerID(c.Value) {
		setOwnerCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateOwnerID()
	if err != nil {
		return "", err
	}
	setOwnerCookie(w, id, isDev)
	return id, nil
}

// Middleware injects the anonymous dashboard owner into the request context.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := getOrCreateOwnerID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish owner identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureUser(r.Context(), repo, userID, time.Now()); err != nil {
				http.Error(w, `{"error":"failed to initialize owner"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// SessionIDFromRequest returns the per-tab session id sent in the header or
// the session_id query parameter, or "" when absent or malformed. Browsers
// cannot set headers on websocket upgrades, hence the query fallback.
func SessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	sid = strings.TrimSpace(sid)
	if !sessionIDPattern.MatchString(sid) {
		return ""
	}
	return sid
}

// IPFromRequest returns a normalized remote IP for rate limiting and transcripts.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
