package widget

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/voicedesk/internal/session"
)

// liveSession is a registered widget session and the means to tear down its connection.
type liveSession struct {
	session    *session.Session
	close      func(reason string)
	lastActive time.Time
}

// SessionManager tracks live widget sessions per assistant.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*liveSession
	now    func() time.Time
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*liveSession),
		now:    time.Now,
	}
}

// Get returns the live session for an assistant and session ID.
func (m *SessionManager) Get(assistantID, sessionID string) *session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[assistantID]; ok {
		if ls, ok := sessions[sessionID]; ok {
			return ls.session
		}
	}
	return nil
}

// Register adds a live session. closeFn is called when the manager evicts it.
func (m *SessionManager) Register(assistantID string, s *session.Session, closeFn func(reason string)) {
	if closeFn == nil {
		closeFn = func(string) {}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[assistantID]; !exists {
		m.active[assistantID] = make(map[string]*liveSession)
	}

	if existing, exists := m.active[assistantID][s.ID()]; exists && existing.session != s {
		existing.close("session replaced")
	}

	m.active[assistantID][s.ID()] = &liveSession{session: s, close: closeFn, lastActive: m.now()}
	slog.Info("Widget session registered", "assistant_id", assistantID, "session_id", s.ID())
}

// Unregister removes a live session if it is still the registered one.
func (m *SessionManager) Unregister(assistantID string, s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[assistantID]; ok {
		if current, exists := sessions[s.ID()]; exists && current.session == s {
			delete(sessions, s.ID())
			if len(sessions) == 0 {
				delete(m.active, assistantID)
			}
			slog.Info("Widget session unregistered", "assistant_id", assistantID, "session_id", s.ID())
		}
	}
}

// Touch records activity on a session.
func (m *SessionManager) Touch(assistantID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessions, ok := m.active[assistantID]; ok {
		if ls, ok := sessions[sessionID]; ok {
			ls.lastActive = m.now()
		}
	}
}

// CloseAssistant terminates every live session of an assistant.
func (m *SessionManager) CloseAssistant(assistantID string) int {
	m.mu.Lock()
	sessions, ok := m.active[assistantID]
	delete(m.active, assistantID)
	m.mu.Unlock()
	if !ok {
		return 0
	}

	for sid, ls := range sessions {
		ls.close("assistant unavailable")
		slog.Info("Widget session closed", "assistant_id", assistantID, "session_id", sid)
	}
	return len(sessions)
}

// CloseIdle terminates sessions with no activity for longer than ttl.
func (m *SessionManager) CloseIdle(ttl time.Duration) int {
	threshold := m.now().Add(-ttl)

	m.mu.Lock()
	var expired []*liveSession
	for assistantID, sessions := range m.active {
		for sid, ls := range sessions {
			if ls.lastActive.Before(threshold) {
				expired = append(expired, ls)
				delete(sessions, sid)
			}
		}
		if len(sessions) == 0 {
			delete(m.active, assistantID)
		}
	}
	m.mu.Unlock()

	for _, ls := range expired {
		ls.close("idle timeout")
	}
	return len(expired)
}

// CloseAll terminates every live session.
func (m *SessionManager) CloseAll(reason string) int {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]map[string]*liveSession)
	m.mu.Unlock()

	n := 0
	for _, sessions := range all {
		for _, ls := range sessions {
			ls.close(reason)
			n++
		}
	}
	return n
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}
