// Package session implements the widget conversation state machine.
//
// A Session moves between Idle, Listening and Processing. Its status is the
// only concurrency gate: voice and text input are accepted only while Idle,
// so at most one responder call is outstanding per session.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/responder"
	"github.com/ashureev/voicedesk/internal/speech"
	"github.com/google/uuid"
)

// Status is the conversation status of a session.
type Status int

const (
	Idle Status = iota
	Listening
	Processing
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of session state.
type Snapshot struct {
	Status         Status
	Transcript     []domain.Message
	LiveTranscript string
	IsOpen         bool
	// Version increases with every mutation.
	Version uint64
}

// Option configures a Session.
type Option func(*Session)

// WithObserver registers fn to receive a snapshot after every mutation.
// fn is called without the session lock held and may be called concurrently.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// WithMessageHook registers fn to receive every appended message.
func WithMessageHook(fn func(domain.Message)) Option {
	return func(s *Session) { s.hooks = append(s.hooks, fn) }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithID sets the session identifier. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is one widget conversation.
type Session struct {
	id        string
	cfg       domain.AssistantConfig
	responder responder.Responder
	capture   *speech.Capture
	playback  *speech.Playback
	logger    *slog.Logger
	now       func() time.Time
	observers []func(Snapshot)
	hooks     []func(domain.Message)

	mu         sync.Mutex
	status     Status
	transcript []domain.Message
	live       string
	open       bool
	welcomed   bool
	version    uint64
	seq        uint64
	turn       uint64
	turnCancel context.CancelFunc
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session for cfg. The session owns capture and playback over
// rec and synth until Close. A nil responder falls back to the stub.
func New(cfg domain.AssistantConfig, r responder.Responder, rec speech.Recognizer, synth speech.Synthesizer, opts ...Option) *Session {
	if r == nil {
		r = responder.NewStub()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:       cfg.Clone(),
		responder: r,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session_id", s.id, "assistant_id", cfg.ID)

	s.capture = speech.NewCapture(rec, s.onCaptureEvent, s.logger)
	s.playback = speech.NewPlayback(synth, s.logger)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Config returns a copy of the assistant configuration the session was built with.
func (s *Session) Config() domain.AssistantConfig {
	return s.cfg.Clone()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ToggleOpen flips widget visibility. The first open with an empty transcript
// appends and speaks a welcome message.
func (s *Session) ToggleOpen() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.open = !s.open

	var welcome *domain.Message
	if s.open && !s.welcomed && len(s.transcript) == 0 {
		s.welcomed = true
		msg := s.appendLocked(domain.RoleAssistant, WelcomeText(s.cfg.Name, s.cfg.Personality, s.cfg.Language))
		welcome = &msg
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if welcome != nil {
		s.emitMessage(*welcome)
	}
	s.emitSnapshot(snap)
	if welcome != nil {
		s.playback.Speak(welcome.Content, s.cfg.Language)
	}
}

// BeginVoiceInput starts a recognition attempt. It returns false, changing
// nothing, unless the session is Idle and speech recognition is available.
func (s *Session) BeginVoiceInput() bool {
	if !s.capture.Available() {
		return false
	}

	s.mu.Lock()
	if s.closed || s.status != Idle {
		s.mu.Unlock()
		return false
	}
	s.status = Listening
	s.live = ""
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("voice input started")
	s.emitSnapshot(snap)
	s.capture.Start(s.cfg.Language)
	return true
}

// StopVoiceInput cancels an in-flight recognition attempt. It has no effect
// on a responder call that is already running.
func (s *Session) StopVoiceInput() {
	s.capture.Stop()
}

// SubmitText starts a turn with typed text. It returns false, changing
// nothing, unless the session is Idle and text is not blank.
func (s *Session) SubmitText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	if s.closed || s.status != Idle {
		s.mu.Unlock()
		return false
	}
	s.beginTurnLocked(text)
	return true
}

// Reset clears the conversation, stops capture, closes the widget and
// discards the result of any in-flight turn.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.turn++
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	s.status = Idle
	s.transcript = nil
	s.live = ""
	s.open = false
	s.welcomed = false
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.capture.Stop()
	s.logger.Info("session reset")
	s.emitSnapshot(snap)
}

// Close releases capture and playback and cancels any in-flight responder
// call. It waits for the turn goroutine to exit. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.turn++
	s.mu.Unlock()

	s.cancel()
	s.capture.Close()
	s.wg.Wait()
	s.playback.Close()
	s.logger.Debug("session closed")
}

func (s *Session) onCaptureEvent(ev speech.Event) {
	s.mu.Lock()
	if s.closed || s.status != Listening {
		s.mu.Unlock()
		return
	}

	switch ev.Kind {
	case speech.EventInterim:
		if ev.Transcript == s.live {
			s.mu.Unlock()
			return
		}
		s.live = ev.Transcript
		s.version++
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.emitSnapshot(snap)

	case speech.EventFinal:
		s.live = ""
		text := strings.TrimSpace(ev.Transcript)
		if text == "" {
			s.status = Idle
			s.version++
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.emitSnapshot(snap)
			return
		}
		s.beginTurnLocked(text)

	default:
		s.status = Idle
		s.live = ""
		s.version++
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if ev.Err != nil {
			s.logger.Info("voice input failed", "error", ev.Err)
		}
		s.emitSnapshot(snap)
	}
}

// beginTurnLocked appends the user message, moves to Processing and starts
// the responder call. It must be called with s.mu held and releases it.
func (s *Session) beginTurnLocked(text string) {
	msg := s.appendLocked(domain.RoleUser, text)
	s.status = Processing
	s.live = ""
	s.turn++
	turn := s.turn
	ctx, cancel := context.WithCancel(s.ctx)
	s.turnCancel = cancel
	s.version++
	snap := s.snapshotLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.emitMessage(msg)
	s.emitSnapshot(snap)
	go s.runTurn(ctx, cancel, turn, text)
}

func (s *Session) runTurn(ctx context.Context, cancel context.CancelFunc, turn uint64, text string) {
	defer s.wg.Done()
	defer cancel()

	start := s.now()
	reply, err := s.responder.Respond(ctx, text, s.cfg)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = responder.ErrEmptyReply
	}

	s.mu.Lock()
	if s.closed || turn != s.turn {
		s.mu.Unlock()
		s.logger.Debug("discarding stale turn result", "turn", turn)
		return
	}
	if err != nil {
		s.logger.Warn("responder failed, using fallback", "error", err)
		reply = FallbackText(s.cfg.Language)
	}
	msg := s.appendLocked(domain.RoleAssistant, reply)
	s.status = Idle
	s.turnCancel = nil
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("turn completed", "duration_ms", s.now().Sub(start).Milliseconds(), "fallback", err != nil)
	s.emitMessage(msg)
	s.emitSnapshot(snap)
	s.playback.Speak(reply, s.cfg.Language)
}

func (s *Session) appendLocked(role domain.Role, content string) domain.Message {
	s.seq++
	msg := domain.Message{
		ID:        uuid.NewString(),
		Seq:       s.seq,
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	s.transcript = append(s.transcript, msg)
	return msg
}

func (s *Session) snapshotLocked() Snapshot {
	transcript := make([]domain.Message, len(s.transcript))
	copy(transcript, s.transcript)
	return Snapshot{
		Status:         s.status,
		Transcript:     transcript,
		LiveTranscript: s.live,
		IsOpen:         s.open,
		Version:        s.version,
	}
}

func (s *Session) emitSnapshot(snap Snapshot) {
	for _, fn := range s.observers {
		fn(snap)
	}
}

func (s *Session) emitMessage(msg domain.Message) {
	for _, fn := range s.hooks {
		fn(msg)
	}
}
