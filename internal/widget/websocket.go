package widget

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/identity"
	"github.com/ashureev/voicedesk/internal/responder"
	"github.com/ashureev/voicedesk/internal/session"
	"github.com/ashureev/voicedesk/internal/speech"
	"github.com/ashureev/voicedesk/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Client to server frame types.
const (
	frameCapabilities  = "capabilities"
	frameToggle        = "toggle"
	frameVoiceStart    = "voice_start"
	frameVoiceStop     = "voice_stop"
	frameText          = "text"
	frameSpeechInterim = "speech_interim"
	frameSpeechFinal   = "speech_final"
	frameSpeechError   = "speech_error"
	frameSpeechEnd     = "speech_end"
	frameReset         = "reset"
	framePing          = "ping"
)

// Server to client frame types.
const (
	frameRender       = "render"
	frameCaptureStart = "capture_start"
	frameCaptureStop  = "capture_stop"
	frameSpeak        = "speak"
	framePong         = "pong"
	frameError        = "error"
)

const (
	outboundQueue  = 64
	writeTimeout   = 10 * time.Second
	maxFrameBytes  = 64 << 10
	errRateLimited = "rate_limited"
)

// inFrame is a message from the browser.
type inFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	Error       string `json:"error,omitempty"`
	Recognition bool   `json:"recognition,omitempty"`
	Synthesis   bool   `json:"synthesis,omitempty"`
}

// outFrame is a message to the browser.
type outFrame struct {
	Type   string  `json:"type"`
	View   *View   `json:"view,omitempty"`
	Locale string  `json:"locale,omitempty"`
	Text   string  `json:"text,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// TranscriptRecorder persists conversation events.
type TranscriptRecorder interface {
	Start(c domain.Conversation)
	Append(conversationID string, msg domain.Message)
	End(conversationID string, at time.Time)
}

// AssistantSource loads assistant configuration.
type AssistantSource interface {
	GetAssistant(ctx context.Context, id string) (*domain.AssistantConfig, error)
}

// WebSocketHandler serves widget sessions over websocket.
type WebSocketHandler struct {
	assistants AssistantSource
	responder  responder.Responder
	sm         *SessionManager
	limiter    *VisitorLimiter
	recorder   TranscriptRecorder
	idle       time.Duration
	logger     *slog.Logger

	active sync.WaitGroup
}

// NewWebSocketHandler creates a new widget websocket handler.
func NewWebSocketHandler(assistants AssistantSource, r responder.Responder, sm *SessionManager, limiter *VisitorLimiter, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		assistants: assistants,
		responder:  r,
		sm:         sm,
		limiter:    limiter,
		logger:     logger,
	}
}

// SetRecorder sets the recorder that persists widget conversations.
func (h *WebSocketHandler) SetRecorder(rec TranscriptRecorder) {
	h.recorder = rec
}

// SetConversationIdle sets how long a conversation may go without messages
// before the next message starts a new one. It should match the sweep TTL
// that ends stale conversations in the store.
func (h *WebSocketHandler) SetConversationIdle(d time.Duration) {
	h.idle = d
}

// Wait blocks until every accepted websocket session has finished its
// teardown, or ctx is done. Hijacked connections are not tracked by
// http.Server.Shutdown.
func (h *WebSocketHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assistantID := chi.URLParam(r, "assistantID")
	visitorIP := identity.IPFromRequest(r)

	cfg, err := h.assistants.GetAssistant(r.Context(), assistantID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !cfg.IsActive) {
		http.Error(w, `{"error":"assistant not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load assistant", "error", err, "assistant_id", assistantID)
		http.Error(w, `{"error":"failed to load assistant"}`, http.StatusInternalServerError)
		return
	}

	// Widgets are embedded on third-party sites, so any origin may connect.
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "assistant_id", assistantID)
		return
	}
	h.active.Add(1)
	defer h.active.Done()
	ws.SetReadLimit(maxFrameBytes)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "assistant_id", assistantID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &widgetConn{
		ws:     ws,
		ctx:    ctx,
		out:    make(chan outFrame, outboundQueue),
		logger: h.logger,
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		c.writeLoop()
	}()

	// A reconnecting tab reuses its id and replaces its previous session.
	sessionID := identity.SessionIDFromRequest(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := h.logger.With("session_id", sessionID, "assistant_id", assistantID)
	tlog := &transcriptLog{
		recorder:    h.recorder,
		assistantID: assistantID,
		idle:        h.idle,
		location:    visitorIP,
		userAgent:   r.UserAgent(),
	}
	remote := newRemoteSpeech(c.send)

	sess := session.New(*cfg, h.responder, remote.recognizer(), remote.synthesizer(),
		session.WithID(sessionID),
		session.WithLogger(h.logger),
		session.WithMessageHook(tlog.onMessage),
		session.WithObserver(func(snap session.Snapshot) {
			view := Render(snap, *cfg)
			_ = c.send(outFrame{Type: frameRender, View: &view})
		}),
	)

	h.sm.Register(assistantID, sess, func(reason string) {
		logger.Info("Widget session evicted", "reason", reason)
		cancel()
	})

	logger.Info("Widget session started", "ip", visitorIP)
	view := Render(sess.Snapshot(), *cfg)
	_ = c.send(outFrame{Type: frameRender, View: &view})

	h.readLoop(ctx, c, sess, remote, tlog, visitorIP, logger)

	cancel()
	sess.Close()
	<-writerDone
	h.sm.Unregister(assistantID, sess)
	tlog.end(time.Now())
	logger.Info("Widget session ended")
}

//nolint:gocognit // Frame dispatch coordinates session, speech and rate limit state.
func (h *WebSocketHandler) readLoop(ctx context.Context, c *widgetConn, sess *session.Session, remote *remoteSpeech, tlog *transcriptLog, visitorIP string, logger *slog.Logger) {
	assistantID := sess.Config().ID
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				logger.Debug("WebSocket closed", "error", err)
			} else {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		h.sm.Touch(assistantID, sess.ID())

		var msg inFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.send(outFrame{Type: frameError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case frameCapabilities:
			remote.setCapabilities(msg.Recognition, msg.Synthesis)
			logger.Debug("Browser capabilities", "recognition", msg.Recognition, "synthesis", msg.Synthesis)
		case frameToggle:
			sess.ToggleOpen()
		case frameVoiceStart:
			h.startTurn(c, visitorIP, sess.BeginVoiceInput)
		case frameVoiceStop:
			sess.StopVoiceInput()
		case frameText:
			content := msg.Content
			h.startTurn(c, visitorIP, func() bool { return sess.SubmitText(content) })
		case frameSpeechInterim:
			remote.deliver(speech.Event{Kind: speech.EventInterim, Transcript: msg.Content})
		case frameSpeechFinal:
			remote.deliver(speech.Event{Kind: speech.EventFinal, Transcript: msg.Content})
		case frameSpeechError:
			remote.deliver(speech.Event{Kind: speech.EventError, Err: recognitionError(msg.Error)})
		case frameSpeechEnd:
			remote.deliver(speech.Event{Kind: speech.EventStopped})
		case frameReset:
			sess.Reset()
			tlog.end(time.Now())
		case framePing:
			_ = c.send(outFrame{Type: framePong})
		default:
			_ = c.send(outFrame{Type: frameError, Error: "unknown message type"})
		}
	}
}

// startTurn charges the visitor one turn and runs start. The charge is
// refunded when the session does not accept the input.
func (h *WebSocketHandler) startTurn(c *widgetConn, visitorIP string, start func() bool) {
	if h.limiter == nil {
		start()
		return
	}
	refund, ok := h.limiter.Reserve(visitorIP)
	if !ok {
		_ = c.send(outFrame{Type: frameError, Error: errRateLimited})
		return
	}
	if !start() {
		refund()
	}
}

// widgetConn serializes writes to a websocket through a single writer goroutine.
type widgetConn struct {
	ws     *websocket.Conn
	ctx    context.Context
	out    chan outFrame
	logger *slog.Logger
}

func (c *widgetConn) send(f outFrame) error {
	select {
	case c.out <- f:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// writeLoop drains the outbound queue. Render frames older than the last
// rendered version are skipped.
func (c *widgetConn) writeLoop() {
	var lastRender uint64
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.out:
			if f.Type == frameRender && f.View != nil {
				if lastRender != 0 && f.View.Version <= lastRender {
					continue
				}
				lastRender = f.View.Version
			}
			if err := c.write(f); err != nil {
				if c.ctx.Err() == nil {
					c.logger.Debug("WebSocket write error", "error", err)
				}
				return
			}
		}
	}
}

func (c *widgetConn) write(f outFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// transcriptLog maps session messages onto persisted conversations. A
// conversation starts with its first message and ends on reset, disconnect
// or when the next message arrives after idle without one. The store sweep
// ends such conversations on its own, so a late message must not reuse them.
type transcriptLog struct {
	recorder    TranscriptRecorder
	assistantID string
	idle        time.Duration
	location    string
	userAgent   string

	mu             sync.Mutex
	conversationID string
	lastAt         time.Time
}

func (t *transcriptLog) onMessage(msg domain.Message) {
	if t.recorder == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversationID != "" && t.idle > 0 && msg.Timestamp.Sub(t.lastAt) >= t.idle {
		t.recorder.End(t.conversationID, t.lastAt)
		t.conversationID = ""
	}
	if t.conversationID == "" {
		t.conversationID = uuid.NewString()
		t.recorder.Start(domain.Conversation{
			ID:           t.conversationID,
			AssistantID:  t.assistantID,
			StartedAt:    msg.Timestamp,
			UserLocation: t.location,
			UserAgent:    t.userAgent,
		})
	}
	t.recorder.Append(t.conversationID, msg)
	t.lastAt = msg.Timestamp
}

func (t *transcriptLog) end(at time.Time) {
	if t.recorder == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conversationID != "" {
		t.recorder.End(t.conversationID, at)
		t.conversationID = ""
	}
}
