// Package history persists widget conversations asynchronously.
package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
	closeTimeout     = 5 * time.Second
	slowWrite        = 100 * time.Millisecond
)

// Store is the persistence the recorder writes to.
type Store interface {
	CreateConversation(ctx context.Context, c *domain.Conversation) error
	AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error
	EndConversation(ctx context.Context, id string, endedAt time.Time) error
}

// Config holds recorder settings.
type Config struct {
	QueueSize int
}

type eventKind int

const (
	eventStart eventKind = iota
	eventAppend
	eventEnd
)

type event struct {
	kind           eventKind
	conversationID string
	conversation   domain.Conversation
	message        domain.Message
	at             time.Time
}

// Recorder writes conversation events to the store in order on a single
// worker. Enqueueing never blocks; when the queue is full the new event is
// dropped.
type Recorder struct {
	store  Store
	logger *slog.Logger
	queue  chan event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewRecorder starts the recorder worker.
func NewRecorder(store Store, cfg Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Start records the beginning of a conversation. The conversation must carry its ID.
func (r *Recorder) Start(c domain.Conversation) {
	r.enqueue(event{kind: eventStart, conversationID: c.ID, conversation: c})
}

// Append records a transcript message.
func (r *Recorder) Append(conversationID string, msg domain.Message) {
	r.enqueue(event{kind: eventAppend, conversationID: conversationID, message: msg})
}

// End records the end of a conversation.
func (r *Recorder) End(conversationID string, at time.Time) {
	r.enqueue(event{kind: eventEnd, conversationID: conversationID, at: at})
}

func (r *Recorder) enqueue(ev event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		r.logger.Debug("recorder closed, dropping event", "conversation_id", ev.conversationID)
		return
	}

	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("recorder queue full, dropping event",
			"conversation_id", ev.conversationID,
			"queue_len", len(r.queue))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		start := time.Now()
		if err := r.write(ev); err != nil {
			r.failed.Add(1)
			r.logger.Warn("recorder write failed", "error", err, "conversation_id", ev.conversationID)
			continue
		}
		r.written.Add(1)

		if d := time.Since(start); d > slowWrite {
			r.logger.Warn("slow recorder write", "conversation_id", ev.conversationID, "duration_ms", d.Milliseconds())
		}
	}
}

func (r *Recorder) write(ev event) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch ev.kind {
	case eventStart:
		c := ev.conversation
		return r.store.CreateConversation(ctx, &c)
	case eventAppend:
		return r.store.AppendMessage(ctx, ev.conversationID, ev.message)
	default:
		return r.store.EndConversation(ctx, ev.conversationID, ev.at)
	}
}

// Close stops accepting events and waits for queued events to be written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	remaining := len(r.queue)
	close(r.queue)
	r.mu.Unlock()

	r.logger.Info("Recorder closing", "queue_remaining", remaining)
	select {
	case <-r.done:
	case <-time.After(closeTimeout):
		r.logger.Warn("Recorder shutdown timeout", "queue_remaining", len(r.queue))
	}
	return nil
}

// Stats returns recorder statistics.
func (r *Recorder) Stats() map[string]any {
	return map[string]any{
		"queue_len":      len(r.queue),
		"queue_capacity": cap(r.queue),
		"written":        r.written.Load(),
		"failed":         r.failed.Load(),
		"dropped":        r.dropped.Load(),
	}
}
