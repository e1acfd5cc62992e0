package speech

import (
	"fmt"
	"log/slog"
	"sync"
)

// Recognizer is the platform speech-recognition seam.
//
// Start begins a single recognition attempt in the given locale and delivers
// events through emit, serially, until a terminal event. Stop requests early
// termination; anything the platform emits afterwards may be ignored.
type Recognizer interface {
	Available() bool
	Start(locale string, emit func(Event)) error
	Stop()
}

// Capture owns a Recognizer for the lifetime of a session.
type Capture struct {
	rec      Recognizer
	listener func(Event)
	logger   *slog.Logger

	mu      sync.Mutex
	active  bool
	attempt uint64
	closed  bool
}

// NewCapture wraps rec. listener receives the filtered event stream and is
// never called with the Capture's lock held.
func NewCapture(rec Recognizer, listener func(Event), logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = NoRecognizer{}
	}
	if listener == nil {
		listener = func(Event) {}
	}
	return &Capture{rec: rec, listener: listener, logger: logger}
}

// Available reports whether the platform can recognize speech.
func (c *Capture) Available() bool {
	return c.rec.Available()
}

// Active reports whether a recognition attempt is in progress.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start begins a recognition attempt for language. It is a no-op while an
// attempt is active. Failures are reported as an EventError, never returned.
func (c *Capture) Start(lang string) {
	c.mu.Lock()
	if c.active || c.closed {
		c.mu.Unlock()
		return
	}
	c.attempt++
	attempt := c.attempt
	c.active = true
	c.mu.Unlock()

	if !c.rec.Available() {
		c.deliver(attempt, Event{Kind: EventError, Err: ErrUnsupported})
		return
	}

	locale := Locale(lang)
	c.logger.Debug("speech capture starting", "locale", locale, "attempt", attempt)
	emit := func(ev Event) { c.deliver(attempt, ev) }
	if err := c.rec.Start(locale, emit); err != nil {
		c.deliver(attempt, Event{Kind: EventError, Err: fmt.Errorf("start recognition: %w", err)})
	}
}

// Stop ends the active attempt. The listener sees EventStopped unless the
// platform delivered a terminal event first; later platform events for the
// attempt are dropped. No-op when inactive.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt
	c.mu.Unlock()

	c.rec.Stop()
	c.deliver(attempt, Event{Kind: EventStopped})
}

// Close stops any active attempt and drops every later event.
func (c *Capture) Close() {
	c.mu.Lock()
	active := c.active
	c.closed = true
	c.active = false
	c.mu.Unlock()
	if active {
		c.rec.Stop()
	}
}

// deliver forwards ev if it belongs to the active attempt. The first terminal
// event ends the attempt; anything after it is dropped.
func (c *Capture) deliver(attempt uint64, ev Event) {
	c.mu.Lock()
	if c.closed || !c.active || attempt != c.attempt {
		c.mu.Unlock()
		c.logger.Debug("speech capture dropped stale event", "kind", ev.Kind.String(), "attempt", attempt)
		return
	}
	if ev.Kind.Terminal() {
		c.active = false
	}
	c.mu.Unlock()

	c.listener(ev)
}

// NoRecognizer is a platform without speech recognition.
type NoRecognizer struct{}

func (NoRecognizer) Available() bool                 { return false }
func (NoRecognizer) Start(string, func(Event)) error { return ErrUnsupported }
func (NoRecognizer) Stop()                           {}
