package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultPlaybackQueue = 16

// Utterance is one request to render text audibly.
type Utterance struct {
	Text   string
	Locale string
	Rate   float64
	Pitch  float64
}

// Synthesizer is the platform speech-synthesis seam. Speak may block until
// the utterance has been handed to (or rendered by) the platform.
type Synthesizer interface {
	Available() bool
	Speak(ctx context.Context, u Utterance) error
}

// Playback renders utterances one at a time on a background worker so that
// callers never block on synthesis.
type Playback struct {
	synth  Synthesizer
	logger *slog.Logger
	queue  chan Utterance

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPlayback starts the playback worker for synth.
func NewPlayback(synth Synthesizer, logger *slog.Logger) *Playback {
	if logger == nil {
		logger = slog.Default()
	}
	if synth == nil {
		synth = NoSynthesizer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Playback{
		synth:  synth,
		logger: logger,
		queue:  make(chan Utterance, defaultPlaybackQueue),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Available reports whether the platform can synthesize speech.
func (p *Playback) Available() bool {
	return p.synth.Available()
}

// Speak queues text for playback in language. It never blocks and silently
// does nothing when synthesis is unsupported or text is blank.
func (p *Playback) Speak(text, lang string) {
	text = strings.TrimSpace(text)
	if text == "" || !p.synth.Available() || p.ctx.Err() != nil {
		return
	}

	u := Utterance{Text: text, Locale: Locale(lang), Rate: DefaultRate, Pitch: DefaultPitch}
	select {
	case p.queue <- u:
		return
	default:
	}

	// Queue full: drop the oldest pending utterance to make room.
	select {
	case dropped := <-p.queue:
		p.logger.Warn("speech playback queue full, dropping oldest utterance", "dropped_len", len(dropped.Text))
	default:
	}
	select {
	case p.queue <- u:
	default:
		p.logger.Warn("speech playback failed to queue utterance", "text_len", len(u.Text))
	}
}

func (p *Playback) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case u := <-p.queue:
			start := time.Now()
			if err := p.synth.Speak(p.ctx, u); err != nil && p.ctx.Err() == nil {
				p.logger.Warn("speech playback failed", "error", err, "locale", u.Locale)
				continue
			}
			p.logger.Debug("speech playback rendered", "locale", u.Locale, "duration_ms", time.Since(start).Milliseconds())
		}
	}
}

// Close stops the worker and discards pending utterances.
func (p *Playback) Close() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}

// NoSynthesizer is a platform without speech synthesis.
type NoSynthesizer struct{}

func (NoSynthesizer) Available() bool                        { return false }
func (NoSynthesizer) Speak(context.Context, Utterance) error { return ErrUnsupported }
