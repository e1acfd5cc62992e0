package responder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
)

// DefaultStubDelay is the artificial latency of the canned-reply stub.
const DefaultStubDelay = time.Second

var stubTemplates = map[string][3]string{
	"es": {
		`Entiendo tu consulta sobre "%s". Basándome en mi conocimiento, puedo ayudarte con eso.`,
		"Gracias por tu pregunta. Permíteme buscar en mi base de conocimiento para darte la mejor respuesta.",
		"Es una excelente pregunta. Según la información que tengo disponible, te puedo decir que...",
	},
	"en": {
		`I understand your question about "%s". Based on what I know, I can help you with that.`,
		"Thanks for your question. Let me look through my knowledge base to give you the best answer.",
		"That's a great question. From the information I have available, I can tell you that...",
	},
}

// Stub answers every utterance with one of three canned replies after a fixed delay.
// It stands in for a retrieval-augmented backend.
type Stub struct {
	delay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// StubOption configures a Stub.
type StubOption func(*Stub)

// WithDelay overrides the artificial latency.
func WithDelay(d time.Duration) StubOption {
	return func(s *Stub) { s.delay = d }
}

// WithSeed makes template selection deterministic.
func WithSeed(seed uint64) StubOption {
	return func(s *Stub) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewStub creates a stub responder.
func NewStub(opts ...StubOption) *Stub {
	s := &Stub{
		delay: DefaultStubDelay,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Respond waits for the configured delay, then picks a template uniformly at random.
func (s *Stub) Respond(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	templates := stubTemplatesFor(cfg.Language)
	s.mu.Lock()
	i := s.rng.IntN(len(templates))
	s.mu.Unlock()

	if i == 0 {
		return fmt.Sprintf(templates[0], strings.TrimSpace(utterance)), nil
	}
	return templates[i], nil
}

func stubTemplatesFor(lang string) [3]string {
	base := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if t, ok := stubTemplates[base]; ok {
		return t
	}
	return stubTemplates["en"]
}
