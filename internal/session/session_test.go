package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/responder"
	"github.com/ashureev/voicedesk/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type fakeRecognizer struct {
	mu        sync.Mutex
	available bool
	starts    []string
	stops     int
	emit      func(speech.Event)
}

func (f *fakeRecognizer) Available() bool { return f.available }

func (f *fakeRecognizer) Start(locale string, emit func(speech.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, locale)
	f.emit = emit
	return nil
}

func (f *fakeRecognizer) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeRecognizer) send(ev speech.Event) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	emit(ev)
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []speech.Utterance
}

func (f *fakeSynth) Available() bool { return true }

func (f *fakeSynth) Speak(_ context.Context, u speech.Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.mu.Unlock()
	return nil
}

func (f *fakeSynth) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.spoken))
	for _, u := range f.spoken {
		out = append(out, u.Text)
	}
	return out
}

// gate is a responder that blocks until released or cancelled.
type gate struct {
	release chan struct{}
	reply   string
	err     error

	mu       sync.Mutex
	calls    int
	ctxErr   error
	received []string
}

func newGate(reply string, err error) *gate {
	return &gate{release: make(chan struct{}), reply: reply, err: err}
}

func (g *gate) Respond(ctx context.Context, utterance string, _ domain.AssistantConfig) (string, error) {
	g.mu.Lock()
	g.calls++
	g.received = append(g.received, utterance)
	g.mu.Unlock()

	select {
	case <-g.release:
		return g.reply, g.err
	case <-ctx.Done():
		g.mu.Lock()
		g.ctxErr = ctx.Err()
		g.mu.Unlock()
		return "", ctx.Err()
	}
}

func (g *gate) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func anaConfig() domain.AssistantConfig {
	return domain.AssistantConfig{ID: "a-1", Name: "Ana", Personality: "friendly", Language: "es"}
}

func newTestSession(t *testing.T, cfg domain.AssistantConfig, r responder.Responder, rec speech.Recognizer, synth speech.Synthesizer, opts ...Option) *Session {
	t.Helper()
	s := New(cfg, r, rec, synth, opts...)
	t.Cleanup(s.Close)
	return s
}

func waitIdle(t *testing.T, s *Session) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().Status == Idle }, waitFor, 5*time.Millisecond)
	return s.Snapshot()
}

func TestScenario_Ana(t *testing.T) {
	s := newTestSession(t, anaConfig(), responder.NewStub(responder.WithDelay(0)), nil, nil)

	s.ToggleOpen()
	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.RoleAssistant, snap.Transcript[0].Role)
	assert.Contains(t, snap.Transcript[0].Content, "Ana")
	assert.True(t, snap.IsOpen)

	require.True(t, s.SubmitText("hola"))
	snap = waitIdle(t, s)
	require.Len(t, snap.Transcript, 3)
	assert.Equal(t, domain.RoleUser, snap.Transcript[1].Role)
	assert.Equal(t, "hola", snap.Transcript[1].Content)
	assert.Equal(t, domain.RoleAssistant, snap.Transcript[2].Role)

	assert.False(t, s.SubmitText(""))
	assert.Len(t, s.Snapshot().Transcript, 3)
}

func TestSingleInFlightTurn(t *testing.T) {
	g := newGate("respuesta", nil)
	rec := &fakeRecognizer{available: true}
	s := newTestSession(t, anaConfig(), g, rec, nil)

	require.True(t, s.SubmitText("primera"))
	before := s.Snapshot()
	assert.Equal(t, Processing, before.Status)

	assert.False(t, s.SubmitText("segunda"))
	assert.False(t, s.BeginVoiceInput())

	after := s.Snapshot()
	assert.Equal(t, before.Transcript, after.Transcript)
	assert.Equal(t, before.LiveTranscript, after.LiveTranscript)
	assert.Equal(t, before.Version, after.Version)
	assert.Empty(t, rec.starts)

	close(g.release)
	snap := waitIdle(t, s)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, 1, g.callCount())
}

func TestUserMessageAppendedBeforeResponderCall(t *testing.T) {
	g := newGate("respuesta", nil)
	s := newTestSession(t, anaConfig(), g, nil, nil)

	require.True(t, s.SubmitText("hola"))
	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.RoleUser, snap.Transcript[0].Role)

	close(g.release)
	snap = waitIdle(t, s)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, domain.RoleUser, snap.Transcript[0].Role)
	assert.Equal(t, domain.RoleAssistant, snap.Transcript[1].Role)
	assert.Equal(t, "respuesta", snap.Transcript[1].Content)
}

func TestMessageIdentifiersIncrease(t *testing.T) {
	s := newTestSession(t, anaConfig(), responder.NewStub(responder.WithDelay(0)), nil, nil)

	s.ToggleOpen()
	for _, text := range []string{"uno", "dos", "tres"} {
		require.True(t, s.SubmitText(text))
		waitIdle(t, s)
	}

	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 7)
	seen := make(map[string]bool)
	for i, msg := range snap.Transcript {
		assert.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
		if i > 0 {
			assert.Greater(t, msg.Seq, snap.Transcript[i-1].Seq)
		}
	}
}

func TestEmptyInputIsIgnored(t *testing.T) {
	g := newGate("", nil)
	rec := &fakeRecognizer{available: true}
	s := newTestSession(t, anaConfig(), g, rec, nil)

	before := s.Snapshot()
	assert.False(t, s.SubmitText(""))
	assert.False(t, s.SubmitText("   \t\n"))
	assert.Equal(t, before, s.Snapshot())

	require.True(t, s.BeginVoiceInput())
	rec.send(speech.Event{Kind: speech.EventFinal, Transcript: "   "})

	snap := s.Snapshot()
	assert.Equal(t, Idle, snap.Status)
	assert.Empty(t, snap.Transcript)
	assert.Empty(t, snap.LiveTranscript)
	assert.Equal(t, 0, g.callCount())
}

func TestResponderFailureAppendsFallback(t *testing.T) {
	cases := []struct {
		name string
		lang string
		r    responder.Responder
		want string
	}{
		{
			name: "error spanish",
			lang: "es",
			r: responder.Func(func(context.Context, string, domain.AssistantConfig) (string, error) {
				return "", errors.New("backend down")
			}),
			want: fallbackES,
		},
		{
			name: "error english",
			lang: "en",
			r: responder.Func(func(context.Context, string, domain.AssistantConfig) (string, error) {
				return "", errors.New("backend down")
			}),
			want: fallbackEN,
		},
		{
			name: "blank reply",
			lang: "es-MX",
			r: responder.Func(func(context.Context, string, domain.AssistantConfig) (string, error) {
				return "  ", nil
			}),
			want: fallbackES,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := anaConfig()
			cfg.Language = tc.lang
			synth := &fakeSynth{}
			s := newTestSession(t, cfg, tc.r, nil, synth)

			require.True(t, s.SubmitText("hola"))
			snap := waitIdle(t, s)

			require.Len(t, snap.Transcript, 2)
			assert.Equal(t, "hola", snap.Transcript[0].Content)
			assert.Equal(t, domain.RoleAssistant, snap.Transcript[1].Role)
			assert.Equal(t, tc.want, snap.Transcript[1].Content)
			require.Eventually(t, func() bool { return len(synth.texts()) == 1 }, waitFor, 5*time.Millisecond)
			assert.Equal(t, tc.want, synth.texts()[0])
		})
	}
}

func TestWelcomeOnce(t *testing.T) {
	synth := &fakeSynth{}
	s := newTestSession(t, anaConfig(), responder.NewStub(responder.WithDelay(0)), nil, synth)

	s.ToggleOpen()
	s.ToggleOpen()
	s.ToggleOpen()

	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "¡Hola! Soy Ana. friendly ¿En qué puedo ayudarte hoy?", snap.Transcript[0].Content)
	assert.True(t, snap.IsOpen)

	require.Eventually(t, func() bool { return len(synth.texts()) == 1 }, waitFor, 5*time.Millisecond)
	synth.mu.Lock()
	assert.Equal(t, "es-ES", synth.spoken[0].Locale)
	synth.mu.Unlock()
}

func TestNoWelcomeWhenTranscriptNotEmpty(t *testing.T) {
	s := newTestSession(t, anaConfig(), responder.NewStub(responder.WithDelay(0)), nil, nil)

	require.True(t, s.SubmitText("hola"))
	waitIdle(t, s)
	s.ToggleOpen()

	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "hola", snap.Transcript[0].Content)
}

func TestWelcomeEnglish(t *testing.T) {
	cfg := domain.AssistantConfig{Name: "Max", Personality: "I keep it short.", Language: "en"}
	s := newTestSession(t, cfg, nil, nil, nil)

	s.ToggleOpen()
	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "Hi! I'm Max. I keep it short. How can I help you today?", snap.Transcript[0].Content)
}

func TestWelcomeWithoutPersonality(t *testing.T) {
	cases := []struct {
		lang string
		want string
	}{
		{"es", "¡Hola! Soy Ana. ¿En qué puedo ayudarte hoy?"},
		{"en", "Hi! I'm Ana. How can I help you today?"},
	}
	for _, tc := range cases {
		t.Run(tc.lang, func(t *testing.T) {
			assert.Equal(t, tc.want, WelcomeText("Ana", "  ", tc.lang))
		})
	}
}

func TestVoiceTurn(t *testing.T) {
	rec := &fakeRecognizer{available: true}
	g := newGate("te escucho", nil)
	s := newTestSession(t, anaConfig(), g, rec, nil)

	require.True(t, s.BeginVoiceInput())
	assert.Equal(t, Listening, s.Snapshot().Status)
	assert.Equal(t, []string{"es-ES"}, rec.starts)

	rec.send(speech.Event{Kind: speech.EventInterim, Transcript: "ho"})
	snap := s.Snapshot()
	assert.Equal(t, Listening, snap.Status)
	assert.Equal(t, "ho", snap.LiveTranscript)

	rec.send(speech.Event{Kind: speech.EventFinal, Transcript: " hola "})
	snap = s.Snapshot()
	assert.Equal(t, Processing, snap.Status)
	assert.Empty(t, snap.LiveTranscript)
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, "hola", snap.Transcript[0].Content)

	close(g.release)
	snap = waitIdle(t, s)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "te escucho", snap.Transcript[1].Content)
}

func TestVoiceCaptureErrorReturnsToIdle(t *testing.T) {
	rec := &fakeRecognizer{available: true}
	s := newTestSession(t, anaConfig(), nil, rec, nil)

	require.True(t, s.BeginVoiceInput())
	rec.send(speech.Event{Kind: speech.EventInterim, Transcript: "ho"})
	rec.send(speech.Event{Kind: speech.EventError, Err: errors.New("no-speech")})

	snap := s.Snapshot()
	assert.Equal(t, Idle, snap.Status)
	assert.Empty(t, snap.LiveTranscript)
	assert.Empty(t, snap.Transcript)
}

func TestStopVoiceInput(t *testing.T) {
	rec := &fakeRecognizer{available: true}
	s := newTestSession(t, anaConfig(), nil, rec, nil)

	require.True(t, s.BeginVoiceInput())
	rec.send(speech.Event{Kind: speech.EventInterim, Transcript: "ho"})
	s.StopVoiceInput()

	snap := s.Snapshot()
	assert.Equal(t, Idle, snap.Status)
	assert.Empty(t, snap.LiveTranscript)
	assert.Equal(t, 1, rec.stops)

	// A late final result from the stopped attempt is ignored.
	rec.send(speech.Event{Kind: speech.EventFinal, Transcript: "hola"})
	assert.Empty(t, s.Snapshot().Transcript)
}

func TestStopVoiceInputDoesNotCancelTurn(t *testing.T) {
	rec := &fakeRecognizer{available: true}
	g := newGate("sigo aquí", nil)
	s := newTestSession(t, anaConfig(), g, rec, nil)

	require.True(t, s.BeginVoiceInput())
	rec.send(speech.Event{Kind: speech.EventFinal, Transcript: "hola"})
	s.StopVoiceInput()
	close(g.release)

	snap := waitIdle(t, s)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "sigo aquí", snap.Transcript[1].Content)
}

func TestUnsupportedRecognitionKeepsTextWorking(t *testing.T) {
	s := newTestSession(t, anaConfig(), responder.NewStub(responder.WithDelay(0)), speech.NoRecognizer{}, speech.NoSynthesizer{})

	assert.False(t, s.BeginVoiceInput())
	assert.Equal(t, Idle, s.Snapshot().Status)

	require.True(t, s.SubmitText("hola"))
	snap := waitIdle(t, s)
	assert.Len(t, snap.Transcript, 2)
}

func TestResetDiscardsInFlightTurn(t *testing.T) {
	g := newGate("tarde", nil)
	s := New(anaConfig(), g, nil, nil)

	s.ToggleOpen()
	require.True(t, s.SubmitText("hola"))
	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, Idle, snap.Status)
	assert.Empty(t, snap.Transcript)
	assert.False(t, snap.IsOpen)

	s.Close()
	assert.Empty(t, s.Snapshot().Transcript)
	g.mu.Lock()
	assert.ErrorIs(t, g.ctxErr, context.Canceled)
	g.mu.Unlock()
}

func TestResetThenOpenWelcomesAgain(t *testing.T) {
	s := newTestSession(t, anaConfig(), nil, nil, nil)

	s.ToggleOpen()
	s.Reset()
	s.ToggleOpen()

	snap := s.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, uint64(2), snap.Transcript[0].Seq)
}

func TestCloseCancelsInFlightCall(t *testing.T) {
	g := newGate("nunca", nil)
	s := New(anaConfig(), g, nil, nil)

	require.True(t, s.SubmitText("hola"))
	s.Close()
	s.Close()

	g.mu.Lock()
	assert.ErrorIs(t, g.ctxErr, context.Canceled)
	g.mu.Unlock()
	assert.Len(t, s.Snapshot().Transcript, 1)
	assert.False(t, s.SubmitText("otra"))
}

func TestObserversAndHooks(t *testing.T) {
	var (
		mu       sync.Mutex
		versions []uint64
		messages []domain.Message
	)
	s := newTestSession(t, anaConfig(), responder.NewStub(responder.WithDelay(0)), nil, nil,
		WithObserver(func(snap Snapshot) {
			mu.Lock()
			versions = append(versions, snap.Version)
			mu.Unlock()
		}),
		WithMessageHook(func(msg domain.Message) {
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		}),
	)

	s.ToggleOpen()
	require.True(t, s.SubmitText("hola"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(messages) == 3 && len(versions) == 3
	}, waitFor, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, messages, 3)
	assert.Equal(t, domain.RoleAssistant, messages[0].Role)
	assert.Equal(t, domain.RoleUser, messages[1].Role)
	assert.Equal(t, domain.RoleAssistant, messages[2].Role)
	require.Len(t, versions, 3)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestWithClockStampsMessages(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s := newTestSession(t, anaConfig(), nil, nil, nil, WithClock(func() time.Time { return fixed }), WithID("sess-1"))

	s.ToggleOpen()
	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, fixed, s.Snapshot().Transcript[0].Timestamp)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "listening", Listening.String())
	assert.Equal(t, "processing", Processing.String())
	assert.Equal(t, "unknown", Status(42).String())
}
