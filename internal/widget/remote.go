package widget

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/voicedesk/internal/speech"
)

// remoteSpeech is the visitor's browser acting as the speech platform. It
// implements both speech.Recognizer and speech.Synthesizer by exchanging
// frames over the widget websocket.
type remoteSpeech struct {
	send func(outFrame) error

	mu          sync.Mutex
	recognition bool
	synthesis   bool
	emit        func(speech.Event)
}

func newRemoteSpeech(send func(outFrame) error) *remoteSpeech {
	return &remoteSpeech{send: send}
}

func (r *remoteSpeech) setCapabilities(recognition, synthesis bool) {
	r.mu.Lock()
	r.recognition = recognition
	r.synthesis = synthesis
	r.mu.Unlock()
}

func (r *remoteSpeech) recognizer() speech.Recognizer { return remoteRecognizer{r} }

func (r *remoteSpeech) synthesizer() speech.Synthesizer { return remoteSynthesizer{r} }

// deliver forwards a browser recognition event. Events arriving without a
// started attempt are ignored.
func (r *remoteSpeech) deliver(ev speech.Event) {
	r.mu.Lock()
	emit := r.emit
	r.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

type remoteRecognizer struct{ *remoteSpeech }

func (r remoteRecognizer) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recognition
}

func (r remoteRecognizer) Start(locale string, emit func(speech.Event)) error {
	r.mu.Lock()
	r.emit = emit
	r.mu.Unlock()
	return r.send(outFrame{Type: frameCaptureStart, Locale: locale})
}

func (r remoteRecognizer) Stop() {
	_ = r.send(outFrame{Type: frameCaptureStop})
}

type remoteSynthesizer struct{ *remoteSpeech }

func (r remoteSynthesizer) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synthesis
}

// Speak hands the utterance to the browser, which queues it locally.
func (r remoteSynthesizer) Speak(ctx context.Context, u speech.Utterance) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return r.send(outFrame{Type: frameSpeak, Text: u.Text, Locale: u.Locale, Rate: u.Rate, Pitch: u.Pitch})
}

var errRecognition = errors.New("browser speech recognition failed")

// recognitionError wraps a browser-reported error code such as "no-speech" or "not-allowed".
func recognitionError(code string) error {
	if code == "" {
		return errRecognition
	}
	return &browserError{code: code}
}

type browserError struct{ code string }

func (e *browserError) Error() string { return "speech recognition: " + e.code }

func (e *browserError) Unwrap() error { return errRecognition }
