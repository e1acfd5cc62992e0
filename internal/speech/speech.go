// Package speech wraps platform speech recognition and synthesis behind
// owned resources with an explicit start/stop lifecycle.
//
// A Recognizer or Synthesizer is the platform: in production it is the
// visitor's browser reached over the widget websocket. Capture and Playback
// enforce the contract the session relies on: at most one recognition attempt
// at a time, exactly one terminal event per attempt, and serial, non-blocking
// playback.
package speech

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// Fixed synthesis parameters.
const (
	DefaultRate  = 0.9
	DefaultPitch = 1.0
)

const defaultLocale = "en-US"

// ErrUnsupported is reported when the platform has no recognition or synthesis capability.
var ErrUnsupported = errors.New("speech: capability not supported")

// EventKind classifies a recognition event.
type EventKind int

const (
	// EventInterim carries the cumulative best-guess transcript so far.
	EventInterim EventKind = iota
	// EventFinal is terminal and carries the recognized text.
	EventFinal
	// EventError is terminal and carries the failure reason.
	EventError
	// EventStopped is terminal: the attempt ended without a final result.
	EventStopped
)

// String returns a human-readable event kind.
func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the event ends a recognition attempt.
func (k EventKind) Terminal() bool {
	return k != EventInterim
}

// Event is emitted by a Recognizer during a recognition attempt.
type Event struct {
	Kind       EventKind
	Transcript string
	Err        error
}

// localeByBase maps a base language onto the locale handed to the platform.
var localeByBase = map[string]string{
	"es": "es-ES",
	"en": "en-US",
	"fr": "fr-FR",
	"de": "de-DE",
}

// Locale maps an assistant language code onto a platform locale tag.
// Only the base language is considered, so "es" and "es-MX" both map to "es-ES".
// Unknown or unparseable codes map to "en-US".
func Locale(lang string) string {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return defaultLocale
	}
	base, _ := tag.Base()
	if loc, ok := localeByBase[base.String()]; ok {
		return loc
	}
	return defaultLocale
}
