// Package widget hosts embeddable assistant widgets: the render model sent to
// the browser, the websocket transport that drives a session.Session, and the
// registry and sweeper for live widget sessions.
package widget

import (
	"fmt"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/session"
)

const (
	timeFormat          = "15:04"
	assistantBackground = "#F3F4F6"
	assistantForeground = "#1F2937"
	userForeground      = "#FFFFFF"
)

// View is everything the browser needs to draw the widget.
type View struct {
	Version    uint64   `json:"version"`
	Open       bool     `json:"open"`
	Anchor     Anchor   `json:"anchor"`
	Launcher   Launcher `json:"launcher"`
	Header     Header   `json:"header"`
	Bubbles    []Bubble `json:"bubbles"`
	Live       *Live    `json:"live,omitempty"`
	Processing bool     `json:"processing"`
	Input      Input    `json:"input"`
}

// Anchor places the widget in a screen corner.
type Anchor struct {
	Corner     domain.Position `json:"corner"`
	Vertical   string          `json:"vertical"`
	Horizontal string          `json:"horizontal"`
}

// Launcher is the floating open/close control.
type Launcher struct {
	Icon       string `json:"icon"`
	Label      string `json:"label"`
	Background string `json:"background"`
}

// Header is the top bar of the open widget.
type Header struct {
	Title      string `json:"title"`
	Status     string `json:"status"`
	Logo       string `json:"logo,omitempty"`
	Background string `json:"background"`
}

// Bubble is one rendered transcript message.
type Bubble struct {
	ID         string      `json:"id"`
	Role       domain.Role `json:"role"`
	Text       string      `json:"text"`
	Time       string      `json:"time"`
	Align      string      `json:"align"`
	Background string      `json:"background"`
	Foreground string      `json:"foreground"`
}

// Live is the transient bubble shown while speech is being transcribed.
type Live struct {
	Text    string `json:"text"`
	Caption string `json:"caption"`
}

// Input describes the state of the input affordances.
type Input struct {
	Placeholder string `json:"placeholder"`
	MicEnabled  bool   `json:"mic_enabled"`
	MicActive   bool   `json:"mic_active"`
	SendEnabled bool   `json:"send_enabled"`
}

type labels struct {
	processing, listening, online string
	transcribing, placeholder     string
	open, close                   string
}

var (
	labelsES = labels{
		processing:   "Procesando...",
		listening:    "Escuchando...",
		online:       "En línea",
		transcribing: "Transcribiendo...",
		placeholder:  "Escribe tu mensaje...",
		open:         "Abrir chat",
		close:        "Cerrar chat",
	}
	labelsEN = labels{
		processing:   "Processing...",
		listening:    "Listening...",
		online:       "Online",
		transcribing: "Transcribing...",
		placeholder:  "Type your message...",
		open:         "Open chat",
		close:        "Close chat",
	}
)

// Render builds the view for a session snapshot. It has no side effects.
func Render(snap session.Snapshot, cfg domain.AssistantConfig) View {
	l := labelsEN
	if session.IsSpanish(cfg.Language) {
		l = labelsES
	}
	gradient := fmt.Sprintf("linear-gradient(135deg, %s, %s)", cfg.PrimaryColor, cfg.SecondaryColor)

	v := View{
		Version:    snap.Version,
		Open:       snap.IsOpen,
		Anchor:     anchorFor(cfg.Position),
		Header:     Header{Title: cfg.Name, Logo: cfg.Logo, Background: gradient},
		Bubbles:    make([]Bubble, 0, len(snap.Transcript)),
		Processing: snap.Status == session.Processing,
		Input: Input{
			Placeholder: l.placeholder,
			MicEnabled:  snap.Status != session.Processing,
			MicActive:   snap.Status == session.Listening,
			SendEnabled: snap.Status == session.Idle,
		},
	}

	if snap.IsOpen {
		v.Launcher = Launcher{Icon: "close", Label: l.close, Background: gradient}
	} else {
		v.Launcher = Launcher{Icon: "chat", Label: l.open, Background: gradient}
	}

	switch snap.Status {
	case session.Processing:
		v.Header.Status = l.processing
	case session.Listening:
		v.Header.Status = l.listening
	default:
		v.Header.Status = l.online
	}

	for _, msg := range snap.Transcript {
		b := Bubble{
			ID:   msg.ID,
			Role: msg.Role,
			Text: msg.Content,
			Time: msg.Timestamp.Format(timeFormat),
		}
		if msg.Role == domain.RoleUser {
			b.Align, b.Background, b.Foreground = "end", cfg.PrimaryColor, userForeground
		} else {
			b.Align, b.Background, b.Foreground = "start", assistantBackground, assistantForeground
		}
		v.Bubbles = append(v.Bubbles, b)
	}

	if snap.LiveTranscript != "" {
		v.Live = &Live{Text: snap.LiveTranscript, Caption: l.transcribing}
	}
	return v
}

func anchorFor(p domain.Position) Anchor {
	switch p {
	case domain.PositionBottomLeft:
		return Anchor{Corner: p, Vertical: "bottom", Horizontal: "left"}
	case domain.PositionTopRight:
		return Anchor{Corner: p, Vertical: "top", Horizontal: "right"}
	case domain.PositionTopLeft:
		return Anchor{Corner: p, Vertical: "top", Horizontal: "left"}
	default:
		return Anchor{Corner: domain.PositionBottomRight, Vertical: "bottom", Horizontal: "right"}
	}
}
