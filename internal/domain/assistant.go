package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Tone is the conversational register configured for an assistant.
type Tone string

const (
	ToneFormal   Tone = "formal"
	ToneCasual   Tone = "casual"
	ToneFriendly Tone = "friendly"
)

// Position is the screen corner the widget is anchored to.
type Position string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionTopRight    Position = "top-right"
	PositionTopLeft     Position = "top-left"
)

// Defaults applied when an assistant is created without explicit values.
const (
	DefaultAssistantName   = "Mi Asistente"
	DefaultPersonality     = "Soy un asistente amigable y útil"
	DefaultLanguage        = "es"
	DefaultTone            = ToneFriendly
	DefaultPrimaryColor    = "#3B82F6"
	DefaultSecondaryColor  = "#10B981"
	DefaultPosition        = PositionBottomRight
	DefaultCategory        = "general"
	maxAssistantNameLength = 120
)

var (
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidTone     = errors.New("tone must be one of formal, casual, friendly")
	ErrInvalidPosition = errors.New("position must be one of bottom-right, bottom-left, top-right, top-left")
	ErrInvalidColor    = errors.New("colors must be #RRGGBB")
	ErrInvalidLanguage = errors.New("language must be a valid language code")
	ErrInvalidTitle    = errors.New("knowledge title is required")
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	switch t {
	case ToneFormal, ToneCasual, ToneFriendly:
		return true
	}
	return false
}

// Valid reports whether p is a known corner.
func (p Position) Valid() bool {
	switch p {
	case PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft:
		return true
	}
	return false
}

// KnowledgeItem is a single entry of an assistant's knowledge base.
type KnowledgeItem struct {
	ID          string    `json:"id"`
	AssistantID string    `json:"assistant_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the knowledge item fields and fills the default category.
func (k *KnowledgeItem) Validate() error {
	k.Title = strings.TrimSpace(k.Title)
	if k.Title == "" {
		return ErrInvalidTitle
	}
	if strings.TrimSpace(k.Category) == "" {
		k.Category = DefaultCategory
	}
	if k.Tags == nil {
		k.Tags = []string{}
	}
	return nil
}

// AssistantConfig is the persisted configuration of a voice assistant widget.
// Sessions receive a copy and treat it as read-only.
type AssistantConfig struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"-"`
	Name           string          `json:"name"`
	Personality    string          `json:"personality"`
	Language       string          `json:"language"`
	Tone           Tone            `json:"tone"`
	PrimaryColor   string          `json:"primary_color"`
	SecondaryColor string          `json:"secondary_color"`
	Logo           string          `json:"logo,omitempty"`
	Position       Position        `json:"position"`
	IsActive       bool            `json:"is_active"`
	Knowledge      []KnowledgeItem `json:"knowledge_base"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ApplyDefaults fills every empty field with the dashboard defaults.
func (a *AssistantConfig) ApplyDefaults() {
	if strings.TrimSpace(a.Name) == "" {
		a.Name = DefaultAssistantName
	}
	if strings.TrimSpace(a.Personality) == "" {
		a.Personality = DefaultPersonality
	}
	if a.Language == "" {
		a.Language = DefaultLanguage
	}
	if a.Tone == "" {
		a.Tone = DefaultTone
	}
	if a.PrimaryColor == "" {
		a.PrimaryColor = DefaultPrimaryColor
	}
	if a.SecondaryColor == "" {
		a.SecondaryColor = DefaultSecondaryColor
	}
	if a.Position == "" {
		a.Position = DefaultPosition
	}
}

// Validate checks enumerations, colors and the language code.
func (a *AssistantConfig) Validate() error {
	name := strings.TrimSpace(a.Name)
	if name == "" || len(name) > maxAssistantNameLength {
		return ErrInvalidName
	}
	if !a.Tone.Valid() {
		return ErrInvalidTone
	}
	if !a.Position.Valid() {
		return ErrInvalidPosition
	}
	if !colorPattern.MatchString(a.PrimaryColor) || !colorPattern.MatchString(a.SecondaryColor) {
		return ErrInvalidColor
	}
	if _, err := language.Parse(a.Language); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, a.Language)
	}
	return nil
}

// Clone returns a deep copy so a session can hold the config independently of the store.
func (a AssistantConfig) Clone() AssistantConfig {
	out := a
	if a.Knowledge != nil {
		out.Knowledge = make([]KnowledgeItem, len(a.Knowledge))
		for i, k := range a.Knowledge {
			k.Tags = append([]string(nil), k.Tags...)
			out.Knowledge[i] = k
		}
	}
	return out
}
