package session

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	greetingES = "¡Hola! Soy %s."
	greetingEN = "Hi! I'm %s."
	questionES = "¿En qué puedo ayudarte hoy?"
	questionEN = "How can I help you today?"
	fallbackES = "Lo siento, he tenido un problema técnico. ¿Podrías repetir tu pregunta?"
	fallbackEN = "Sorry, I ran into a technical problem. Could you repeat your question?"
)

// IsSpanish reports whether lang has Spanish as its base language.
func IsSpanish(lang string) bool {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	return base.String() == "es"
}

// WelcomeText is the greeting appended the first time the widget opens.
func WelcomeText(name, personality, lang string) string {
	greeting, question := greetingEN, questionEN
	if IsSpanish(lang) {
		greeting, question = greetingES, questionES
	}
	parts := []string{fmt.Sprintf(greeting, strings.TrimSpace(name))}
	if p := strings.TrimSpace(personality); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(append(parts, question), " ")
}

// FallbackText is appended when the responder fails.
func FallbackText(lang string) string {
	if IsSpanish(lang) {
		return fallbackES
	}
	return fallbackEN
}
