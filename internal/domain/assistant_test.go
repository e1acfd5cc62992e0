package domain

import (
	"errors"
	"testing"
)

func TestAssistantConfig_DefaultsValidate(t *testing.T) {
	var a AssistantConfig
	a.ApplyDefaults()

	if err := a.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if a.Name != DefaultAssistantName || a.Language != "es" || a.Position != PositionBottomRight {
		t.Fatalf("unexpected defaults: %+v", a)
	}
}

func TestAssistantConfig_ValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AssistantConfig)
		want   error
	}{
		{"tone", func(a *AssistantConfig) { a.Tone = "sarcastic" }, ErrInvalidTone},
		{"position", func(a *AssistantConfig) { a.Position = "center" }, ErrInvalidPosition},
		{"color", func(a *AssistantConfig) { a.PrimaryColor = "blue" }, ErrInvalidColor},
		{"language", func(a *AssistantConfig) { a.Language = "not a tag!" }, ErrInvalidLanguage},
		{"name", func(a *AssistantConfig) { a.Name = "   " }, ErrInvalidName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a AssistantConfig
			a.ApplyDefaults()
			tc.mutate(&a)
			if err := a.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAssistantConfig_CloneIsDeep(t *testing.T) {
	a := AssistantConfig{Knowledge: []KnowledgeItem{{Title: "hours", Tags: []string{"a"}}}}
	b := a.Clone()
	b.Knowledge[0].Tags[0] = "changed"
	b.Knowledge[0].Title = "other"

	if a.Knowledge[0].Tags[0] != "a" || a.Knowledge[0].Title != "hours" {
		t.Fatalf("clone shares memory with original: %+v", a.Knowledge[0])
	}
}

func TestKnowledgeItem_Validate(t *testing.T) {
	k := KnowledgeItem{Title: "  Opening hours "}
	if err := k.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Title != "Opening hours" || k.Category != DefaultCategory || k.Tags == nil {
		t.Fatalf("unexpected normalisation: %+v", k)
	}

	empty := KnowledgeItem{}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
}
