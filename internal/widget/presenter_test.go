package widget

import (
	"testing"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"github.com/ashureev/voicedesk/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() domain.AssistantConfig {
	cfg := domain.AssistantConfig{Name: "Ana", Language: "es"}
	cfg.ApplyDefaults()
	return cfg
}

func TestRender_BubblesInTranscriptOrder(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	snap := session.Snapshot{
		Status: session.Idle,
		IsOpen: true,
		Transcript: []domain.Message{
			{ID: "1", Seq: 1, Role: domain.RoleAssistant, Content: "¡Hola!", Timestamp: ts},
			{ID: "2", Seq: 2, Role: domain.RoleUser, Content: "hola", Timestamp: ts.Add(time.Minute)},
		},
		Version: 4,
	}

	v := Render(snap, testConfig())

	require.Len(t, v.Bubbles, 2)
	assert.Equal(t, "start", v.Bubbles[0].Align)
	assert.Equal(t, assistantBackground, v.Bubbles[0].Background)
	assert.Equal(t, "14:07", v.Bubbles[0].Time)
	assert.Equal(t, "end", v.Bubbles[1].Align)
	assert.Equal(t, domain.DefaultPrimaryColor, v.Bubbles[1].Background)
	assert.Equal(t, "14:08", v.Bubbles[1].Time)
	assert.Equal(t, uint64(4), v.Version)
	assert.Nil(t, v.Live)
	assert.False(t, v.Processing)
	assert.Equal(t, "En línea", v.Header.Status)
	assert.Equal(t, "Ana", v.Header.Title)
	assert.Equal(t, "linear-gradient(135deg, #3B82F6, #10B981)", v.Header.Background)
	assert.Equal(t, "close", v.Launcher.Icon)
}

func TestRender_StatusAffordances(t *testing.T) {
	cases := []struct {
		status      session.Status
		header      string
		micEnabled  bool
		micActive   bool
		sendEnabled bool
	}{
		{session.Idle, "En línea", true, false, true},
		{session.Listening, "Escuchando...", true, true, false},
		{session.Processing, "Procesando...", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			v := Render(session.Snapshot{Status: tc.status}, testConfig())
			assert.Equal(t, tc.header, v.Header.Status)
			assert.Equal(t, tc.micEnabled, v.Input.MicEnabled)
			assert.Equal(t, tc.micActive, v.Input.MicActive)
			assert.Equal(t, tc.sendEnabled, v.Input.SendEnabled)
			assert.Equal(t, tc.status == session.Processing, v.Processing)
		})
	}
}

func TestRender_LiveTranscript(t *testing.T) {
	v := Render(session.Snapshot{Status: session.Listening, LiveTranscript: "hola qu"}, testConfig())
	require.NotNil(t, v.Live)
	assert.Equal(t, "hola qu", v.Live.Text)
	assert.Equal(t, "Transcribiendo...", v.Live.Caption)
}

func TestRender_EnglishLabels(t *testing.T) {
	cfg := testConfig()
	cfg.Language = "en"
	v := Render(session.Snapshot{Status: session.Processing}, cfg)
	assert.Equal(t, "Processing...", v.Header.Status)
	assert.Equal(t, "Type your message...", v.Input.Placeholder)
	assert.Equal(t, "chat", v.Launcher.Icon)
}

func TestRender_Anchor(t *testing.T) {
	cases := map[domain.Position]Anchor{
		domain.PositionBottomRight: {domain.PositionBottomRight, "bottom", "right"},
		domain.PositionBottomLeft:  {domain.PositionBottomLeft, "bottom", "left"},
		domain.PositionTopRight:    {domain.PositionTopRight, "top", "right"},
		domain.PositionTopLeft:     {domain.PositionTopLeft, "top", "left"},
		domain.Position("middle"):  {domain.PositionBottomRight, "bottom", "right"},
	}
	for pos, want := range cases {
		cfg := testConfig()
		cfg.Position = pos
		assert.Equal(t, want, Render(session.Snapshot{}, cfg).Anchor, "position %q", pos)
	}
}
