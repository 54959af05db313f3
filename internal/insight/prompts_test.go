package insight

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/persona"
)

func TestParseThemes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantBody   string
		wantThemes []string
	}{
		{
			name:       "Reply with theme line",
			input:      "You did well today.\nThemes: gratitude, rest",
			wantBody:   "You did well today.",
			wantThemes: []string{"gratitude", "rest"},
		},
		{
			name:       "Mixed case prefix and themes lowercased",
			input:      "Keep going.\nTHEMES: Momentum, Focus",
			wantBody:   "Keep going.",
			wantThemes: []string{"momentum", "focus"},
		},
		{
			name:       "No theme line tolerated",
			input:      "Just a reply without any theme footer.",
			wantBody:   "Just a reply without any theme footer.",
			wantThemes: nil,
		},
		{
			name:       "Theme line only leaves empty body",
			input:      "Themes: stress",
			wantBody:   "",
			wantThemes: []string{"stress"},
		},
		{
			name:       "Theme mention mid-text is not a footer",
			input:      "Themes: appear here\nbut the reply continues afterwards.",
			wantBody:   "Themes: appear here\nbut the reply continues afterwards.",
			wantThemes: nil,
		},
		{
			name:       "Empty theme entries dropped",
			input:      "Done.\nThemes: one, , two,",
			wantBody:   "Done.",
			wantThemes: []string{"one", "two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body, themes := parseThemes(tt.input)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, tt.wantThemes, themes)
		})
	}
}

func TestFormatEntry(t *testing.T) {
	t.Parallel()

	e := &database.JournalEntry{
		CreatedAt:   time.Date(2025, 3, 6, 22, 30, 0, 0, time.UTC),
		Content:     "Long week but made it through.",
		MoodLevel:   6,
		EnergyLevel: 3,
		StressLevel: 7,
		Tags:        "work,family",
	}

	got := formatEntry(e)
	assert.Equal(t, "[2025-03-06] mood 6/10 energy 3/10 stress 7/10 (work, family): Long week but made it through.", got)

	e.Tags = ""
	assert.Equal(t, "[2025-03-06] mood 6/10 energy 3/10 stress 7/10: Long week but made it through.", formatEntry(e))
}

func TestRenderPrompt(t *testing.T) {
	t.Parallel()

	defs := persona.Defaults()
	sage := defs[1]

	older := &database.JournalEntry{
		CreatedAt: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC),
		Content:   "Older entry.", MoodLevel: 5, EnergyLevel: 5, StressLevel: 5,
	}
	newer := &database.JournalEntry{
		CreatedAt: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
		Content:   "Newer entry.", MoodLevel: 6, EnergyLevel: 6, StressLevel: 4,
	}
	today := &database.JournalEntry{
		CreatedAt: time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC),
		Content:   "Today's entry.", MoodLevel: 7, EnergyLevel: 6, StressLevel: 3,
	}

	bc := &BuiltContext{
		Entry:           today,
		Recent:          []*database.JournalEntry{newer, older}, // newest first
		PriorPersonaUse: map[string]int{"sage": 2},
	}

	prompt := renderPrompt(bc, sage)

	assert.Contains(t, prompt, "You are Sage")
	assert.Contains(t, prompt, "reflection, growth")
	assert.Contains(t, prompt, "responded to this writer 2 time(s)")
	assert.Contains(t, prompt, "Today's entry.")
	assert.Contains(t, prompt, "Themes:")

	// History is rendered chronologically, oldest first.
	assert.Less(t, strings.Index(prompt, "Older entry."), strings.Index(prompt, "Newer entry."))
	assert.Less(t, strings.Index(prompt, "Newer entry."), strings.Index(prompt, "Today's entry."))
}
