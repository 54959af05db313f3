package persona_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/persona"
)

func newTestSelector(t *testing.T) *persona.Selector {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return persona.NewSelector(persona.NewCatalog(persona.Defaults()), log)
}

func entry(mood, energy, stress int, content, tags string) *database.JournalEntry {
	return &database.JournalEntry{
		ID:          "entry-1",
		UserID:      "user-1",
		Content:     content,
		MoodLevel:   mood,
		EnergyLevel: energy,
		StressLevel: stress,
		Tags:        tags,
	}
}

func TestSelect_Scoring(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		entry    *database.JournalEntry
		expected []string
	}{
		{
			name:     "High stress picks the grounding persona",
			entry:    entry(2, 2, 9, "Everything is piling up and I can't keep my head above water.", ""),
			expected: []string{"anchor"},
		},
		{
			name:     "Good day with goal language picks the mentor",
			entry:    entry(8, 8, 2, "Made real progress on my goal of writing every day.", ""),
			expected: []string{"sage"},
		},
		{
			name:     "Low energy picks the coach",
			entry:    entry(6, 2, 3, "So tired today, completely drained after the move.", ""),
			expected: []string{"spark"},
		},
		{
			name:     "Low mood picks the supportive friend",
			entry:    entry(2, 6, 3, "Feeling really sad and lonely tonight.", ""),
			expected: []string{"pulse"},
		},
		{
			name:     "Tags feed the keyword match",
			entry:    entry(5, 5, 5, "Ordinary day, nothing much happened.", "anxiety,deadline"),
			expected: []string{"anchor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestSelector(t)
			got, err := s.Select(tt.entry, persona.Request{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	e := entry(4, 4, 6, "A mixed day with some worry about the week ahead.", "work")

	first, err := s.Select(e, persona.Request{})
	require.NoError(t, err)

	for range 10 {
		got, err := s.Select(e, persona.Request{})
		require.NoError(t, err)
		assert.Equal(t, first, got, "identical input must always select the same persona")
	}
}

func TestSelect_Preferred(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	e := entry(2, 2, 9, "Overwhelmed again.", "")

	got, err := s.Select(e, persona.Request{Preferred: "spark"})
	require.NoError(t, err)
	assert.Equal(t, []string{"spark"}, got, "valid preference overrides scoring")

	got, err = s.Select(e, persona.Request{Preferred: "nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"anchor"}, got, "unknown preference falls back to scoring")
}

func TestSelect_Forced(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	e := entry(5, 5, 5, "Nothing special.", "")

	got, err := s.Select(e, persona.Request{Force: []string{"sage", "pulse"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sage", "pulse"}, got, "forced list keeps caller order")

	_, err = s.Select(e, persona.Request{Force: []string{"sage", "ghost"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestSelect_SampleAll(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	got, err := s.Select(entry(5, 5, 5, "Testing day.", ""), persona.Request{SampleAll: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"pulse", "sage", "spark", "anchor"}, got)
}

func TestSelect_EmptyCatalog(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := persona.NewSelector(persona.NewCatalog(nil), log)

	_, err := s.Select(entry(5, 5, 5, "Hello.", ""), persona.Request{})
	assert.ErrorIs(t, err, persona.ErrNoPersonasAvailable)
}
