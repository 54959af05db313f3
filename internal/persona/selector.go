package persona

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pulsehq/pulsecheck/internal/database"
)

// ErrNoPersonasAvailable indicates an empty catalog. This is a configuration
// error, fatal to the request, and never retried.
var ErrNoPersonasAvailable = errors.New("no personas available in catalog")

// Request carries the caller's selection options.
type Request struct {
	// Preferred overrides scoring when it names a catalog persona.
	Preferred string

	// Force bypasses scoring entirely with an explicit persona list.
	Force []string

	// SampleAll returns the full catalog in declaration order. Used by
	// designated accounts to compare personas side by side.
	SampleAll bool
}

// Selector picks which persona(s) respond to a journal entry. Selection is
// deterministic: identical inputs against an identical catalog always yield
// the same result.
type Selector struct {
	catalog *Catalog
	log     *slog.Logger
}

// NewSelector creates a selector over the given catalog.
func NewSelector(catalog *Catalog, log *slog.Logger) *Selector {
	return &Selector{
		catalog: catalog,
		log:     log.With("component", "persona_selector"),
	}
}

// Select returns the ordered persona IDs that should respond to the entry.
// The default path scores every catalog persona against the entry's signals
// and text, picking the highest scorer with declaration order breaking ties.
func (s *Selector) Select(entry *database.JournalEntry, req Request) ([]string, error) {
	if s.catalog.Len() == 0 {
		return nil, ErrNoPersonasAvailable
	}

	if len(req.Force) > 0 {
		return s.resolveForced(req.Force)
	}

	if req.SampleAll {
		ids := make([]string, 0, s.catalog.Len())
		for _, d := range s.catalog.All() {
			ids = append(ids, d.ID)
		}
		return ids, nil
	}

	if req.Preferred != "" {
		if _, ok := s.catalog.Get(req.Preferred); ok {
			return []string{req.Preferred}, nil
		}
		s.log.Warn("Preferred persona not in catalog, falling back to scoring", "preferred", req.Preferred)
	}

	best := s.catalog.All()[0]
	bestScore := -1
	haystack := searchText(entry)
	for _, d := range s.catalog.All() {
		score := scorePersona(d, entry, haystack)
		s.log.Debug("Scored persona", "persona_id", d.ID, "score", score, "entry_id", entry.ID)
		if score > bestScore {
			best = d
			bestScore = score
		}
	}

	s.log.Debug("Selected persona", "persona_id", best.ID, "score", bestScore, "entry_id", entry.ID)
	return []string{best.ID}, nil
}

func (s *Selector) resolveForced(force []string) ([]string, error) {
	ids := make([]string, 0, len(force))
	for _, id := range force {
		if _, ok := s.catalog.Get(id); !ok {
			return nil, fmt.Errorf("forced persona %q not in catalog", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// signalScore computes a focus area's affinity for the entry's
// mood/energy/stress triple. Unknown focus areas contribute nothing.
func signalScore(focus string, entry *database.JournalEntry) int {
	switch focus {
	case "stress_management":
		if entry.StressLevel >= 7 {
			return 4 + 2*(entry.StressLevel-7)
		}
	case "mindfulness":
		if entry.StressLevel >= 6 {
			return 2
		}
	case "motivation":
		if entry.EnergyLevel <= 4 {
			return 3 + (4 - entry.EnergyLevel)
		}
	case "goal_setting":
		if entry.EnergyLevel >= 7 && entry.MoodLevel >= 6 {
			return 2
		}
	case "emotional_support":
		if entry.MoodLevel <= 4 {
			return 3 + (4 - entry.MoodLevel)
		}
	case "encouragement":
		if entry.MoodLevel <= 5 {
			return 2
		}
	case "reflection":
		return 1
	case "growth":
		if entry.MoodLevel >= 6 {
			return 2
		}
	}
	return 0
}

// focusKeywords lists theme words whose presence in the entry text or tags
// strengthens the matching focus area.
var focusKeywords = map[string][]string{
	"stress_management": {"stress", "overwhelm", "anxious", "anxiety", "pressure", "deadline", "panic"},
	"mindfulness":       {"racing", "scattered", "restless", "can't focus"},
	"motivation":        {"tired", "unmotivated", "stuck", "procrastinat", "exhausted", "drained"},
	"goal_setting":      {"plan", "milestone", "target", "deadline"},
	"emotional_support": {"sad", "lonely", "down", "cried", "grief", "hurt"},
	"encouragement":     {"proud", "finally", "accomplish", "managed to"},
	"reflection":        {"wondering", "thinking about", "reflect", "meaning"},
	"growth":            {"goal", "progress", "improve", "learning", "habit"},
}

func scorePersona(d Definition, entry *database.JournalEntry, haystack string) int {
	score := 0
	for _, focus := range d.FocusAreas {
		score += signalScore(focus, entry)
		for _, kw := range focusKeywords[focus] {
			if strings.Contains(haystack, kw) {
				score += 2
			}
		}
	}
	return score
}

func searchText(entry *database.JournalEntry) string {
	return strings.ToLower(entry.Content + " " + entry.Tags)
}
