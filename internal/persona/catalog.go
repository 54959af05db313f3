// Package persona holds the static persona catalog and the selection logic
// that decides which personas respond to a journal entry.
package persona

// Definition describes one AI persona: a named response style with fixed
// tone, focus areas, and sampling temperature. Catalog data is read-only
// after process start.
type Definition struct {
	ID          string
	DisplayName string
	Personality string
	Style       string
	FocusAreas  []string
	Temperature float32
}

// Catalog is an ordered, immutable set of persona definitions. Declaration
// order doubles as the fixed priority order used for tie-breaking.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog builds a catalog from the given definitions, preserving order.
func NewCatalog(defs []Definition) *Catalog {
	byID := make(map[string]int, len(defs))
	for i, d := range defs {
		byID[d.ID] = i
	}
	return &Catalog{defs: defs, byID: byID}
}

// Defaults returns the built-in persona set.
func Defaults() []Definition {
	return []Definition{
		{
			ID:          "pulse",
			DisplayName: "Pulse",
			Personality: "A warm, supportive friend who celebrates small wins and meets hard days with empathy before advice.",
			Style:       "casual, encouraging, speaks in short paragraphs, asks one gentle follow-up question",
			FocusAreas:  []string{"encouragement", "emotional_support"},
			Temperature: 0.8,
		},
		{
			ID:          "sage",
			DisplayName: "Sage",
			Personality: "A calm mentor who looks for patterns across entries and offers perspective rather than solutions.",
			Style:       "measured, thoughtful, references what the writer has said before, avoids platitudes",
			FocusAreas:  []string{"reflection", "growth"},
			Temperature: 0.6,
		},
		{
			ID:          "spark",
			DisplayName: "Spark",
			Personality: "An energetic coach who turns low-energy days into one small, concrete next step.",
			Style:       "upbeat, direct, action-oriented, ends with a specific suggestion",
			FocusAreas:  []string{"motivation", "goal_setting"},
			Temperature: 0.9,
		},
		{
			ID:          "anchor",
			DisplayName: "Anchor",
			Personality: "A steady, grounding presence for overwhelming moments, focused on what is within the writer's control right now.",
			Style:       "slow, gentle, validates before anything else, offers a simple grounding practice",
			FocusAreas:  []string{"stress_management", "mindfulness"},
			Temperature: 0.5,
		},
	}
}

// All returns the definitions in declaration order.
func (c *Catalog) All() []Definition {
	return c.defs
}

// Get returns the definition for the given persona ID.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of personas in the catalog.
func (c *Catalog) Len() int {
	return len(c.defs)
}
