package database

import (
	"strings"
	"time"
)

// JournalEntry represents a single journal entry written by a user, including
// the self-reported wellbeing signals captured alongside the text.
type JournalEntry struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserID      string `db:"user_id"`
	Content     string `db:"content"`
	MoodLevel   int    `db:"mood_level"`
	EnergyLevel int    `db:"energy_level"`
	StressLevel int    `db:"stress_level"`
	Tags        string `db:"tags"` // comma-joined
}

// TagList splits the stored comma-joined tags into a slice, dropping empties.
func (e *JournalEntry) TagList() []string {
	if e.Tags == "" {
		return nil
	}
	parts := strings.Split(e.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags converts a tag slice into the comma-joined storage form.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// AIResponse represents one persona's generated reflection on a journal
// entry. At most one row exists per (journal_entry_id, persona_id) pair;
// the dispatcher checks before writing and the schema enforces it.
type AIResponse struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	JournalEntryID string  `db:"journal_entry_id"`
	UserID         string  `db:"user_id"`
	PersonaID      string  `db:"persona_id"`
	ResponseText   string  `db:"response_text"`
	Themes         string  `db:"themes"` // comma-joined, order preserved
	Confidence     float64 `db:"confidence"`
}

// ThemeList splits the stored themes into an ordered slice.
func (r *AIResponse) ThemeList() []string {
	if r.Themes == "" {
		return nil
	}
	parts := strings.Split(r.Themes, ",")
	themes := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			themes = append(themes, t)
		}
	}
	return themes
}

// UsageQuota tracks how many AI responses a user has generated on a given
// UTC calendar day against their tier limit. Day is stored as "2006-01-02".
type UsageQuota struct {
	UserID    string    `db:"user_id"`
	Day       string    `db:"day"`
	Used      int       `db:"responses_used"`
	TierLimit int       `db:"tier_limit"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MoodDay is one bucket of the mood analytics aggregation: per-day averages
// of the three wellbeing signals plus the number of entries written.
type MoodDay struct {
	Day       string  `db:"day"        json:"day"`
	Entries   int     `db:"entries"    json:"entries"`
	AvgMood   float64 `db:"avg_mood"   json:"avg_mood"`
	AvgEnergy float64 `db:"avg_energy" json:"avg_energy"`
	AvgStress float64 `db:"avg_stress" json:"avg_stress"`
}
