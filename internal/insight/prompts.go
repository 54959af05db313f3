package insight

import (
	"fmt"
	"strings"

	"github.com/pulsehq/pulsecheck/internal/database"
	"github.com/pulsehq/pulsecheck/internal/persona"
)

// personaHeader introduces the persona to the model. The format string
// expects display name, personality description, communication style, and
// comma-joined focus areas.
const personaHeader = `You are %s, an AI companion inside a private journaling app.

Personality: %s
Communication style: %s
You pay particular attention to: %s.

You are writing a short reflective response to the journal entry below. Speak directly to the writer in second person. Do not mention that you are an AI, do not repeat the entry back, and do not include any timestamps or headers in your reply.
`

// themesInstruction asks the model to close with a machine-readable theme
// line, which the dispatcher parses off the end of the reply.
const themesInstruction = `
After your response, on a final separate line, list up to three themes you identified in the entry in the form:
Themes: theme one, theme two, theme three`

// renderPrompt flattens the persona definition and built context into the
// single prompt string sent to the text-generation API.
func renderPrompt(bc *BuiltContext, d persona.Definition) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(personaHeader,
		d.DisplayName, d.Personality, d.Style, strings.Join(d.FocusAreas, ", ")))

	if len(bc.Recent) > 0 {
		sb.WriteString("\nRecent journal history (oldest first):\n")
		// Recent is newest-first; render chronologically.
		for i := len(bc.Recent) - 1; i >= 0; i-- {
			sb.WriteString(formatEntry(bc.Recent[i]))
			sb.WriteString("\n")
		}
	}

	if n := bc.PriorPersonaUse[d.ID]; n > 0 {
		sb.WriteString(fmt.Sprintf("\nYou have responded to this writer %d time(s) before; keep your voice consistent without repeating yourself.\n", n))
	}

	sb.WriteString("\nToday's entry:\n")
	sb.WriteString(formatEntry(bc.Entry))
	sb.WriteString(themesInstruction)

	return sb.String()
}

// formatEntry renders one journal entry with its wellbeing signals.
func formatEntry(e *database.JournalEntry) string {
	line := fmt.Sprintf("[%s] mood %d/10 energy %d/10 stress %d/10",
		e.CreatedAt.UTC().Format("2006-01-02"), e.MoodLevel, e.EnergyLevel, e.StressLevel)
	if tags := e.TagList(); len(tags) > 0 {
		line += " (" + strings.Join(tags, ", ") + ")"
	}
	return line + ": " + e.Content
}

// parseThemes splits the trailing "Themes:" line off a sanitized model reply,
// returning the response body and the ordered theme list. A missing theme
// line is tolerated; the reply is stored as-is with no themes.
func parseThemes(reply string) (body string, themes []string) {
	idx := strings.LastIndex(reply, "\n")
	last := reply
	if idx >= 0 {
		last = reply[idx+1:]
	}

	trimmed := strings.TrimSpace(last)
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "themes:") {
		return reply, nil
	}

	for _, t := range strings.Split(trimmed[len("themes:"):], ",") {
		if t = strings.TrimSpace(t); t != "" {
			themes = append(themes, strings.ToLower(t))
		}
	}

	if idx < 0 {
		return "", themes
	}
	return strings.TrimSpace(reply[:idx]), themes
}
