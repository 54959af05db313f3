package text

import (
	"regexp"
	"strings"
)

var (
	// controlCharsRegex matches ASCII control characters (including DEL 0x7F)
	// that should never survive into a stored response.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	// multipleNewlinesRegex collapses runs of 3+ newlines into a paragraph
	// break so model output keeps its structure without padding.
	multipleNewlinesRegex = regexp.MustCompile("\n{3,}")

	// entryPrefixRegex matches the "[2025-01-02] mood 4/10 ..." style entry
	// headers used when rendering history into prompts. Models occasionally
	// echo them back at the start of a reply.
	entryPrefixRegex = regexp.MustCompile(`(?m)^\s*\[\d{4}-\d{2}-\d{2}(?: \d{2}:\d{2})?\](?: [a-z]+ \d{1,2}/10)*:?\s*`)

	// unicodeReplacer normalizes invisible and exotic whitespace characters
	// that LLM output sometimes contains.
	unicodeReplacer = strings.NewReplacer(
		// Invisible format control characters - remove these
		"\u2060", "", // Word Joiner
		"\uFEFF", "", // Byte Order Mark
		"\u00AD", "", // Soft Hyphen

		// Directional formatting characters - remove these
		"\u200E", "", // Left-to-Right Mark
		"\u200F", "", // Right-to-Left Mark

		// Line and paragraph separators - convert to newlines
		"\u2028", "\n", // Line Separator
		"\u2029", "\n\n", // Paragraph Separator

		// Whitespace normalization - convert to regular spaces
		"\u200B", " ", // Zero Width Space
		"\u00A0", " ", // Non-breaking Space
		"\u202F", " ", // Narrow No-Break Space
		"\u3000", " ", // Ideographic Space
	)
)

// SanitizeResponse normalizes raw model output before it is persisted:
// control characters are removed, invisible unicode is normalized, echoed
// entry-header prefixes are stripped, and excess blank lines are collapsed.
func SanitizeResponse(s string) string {
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, "")
	s = entryPrefixRegex.ReplaceAllString(s, "")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
