package text_test

import (
	"testing"

	"github.com/pulsehq/pulsecheck/internal/text"
)

func TestSanitizeResponse_EntryPrefixRemoval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "No prefix",
			input:    "A normal reflective response.",
			expected: "A normal reflective response.",
		},
		{
			name:     "Echoed entry header with signals",
			input:    "[2025-01-02] mood 4/10 energy 3/10 stress 8/10: You had a hard day.",
			expected: "You had a hard day.",
		},
		{
			name:     "Echoed header with time component",
			input:    "[2025-01-02 08:30]: Some response text.",
			expected: "Some response text.",
		},
		{
			name:     "Header with leading whitespace",
			input:    "  [2025-01-02] mood 4/10: Trimmed response.",
			expected: "Trimmed response.",
		},
		{
			name:     "Date in middle of text is kept",
			input:    "On [2025-01-02] you wrote about work.",
			expected: "On [2025-01-02] you wrote about work.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := text.SanitizeResponse(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeResponse() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestSanitizeResponse_Normalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Control characters removed",
			input:    "abc\x00def\x07ghi",
			expected: "abcdefghi",
		},
		{
			name:     "Tabs and newlines survive",
			input:    "line one\n\tline two",
			expected: "line one\n\tline two",
		},
		{
			name:     "Excess blank lines collapsed",
			input:    "first paragraph\n\n\n\n\nsecond paragraph",
			expected: "first paragraph\n\nsecond paragraph",
		},
		{
			name:     "Zero width space becomes a space",
			input:    "hello\u200Bworld",
			expected: "hello world",
		},
		{
			name:     "Non-breaking space becomes a space",
			input:    "hello\u00A0world",
			expected: "hello world",
		},
		{
			name:     "Line separator becomes a newline",
			input:    "hello\u2028world",
			expected: "hello\nworld",
		},
		{
			name:     "Surrounding whitespace trimmed",
			input:    "  \n response \n  ",
			expected: "response",
		},
		{
			name:     "Empty input stays empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := text.SanitizeResponse(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeResponse() = %q, want %q", result, tt.expected)
			}
		})
	}
}
