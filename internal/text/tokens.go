// Package text provides token estimation and output sanitization helpers
// shared by the context builder and the response dispatcher.
package text

// perItemOverhead accounts for the formatting wrapped around each journal
// entry when it is rendered into a prompt (date line, signal summary, labels).
const perItemOverhead = 15

// EstimateTokens provides a ballpark token count for a piece of text.
// Character count divided by 3 is a reasonable middle ground between the
// tokenization schemes of different models; a small buffer is added so the
// estimate errs on the high side.
func EstimateTokens(text string) int {
	return len(text)/3 + 5
}

// EstimateItemTokens estimates the token cost of one journal entry rendered
// into a prompt, including its formatting overhead.
func EstimateItemTokens(content string) int {
	return EstimateTokens(content) + perItemOverhead
}
