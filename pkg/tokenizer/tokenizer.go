// Package tokenizer provides rough token-count estimates for cost and
// context-window bookkeeping. Counts are approximations, not exact model
// tokenizations.
package tokenizer

// Estimate returns an approximate token count for text, using the ~4
// characters per token heuristic. Empty text estimates to zero; any non-empty
// text estimates to at least one token.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
