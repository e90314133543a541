package utils

// CountTokens estimates the number of tokens in the given text at roughly
// four characters per token.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Ensure at least 1 token for any non-empty text
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TokenBreakdown returns a simple breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}

// FitsContext reports whether a prompt of the given size leaves room for
// maxOutput tokens in a window of contextTokens. Unknown windows fit.
func FitsContext(promptTokens, maxOutput, contextTokens int) bool {
	if contextTokens <= 0 {
		return true
	}
	return promptTokens+maxOutput <= contextTokens
}
