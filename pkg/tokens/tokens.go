// Package tokens provides the character-ratio token estimator used for
// every context budget comparison in the engine. It is deliberately not
// a real tokenizer: the target model is small and runs on-device, so
// the budget math only needs determinism and monotonicity.
package tokens

import "unicode/utf8"

// CharsPerToken is the assumed character-to-token ratio. Japanese text
// against a small local model lands close to 2.5 chars per token.
const CharsPerToken = 2.5

// Estimate returns ceil(runes/2.5) for text, and 0 only for empty input.
func Estimate(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	// ceil(runes / 2.5) without float math.
	return (runes*2 + 4) / 5
}

// EstimateAll sums Estimate over every string.
func EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}
