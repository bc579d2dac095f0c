package blocks

import "unicode/utf8"

// Tokenizer reports how many model tokens a text costs. The host supplies
// an exact tokenizer when one is available; RuneEstimator is the fallback.
type Tokenizer interface {
	Count(text string) int
}

// RuneEstimator estimates token counts from rune counts. Roughly 4 runes
// per token holds for the embedding models this targets; it only needs to
// be consistent, not exact, since it bounds block and context sizes.
type RuneEstimator struct {
	RunesPerToken float64
}

// NewRuneEstimator returns the default estimator.
func NewRuneEstimator() RuneEstimator {
	return RuneEstimator{RunesPerToken: 4}
}

// Count implements Tokenizer.
func (e RuneEstimator) Count(text string) int {
	perToken := e.RunesPerToken
	if perToken <= 0 {
		perToken = 4
	}
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	count := int(float64(n)/perToken + 0.5)
	if count < 1 {
		count = 1
	}
	return count
}
