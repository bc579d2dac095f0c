package blocks

import "strings"

// Prefer selects which end of the input a budgeted selection keeps intact
// when the parts overflow the budget.
type Prefer int

const (
	// PreferFirst accumulates from the beginning of the input.
	PreferFirst Prefer = iota
	// PreferLast accumulates from the end, preserving input order within
	// each group. Used when the most recent text matters most.
	PreferLast
)

// SplitByTokens divides parts into ordered groups whose token totals stay
// within maxTokens. Oversized parts are first bisected on separator
// (falling back to a character split when the separator cannot divide the
// part) until every piece fits; the pieces are then greedily accumulated
// into groups. Joining every group with separator reproduces the
// concatenation of the original parts.
func SplitByTokens(parts []string, tok Tokenizer, maxTokens int, separator string, prefer Prefer) [][]string {
	var small []string
	for _, part := range parts {
		small = append(small, bisectToFit(part, tok, maxTokens, separator)...)
	}

	counts := make([]int, len(small))
	for i, s := range small {
		counts[i] = tok.Count(s)
	}
	if prefer == PreferLast {
		reverse(small)
		reverse(counts)
	}

	var selected [][]string
	var current []string
	sum := 0
	for i := range small {
		if sum+counts[i] > maxTokens && len(current) > 0 {
			if prefer == PreferLast {
				reverse(current)
			}
			selected = append(selected, current)
			current = nil
			sum = 0
		}
		current = append(current, small[i])
		sum += counts[i]
	}
	if len(current) > 0 {
		if prefer == PreferLast {
			reverse(current)
		}
		selected = append(selected, current)
	}

	if prefer == PreferLast {
		reverse(selected)
	}
	return selected
}

// bisectToFit recursively halves part on the separator until every piece is
// within maxTokens. A part the separator cannot divide is halved on rune
// boundaries instead, so the recursion always terminates.
func bisectToFit(part string, tok Tokenizer, maxTokens int, separator string) []string {
	if tok.Count(part) <= maxTokens {
		return []string{part}
	}

	var left, right string
	if separator != "" {
		if pieces := strings.Split(part, separator); len(pieces) > 1 {
			middle := len(pieces) / 2
			left = strings.Join(pieces[:middle], separator)
			right = strings.Join(pieces[middle:], separator)
		}
	}
	if left == "" && right == "" {
		runes := []rune(part)
		if len(runes) < 2 {
			return []string{part}
		}
		middle := len(runes) / 2
		left = string(runes[:middle])
		right = string(runes[middle:])
	}

	return append(
		bisectToFit(left, tok, maxTokens, separator),
		bisectToFit(right, tok, maxTokens, separator)...,
	)
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
