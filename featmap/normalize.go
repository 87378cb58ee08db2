// Package featmap maps noisy window-sticker feature strings onto canonical
// inventory checkbox labels.
//
// The pipeline per extracted string is: dealership override lookup, exact
// alias match, then fuzzy similarity with category boosting. The catalog of
// labels and aliases lives in the catalog package; featmap is pure given its
// inputs and holds no state beyond the configured scorer.
package featmap

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a feature string for comparison: lower-case,
// every character outside letters/digits/underscore becomes a space, runs
// of whitespace collapse to one space, leading/trailing space is trimmed.
//
// Normalize is total (empty input yields "") and idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(text))
	pendingSpace := false

	for _, r := range text {
		keep := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
		if !keep {
			// Punctuation, prices, bullet codes all collapse into a
			// single separator.
			if sb.Len() > 0 {
				pendingSpace = true
			}
			continue
		}
		if pendingSpace {
			sb.WriteByte(' ')
			pendingSpace = false
		}
		sb.WriteRune(unicode.ToLower(r))
	}

	return sb.String()
}
