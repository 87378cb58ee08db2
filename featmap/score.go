package featmap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Scorer computes a similarity in [0,1] between two normalized strings.
// Implementations must be symmetric and return 1.0 for identical non-empty
// inputs.
type Scorer interface {
	Score(a, b string) float64
}

// Algorithm selects a Scorer implementation by name. Replaces the dynamic
// module-path loading the earlier system used: the set of algorithms is
// closed and chosen at construction from configuration.
type Algorithm string

const (
	// AlgorithmLevenshtein is a character-level edit-distance ratio.
	AlgorithmLevenshtein Algorithm = "levenshtein"
	// AlgorithmTokenSort sorts whitespace tokens before the edit-distance
	// ratio, so word order does not matter ("seats heated" vs "heated seats").
	AlgorithmTokenSort Algorithm = "token_sort"
)

// NewScorer returns the Scorer for the given algorithm name.
// An empty name selects AlgorithmLevenshtein.
func NewScorer(alg Algorithm) (Scorer, error) {
	switch alg {
	case "", AlgorithmLevenshtein:
		return LevenshteinScorer{}, nil
	case AlgorithmTokenSort:
		return TokenSortScorer{}, nil
	default:
		return nil, fmt.Errorf("featmap: unknown similarity algorithm %q", alg)
	}
}

// LevenshteinScorer scores by 1 - editDistance/maxLen, with short-circuits
// for equality (1.0) and containment (0.95).
type LevenshteinScorer struct{}

func (LevenshteinScorer) Score(a, b string) float64 {
	return ratio(a, b)
}

// TokenSortScorer normalizes word order before scoring.
type TokenSortScorer struct{}

func (TokenSortScorer) Score(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.95
	}

	dist := levenshtein.ComputeDistance(a, b)
	la, lb := len([]rune(a)), len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if dist >= max {
		return 0.0
	}
	return 1.0 - float64(dist)/float64(max)
}
