package featmap

import (
	"log/slog"
)

// ExtractedFeature is one raw feature string pulled off a window sticker,
// with an optional section hint ("Safety", "Interior", ...) from the
// document section it was found under.
type ExtractedFeature struct {
	Text    string
	Section string
}

// Source records which stage of the mapping pipeline produced a result.
type Source string

const (
	SourceOverride Source = "override"
	SourceExact    Source = "exact"
	SourceFuzzy    Source = "fuzzy"
	SourceNone     Source = "none"
)

// Result is the decision for a single extracted feature. Label is empty
// when Source is SourceNone; Confidence then carries the best score seen,
// which the caller may record for operator review.
type Result struct {
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Matched reports whether the feature resolved to a checkbox label.
func (r Result) Matched() bool { return r.Source != SourceNone }

// Catalog is the view of the feature catalog the engine needs. Labels and
// Aliases must iterate in a stable order across calls: fuzzy ties between
// near-duplicate aliases are broken by first-winner, so an unstable order
// would make mapping nondeterministic.
type Catalog interface {
	// OverrideFor returns the forced label for the first dealership
	// override pattern contained in the normalized text.
	OverrideFor(normalized string) (label string, ok bool)
	// Labels returns all checkbox labels in stable order.
	Labels() []string
	// Aliases returns the alias strings for a label in stable order.
	Aliases(label string) []string
	// Threshold returns the catalog-level confidence threshold.
	Threshold() float64
	// CategoryBoost returns the additive boost for a feature when scored
	// against the given label, derived from the normalized feature text
	// and the optional section hint.
	CategoryBoost(label, normalized, section string) float64
}

// Mapped pairs an extracted feature with its mapping decision, for
// per-vehicle audit detail.
type Mapped struct {
	Feature ExtractedFeature `json:"feature"`
	Result  Result           `json:"result"`
}

// Engine maps extracted features to checkbox labels. Stateless given its
// scorer; safe for concurrent use.
type Engine struct {
	scorer Scorer
	log    *slog.Logger
}

// NewEngine creates an Engine with the given similarity scorer.
// A nil logger falls back to slog.Default().
func NewEngine(scorer Scorer, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{scorer: scorer, log: log}
}

// MapFeature resolves one feature string against the catalog, in strict
// priority order: dealership override (bypasses the threshold), exact
// alias match, fuzzy match with category boost. threshold <= 0 selects the
// catalog's own threshold. A score equal to the threshold matches.
//
// An empty feature text or an empty catalog yields SourceNone; neither is
// an error.
func (e *Engine) MapFeature(cat Catalog, f ExtractedFeature, threshold float64) Result {
	norm := Normalize(f.Text)
	if norm == "" {
		return Result{Source: SourceNone}
	}

	if label, ok := cat.OverrideFor(norm); ok {
		e.log.Debug("featmap: override applied", "feature", f.Text, "label", label)
		return Result{Label: label, Confidence: 1.0, Source: SourceOverride}
	}

	if threshold <= 0 {
		threshold = cat.Threshold()
	}

	labels := cat.Labels()

	for _, label := range labels {
		for _, alias := range cat.Aliases(label) {
			if Normalize(alias) == norm {
				return Result{Label: label, Confidence: 1.0, Source: SourceExact}
			}
		}
	}

	// Fuzzy pass. Confidence is recomputed on every call: the boost
	// depends on the feature text, not on the catalog entry alone.
	var bestLabel string
	var bestScore float64

	for _, label := range labels {
		boost := cat.CategoryBoost(label, norm, f.Section)
		for _, alias := range cat.Aliases(label) {
			base := e.scorer.Score(norm, Normalize(alias))
			final := base + boost
			if final > 1.0 {
				final = 1.0
			}
			// Strict > keeps the first label reaching the maximum.
			if final > bestScore {
				bestScore = final
				bestLabel = label
			}
		}
	}

	if bestScore >= threshold && bestLabel != "" {
		e.log.Debug("featmap: fuzzy match", "feature", f.Text, "label", bestLabel, "score", bestScore)
		return Result{Label: bestLabel, Confidence: bestScore, Source: SourceFuzzy}
	}

	e.log.Debug("featmap: no match", "feature", f.Text, "best_score", bestScore)
	return Result{Confidence: bestScore, Source: SourceNone}
}

// MapFeatures runs MapFeature over a batch. Every resolved feature sets
// its label to true in the returned map; labels with no supporting feature
// are simply absent, never false — lack of sticker text for a checkbox is
// not evidence it should be unchecked. The full per-feature detail is
// returned alongside for audit.
func (e *Engine) MapFeatures(cat Catalog, features []ExtractedFeature, threshold float64) (map[string]bool, []Mapped) {
	states := make(map[string]bool)
	detail := make([]Mapped, 0, len(features))

	for _, f := range features {
		res := e.MapFeature(cat, f, threshold)
		if res.Matched() {
			states[res.Label] = true
		}
		detail = append(detail, Mapped{Feature: f, Result: res})
	}

	return states, detail
}
