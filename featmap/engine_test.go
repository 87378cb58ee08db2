package featmap

import (
	"strings"
	"testing"
)

// stubCatalog is a minimal in-memory Catalog for engine tests.
type stubCatalog struct {
	overrides map[string]string // normalized pattern -> label
	entries   map[string][]string
	labels    []string
	threshold float64
	boost     float64 // flat boost returned for every label
}

func (c *stubCatalog) OverrideFor(normalized string) (string, bool) {
	for pattern, label := range c.overrides {
		if strings.Contains(normalized, pattern) {
			return label, true
		}
	}
	return "", false
}

func (c *stubCatalog) Labels() []string            { return c.labels }
func (c *stubCatalog) Aliases(label string) []string { return c.entries[label] }
func (c *stubCatalog) Threshold() float64          { return c.threshold }

func (c *stubCatalog) CategoryBoost(label, normalized, section string) float64 {
	return c.boost
}

// fixedScorer always returns the same score, isolating engine logic from
// edit-distance arithmetic.
type fixedScorer struct{ score float64 }

func (s fixedScorer) Score(a, b string) float64 { return s.score }

func TestMapFeature_OverrideWins(t *testing.T) {
	// WHAT: An override pattern beats an exact alias elsewhere, with
	// confidence 1.0 and source override.
	// WHY: Dealership overrides are forced mappings that bypass scoring.
	cat := &stubCatalog{
		overrides: map[string]string{"leather": "Leather Seats"},
		entries:   map[string][]string{"Premium Interior": {"leather seating"}},
		labels:    []string{"Premium Interior"},
		threshold: 0.7,
	}
	e := NewEngine(LevenshteinScorer{}, nil)

	res := e.MapFeature(cat, ExtractedFeature{Text: "Leather Seating"}, 0)
	if res.Label != "Leather Seats" || res.Confidence != 1.0 || res.Source != SourceOverride {
		t.Errorf("MapFeature = %+v, want {Leather Seats 1.0 override}", res)
	}
}

func TestMapFeature_ExactMatch(t *testing.T) {
	// WHAT: A normalized-equal alias matches with confidence 1.0 before any
	// fuzzy scoring happens.
	// WHY: Exact lookup is the fast path and must not depend on the scorer.
	cat := &stubCatalog{
		entries:   map[string][]string{"Heated Seats": {"Heated Seats!"}},
		labels:    []string{"Heated Seats"},
		threshold: 0.7,
	}
	// A zero scorer proves the exact path does not consult fuzzy scoring.
	e := NewEngine(fixedScorer{0}, nil)

	res := e.MapFeature(cat, ExtractedFeature{Text: "heated seats"}, 0)
	if res.Label != "Heated Seats" || res.Confidence != 1.0 || res.Source != SourceExact {
		t.Errorf("MapFeature = %+v, want {Heated Seats 1.0 exact}", res)
	}
}

func TestMapFeature_ThresholdBoundaryInclusive(t *testing.T) {
	// WHAT: A score exactly equal to the threshold matches (>=, not >).
	// WHY: The boundary case decides real mappings at the default threshold.
	cat := &stubCatalog{
		entries:   map[string][]string{"Sunroof": {"moonroof"}},
		labels:    []string{"Sunroof"},
		threshold: 0.7,
	}
	e := NewEngine(fixedScorer{0.7}, nil)

	res := e.MapFeature(cat, ExtractedFeature{Text: "panoramic roof"}, 0)
	if res.Source != SourceFuzzy || res.Label != "Sunroof" {
		t.Errorf("MapFeature at boundary = %+v, want fuzzy Sunroof", res)
	}

	// Just below the threshold must not match.
	e2 := NewEngine(fixedScorer{0.699}, nil)
	res2 := e2.MapFeature(cat, ExtractedFeature{Text: "panoramic roof"}, 0)
	if res2.Source != SourceNone {
		t.Errorf("MapFeature below boundary = %+v, want none", res2)
	}
}

func TestMapFeature_BoostCappedAtOne(t *testing.T) {
	// WHAT: base 0.97 + boost 0.1 yields confidence 1.0, not 1.07.
	// WHY: Confidence is a probability-like score; boosts must not overflow it.
	cat := &stubCatalog{
		entries:   map[string][]string{"Lane Assist": {"lane keeping assist"}},
		labels:    []string{"Lane Assist"},
		threshold: 0.7,
		boost:     0.1,
	}
	e := NewEngine(fixedScorer{0.97}, nil)

	res := e.MapFeature(cat, ExtractedFeature{Text: "lane keep assistance", Section: "Safety"}, 0)
	if res.Confidence != 1.0 {
		t.Errorf("Confidence = %f, want 1.0", res.Confidence)
	}
}

func TestMapFeature_FirstWinnerTieBreak(t *testing.T) {
	// WHAT: When two labels reach the same best score, the first label in
	// catalog order wins.
	// WHY: Deterministic tie-breaking; strict > comparison keeps the first
	// maximum rather than the last.
	cat := &stubCatalog{
		entries: map[string][]string{
			"Alpha Feature": {"alias one"},
			"Beta Feature":  {"alias two"},
		},
		labels:    []string{"Alpha Feature", "Beta Feature"},
		threshold: 0.5,
	}
	e := NewEngine(fixedScorer{0.8}, nil)

	res := e.MapFeature(cat, ExtractedFeature{Text: "something"}, 0)
	if res.Label != "Alpha Feature" {
		t.Errorf("tie went to %q, want Alpha Feature", res.Label)
	}
}

func TestMapFeature_EmptyInputs(t *testing.T) {
	// WHAT: Empty feature text and an empty catalog both yield SourceNone.
	// WHY: Neither is an error; the workflow records them and moves on.
	e := NewEngine(LevenshteinScorer{}, nil)
	empty := &stubCatalog{threshold: 0.7}

	if res := e.MapFeature(empty, ExtractedFeature{Text: "  !! "}, 0); res.Source != SourceNone {
		t.Errorf("empty text: source = %q, want none", res.Source)
	}
	if res := e.MapFeature(empty, ExtractedFeature{Text: "Heated Seats"}, 0); res.Source != SourceNone {
		t.Errorf("empty catalog: source = %q, want none", res.Source)
	}
}

func TestMapFeature_NoMatchKeepsBestScore(t *testing.T) {
	// WHAT: A below-threshold result reports the best score seen.
	// WHY: The unmatched audit trail records the near-miss score for
	// operator review.
	cat := &stubCatalog{
		entries:   map[string][]string{"Sunroof": {"moonroof"}},
		labels:    []string{"Sunroof"},
		threshold: 0.9,
	}
	e := NewEngine(fixedScorer{0.6}, nil)

	res := e.MapFeature(cat, ExtractedFeature{Text: "towing package"}, 0)
	if res.Source != SourceNone || res.Confidence != 0.6 {
		t.Errorf("MapFeature = %+v, want none with confidence 0.6", res)
	}
}

func TestMapFeatures_AbsenceIsNotNegation(t *testing.T) {
	// WHAT: Only resolved labels appear in the result, as true; unresolved
	// catalog labels are absent, never false.
	// WHY: Lack of sticker support for a checkbox is not evidence it should
	// be unchecked.
	cat := &stubCatalog{
		entries: map[string][]string{
			"Bluetooth": {"bluetooth"},
			"Sunroof":   {"sunroof"},
		},
		labels:    []string{"Bluetooth", "Sunroof"},
		threshold: 0.7,
	}
	e := NewEngine(LevenshteinScorer{}, nil)

	states, detail := e.MapFeatures(cat, []ExtractedFeature{{Text: "Bluetooth"}}, 0)
	if v, ok := states["Bluetooth"]; !ok || !v {
		t.Errorf("states[Bluetooth] = %v,%v, want true,true", v, ok)
	}
	if _, ok := states["Sunroof"]; ok {
		t.Error("states contains Sunroof, want absent")
	}
	if len(detail) != 1 {
		t.Errorf("detail length = %d, want 1", len(detail))
	}
}
