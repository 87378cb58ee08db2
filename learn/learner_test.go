package learn

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/stickermatch/store"
)

// memCatalog is an in-memory Catalog recording mutations.
type memCatalog struct {
	aliases map[string]string // alias -> label
	added   int
	updated int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{aliases: map[string]string{}}
}

func (c *memCatalog) AddAlias(label, alias string) bool {
	if c.aliases[alias] == label {
		return false
	}
	c.aliases[alias] = label
	c.added++
	return true
}

func (c *memCatalog) UpdateAlias(oldText, newText, label string) bool {
	if c.aliases[oldText] == label && oldText == newText {
		return false
	}
	delete(c.aliases, oldText)
	c.aliases[newText] = label
	c.updated++
	return true
}

func (c *memCatalog) AliasLabel(alias string) (string, bool) {
	label, ok := c.aliases[alias]
	return label, ok
}

func TestRecordCorrection_WriteThrough(t *testing.T) {
	// WHAT: A correction immediately becomes an alias of the corrected
	// label, before any suggestion threshold is reached.
	// WHY: The correction must take effect on the very next mapping call.
	db := store.OpenMemory(t)
	cat := newMemCatalog()
	l := New(db, cat, nil)

	err := l.RecordCorrection(context.Background(), "Heated Mirrors", "Heated Seats", "Heated Exterior Mirrors")
	if err != nil {
		t.Fatalf("RecordCorrection: %v", err)
	}

	if label, ok := cat.AliasLabel("Heated Mirrors"); !ok || label != "Heated Exterior Mirrors" {
		t.Errorf("AliasLabel = %q,%v, want Heated Exterior Mirrors,true", label, ok)
	}
	history, err := l.History(context.Background(), "Heated Mirrors")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].PreviousLabel != "Heated Seats" {
		t.Errorf("history = %+v, want one record with previous label", history)
	}
}

func TestRecordCorrection_RequiresFields(t *testing.T) {
	// WHAT: Empty feature text or corrected label is rejected.
	// WHY: A blank alias would match everything after normalization.
	db := store.OpenMemory(t)
	l := New(db, newMemCatalog(), nil)

	if err := l.RecordCorrection(context.Background(), "", "", "Sunroof"); err == nil {
		t.Error("empty feature text: error = nil, want error")
	}
	if err := l.RecordCorrection(context.Background(), "moonroof", "", ""); err == nil {
		t.Error("empty corrected label: error = nil, want error")
	}
}

func TestSuggestImprovements_UnanimousPromoted(t *testing.T) {
	// WHAT: 3 corrections all agreeing on the same label produce a
	// suggestion for that feature text.
	// WHY: 3-of-3 meets both the minimum sample size and the 75% modal share.
	db := store.OpenMemory(t)
	l := New(db, newMemCatalog(), nil)
	ctx := context.Background()

	for range 3 {
		if err := l.RecordCorrection(ctx, "Heated Mirrors", "", "Heated Exterior Mirrors"); err != nil {
			t.Fatalf("RecordCorrection: %v", err)
		}
	}

	suggestions, err := l.SuggestImprovements(ctx)
	if err != nil {
		t.Fatalf("SuggestImprovements: %v", err)
	}
	if got := suggestions["Heated Mirrors"]; got != "Heated Exterior Mirrors" {
		t.Errorf("suggestion = %q, want Heated Exterior Mirrors", got)
	}
}

func TestSuggestImprovements_SplitVoteExcluded(t *testing.T) {
	// WHAT: 2-of-3 agreement (66%) is below the 75% modal share and yields
	// no suggestion.
	// WHY: A single noisy correction must not become a permanent rule.
	db := store.OpenMemory(t)
	l := New(db, newMemCatalog(), nil)
	ctx := context.Background()

	l.RecordCorrection(ctx, "Heated Mirrors", "", "Heated Exterior Mirrors")
	l.RecordCorrection(ctx, "Heated Mirrors", "", "Heated Exterior Mirrors")
	l.RecordCorrection(ctx, "Heated Mirrors", "", "Heated Side Mirrors")

	suggestions, err := l.SuggestImprovements(ctx)
	if err != nil {
		t.Fatalf("SuggestImprovements: %v", err)
	}
	if _, ok := suggestions["Heated Mirrors"]; ok {
		t.Errorf("suggestions contains Heated Mirrors at 66%% agreement: %v", suggestions)
	}
}

func TestSuggestImprovements_BelowMinimumExcluded(t *testing.T) {
	// WHAT: Fewer than 3 corrections never produce a suggestion, even when
	// unanimous.
	// WHY: MinCorrections guards against promoting a one-off.
	db := store.OpenMemory(t)
	l := New(db, newMemCatalog(), nil)
	ctx := context.Background()

	l.RecordCorrection(ctx, "Tow Hitch", "", "Towing Package")
	l.RecordCorrection(ctx, "Tow Hitch", "", "Towing Package")

	suggestions, err := l.SuggestImprovements(ctx)
	if err != nil {
		t.Fatalf("SuggestImprovements: %v", err)
	}
	if len(suggestions) != 0 {
		t.Errorf("suggestions = %v, want empty", suggestions)
	}
}

func TestApplySuggestions_SkipsAlreadyCorrect(t *testing.T) {
	// WHAT: A feature already aliased to the suggested label counts zero
	// mutations; a feature aliased elsewhere is moved via update.
	// WHY: apply_suggestions returns the number of real catalog changes.
	db := store.OpenMemory(t)
	cat := newMemCatalog()
	l := New(db, cat, nil)
	ctx := context.Background()

	// RecordCorrection write-through already aliases the text to the
	// suggested label, so applying should be a no-op for it.
	for range 3 {
		l.RecordCorrection(ctx, "Heated Mirrors", "", "Heated Exterior Mirrors")
	}

	applied, err := l.ApplySuggestions(ctx)
	if err != nil {
		t.Fatalf("ApplySuggestions: %v", err)
	}
	if applied != 0 {
		t.Errorf("applied = %d, want 0 (already correct)", applied)
	}

	// Re-point the alias elsewhere; applying must move it back.
	cat.aliases["Heated Mirrors"] = "Heated Seats"
	for range 3 {
		l.RecordCorrection(ctx, "Heated Mirrors", "Heated Seats", "Heated Exterior Mirrors")
	}
	// RecordCorrection re-aliased it; force the wrong label again to make
	// the update path observable.
	cat.aliases["Heated Mirrors"] = "Heated Seats"

	applied, err = l.ApplySuggestions(ctx)
	if err != nil {
		t.Fatalf("ApplySuggestions: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if label, _ := cat.AliasLabel("Heated Mirrors"); label != "Heated Exterior Mirrors" {
		t.Errorf("alias label = %q, want Heated Exterior Mirrors", label)
	}
}

func TestApplySuggestions_CompactsHistory(t *testing.T) {
	// WHAT: Applying a suggestion deletes that feature's correction history.
	// WHY: Applied corrections should not re-suggest forever.
	db := store.OpenMemory(t)
	cat := newMemCatalog()
	l := New(db, cat, nil)
	ctx := context.Background()

	for range 3 {
		l.RecordCorrection(ctx, "Tow Hitch", "", "Towing Package")
	}
	cat.aliases["Tow Hitch"] = "Accessories" // force a real mutation

	if _, err := l.ApplySuggestions(ctx); err != nil {
		t.Fatalf("ApplySuggestions: %v", err)
	}
	history, err := l.History(ctx, "Tow Hitch")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history after apply = %d records, want 0", len(history))
	}
}
