package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	return Load(Config{Path: path})
}

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	// WHAT: A missing catalog document yields an empty catalog, not an error.
	// WHY: Catalog I/O failure degrades mapping to "no matches" instead of
	// aborting the run.
	c := Load(Config{Path: filepath.Join(t.TempDir(), "nope.json")})
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if c.Threshold() != DefaultThreshold {
		t.Errorf("Threshold = %f, want %f", c.Threshold(), DefaultThreshold)
	}
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	// WHAT: A corrupt document is logged and ignored.
	// WHY: One bad write must not take every dealership run down.
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := Load(Config{Path: path})
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestRoundTrip(t *testing.T) {
	// WHAT: save(load(X)) == X: labels, aliases, threshold, and boosts all
	// survive a save/load cycle.
	// WHY: The catalog is the system's accumulated knowledge; silent loss
	// on round-trip would erase learned aliases.
	path := filepath.Join(t.TempDir(), "catalog.json")

	c := Load(Config{Path: path})
	c.AddAlias("Heated Seats", "heated seats")
	c.AddAlias("Heated Seats", "seat heaters")
	c.AddAlias("Sunroof", "moonroof")

	c2 := Load(Config{Path: path})
	if c2.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c2.Len())
	}
	aliases := c2.Aliases("Heated Seats")
	if len(aliases) != 2 || aliases[0] != "heated seats" || aliases[1] != "seat heaters" {
		t.Errorf("Aliases = %v, want [heated seats, seat heaters]", aliases)
	}
	if c2.Threshold() != c.Threshold() {
		t.Errorf("Threshold = %f, want %f", c2.Threshold(), c.Threshold())
	}
}

func TestSave_AtomicReplace(t *testing.T) {
	// WHAT: Save leaves no temp files behind and the target is always a
	// complete JSON document.
	// WHY: Concurrent dealership runs read this file; a torn write would
	// corrupt every reader.
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	c := Load(Config{Path: path})
	c.AddAlias("Bluetooth", "bluetooth audio")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "catalog.json" {
		t.Errorf("directory contents = %v, want only catalog.json", entries)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Errorf("saved document is not valid JSON: %v", err)
	}
}

func TestAddAlias_Idempotent(t *testing.T) {
	// WHAT: Adding the same alias twice reports false the second time and
	// does not duplicate it.
	// WHY: Corrections repeat; the catalog must not accumulate copies.
	c := testCatalog(t)

	if !c.AddAlias("Heated Seats", "heated seats") {
		t.Error("first AddAlias = false, want true")
	}
	if c.AddAlias("Heated Seats", "heated seats") {
		t.Error("second AddAlias = true, want false")
	}
	if n := len(c.Aliases("Heated Seats")); n != 1 {
		t.Errorf("alias count = %d, want 1", n)
	}
}

func TestUpdateAlias_MovesBetweenLabels(t *testing.T) {
	// WHAT: UpdateAlias removes the text from its old label and adds it
	// under the new one.
	// WHY: apply_suggestions re-homes consistently-corrected aliases.
	c := testCatalog(t)
	c.AddAlias("Heated Mirrors", "heated mirrors")

	if !c.UpdateAlias("heated mirrors", "heated mirrors", "Heated Exterior Mirrors") {
		t.Fatal("UpdateAlias = false, want true")
	}
	if len(c.Aliases("Heated Mirrors")) != 0 {
		t.Errorf("old label still has aliases: %v", c.Aliases("Heated Mirrors"))
	}
	if label, ok := c.AliasLabel("heated mirrors"); !ok || label != "Heated Exterior Mirrors" {
		t.Errorf("AliasLabel = %q,%v, want Heated Exterior Mirrors,true", label, ok)
	}
}

func TestOverrideFor_InsertionOrder(t *testing.T) {
	// WHAT: The first matching override in document order wins.
	// WHY: Operators order override patterns from specific to general.
	path := filepath.Join(t.TempDir(), "overrides.json")
	doc := map[string][]Override{
		"dealer1": {
			{Pattern: "leather trimmed", Label: "Premium Interior"},
			{Pattern: "leather", Label: "Leather Seats"},
		},
	}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	c := Load(Config{OverridesPath: path, DealershipID: "dealer1"})

	if label, ok := c.OverrideFor("leather trimmed seating"); !ok || label != "Premium Interior" {
		t.Errorf("OverrideFor(specific) = %q,%v, want Premium Interior,true", label, ok)
	}
	if label, ok := c.OverrideFor("leather seating"); !ok || label != "Leather Seats" {
		t.Errorf("OverrideFor(general) = %q,%v, want Leather Seats,true", label, ok)
	}
	if _, ok := c.OverrideFor("cloth seating"); ok {
		t.Error("OverrideFor(no match) = true, want false")
	}
}

func TestCategoryBoost_SectionHintWins(t *testing.T) {
	// WHAT: A section hint selects its category boost even when the text
	// names a different category; without a hint the text decides.
	// WHY: The sticker's own section header is stronger evidence than a
	// word inside the feature text.
	c := testCatalog(t)
	c.AddAlias("Blind Spot Monitor", "blind spot monitor")

	if b := c.CategoryBoost("Blind Spot Monitor", "blind spot monitor", "Safety"); b != 0.10 {
		t.Errorf("boost with Safety hint = %f, want 0.10", b)
	}
	if b := c.CategoryBoost("Blind Spot Monitor", "advanced technology group", ""); b != 0.05 {
		t.Errorf("boost from text = %f, want 0.05", b)
	}
	if b := c.CategoryBoost("Blind Spot Monitor", "towing package", ""); b != 0.0 {
		t.Errorf("boost with no category = %f, want 0.0", b)
	}
}
