// Package catalog owns the durable feature catalog: the mapping from
// canonical checkbox labels to alias strings, confidence thresholds,
// category boosts, and per-dealership override patterns.
//
// The catalog is a JSON document persisted with write-temp-then-rename, so
// concurrent dealership runs may read while one writer replaces the file
// without ever exposing a torn document. Last writer wins.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hazyhaar/stickermatch/featmap"
)

// DefaultThreshold is the consolidated confidence threshold used when
// neither the document nor the configuration provides one.
const DefaultThreshold = 0.7

// defaultBoosts seeds the category-boost table for new catalogs.
var defaultBoosts = map[string]float64{
	"Convenience": 0.10,
	"Safety":      0.10,
	"Technology":  0.05,
	"Performance": 0.05,
	"Exterior":    0.05,
	"Interior":    0.05,
}

// Entry holds the aliases for one checkbox label, with optional per-entry
// overrides of the catalog-level threshold and boost table.
type Entry struct {
	Aliases   []string           `json:"aliases"`
	Threshold float64            `json:"threshold,omitempty"`
	Boosts    map[string]float64 `json:"boosts,omitempty"`
}

// Override forces a label for any feature whose normalized text contains
// the pattern. Overrides are dealership-specific and read-only during a
// run; matching confidence is always 1.0.
type Override struct {
	Pattern string `json:"pattern"`
	Label   string `json:"label"`
}

// document is the on-disk shape of the catalog.
type document struct {
	Threshold float64            `json:"threshold"`
	Boosts    map[string]float64 `json:"boosts,omitempty"`
	Features  map[string]*Entry  `json:"features"`
}

// overridesDocument maps dealership ID to that dealership's ordered
// override patterns.
type overridesDocument map[string][]Override

// Config configures catalog loading.
type Config struct {
	// Path is the catalog JSON document. Required for persistence; an
	// empty path yields an in-memory catalog whose Save is a no-op.
	Path string

	// OverridesPath is the JSON document holding overrides for all
	// dealerships. Optional.
	OverridesPath string

	// DealershipID selects which dealership's overrides to load.
	DealershipID string

	// Threshold is the fallback confidence threshold when the document
	// carries none. Zero selects DefaultThreshold.
	Threshold float64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Catalog is the in-memory catalog. Safe for concurrent readers; mutations
// are serialized internally and persisted on success.
type Catalog struct {
	mu         sync.RWMutex
	path       string
	threshold  float64
	boosts     map[string]float64
	boostOrder []string
	entries    map[string]*Entry
	labels     []string
	overrides  []Override
	log        *slog.Logger
}

// Load reads the catalog and override documents. It never fails past this
// boundary: a missing or corrupt document is logged and yields an empty
// catalog, degrading mapping to "no matches" instead of aborting the run.
func Load(cfg Config) *Catalog {
	cfg.defaults()

	c := &Catalog{
		path:      cfg.Path,
		threshold: cfg.Threshold,
		boosts:    map[string]float64{},
		entries:   map[string]*Entry{},
		log:       cfg.Logger,
	}
	for k, v := range defaultBoosts {
		c.boosts[k] = v
	}

	if cfg.Path != "" {
		if err := c.loadDocument(cfg.Path); err != nil {
			c.log.Warn("catalog: load failed, starting empty", "path", cfg.Path, "error", err)
		}
	}

	if cfg.OverridesPath != "" && cfg.DealershipID != "" {
		if err := c.loadOverrides(cfg.OverridesPath, cfg.DealershipID); err != nil {
			c.log.Warn("catalog: override load failed", "path", cfg.OverridesPath, "error", err)
		}
	}

	c.reindex()
	c.log.Info("catalog: loaded", "labels", len(c.entries), "overrides", len(c.overrides))
	return c
}

func (c *Catalog) loadDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if doc.Threshold > 0 {
		c.threshold = doc.Threshold
	}
	if doc.Boosts != nil {
		c.boosts = doc.Boosts
	}
	for label, e := range doc.Features {
		if e == nil {
			e = &Entry{}
		}
		if _, dup := c.entries[label]; dup {
			return fmt.Errorf("catalog: duplicate label %q", label)
		}
		c.entries[label] = e
	}
	return nil
}

func (c *Catalog) loadOverrides(path, dealershipID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc overridesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	c.overrides = doc[dealershipID]
	return nil
}

// reindex rebuilds the sorted label and boost-category indexes. Stable
// iteration order is load-bearing: fuzzy ties are first-winner.
func (c *Catalog) reindex() {
	c.labels = make([]string, 0, len(c.entries))
	for label := range c.entries {
		c.labels = append(c.labels, label)
	}
	sort.Strings(c.labels)

	c.boostOrder = make([]string, 0, len(c.boosts))
	for name := range c.boosts {
		c.boostOrder = append(c.boostOrder, name)
	}
	sort.Strings(c.boostOrder)
}

// Save writes the catalog document atomically: marshal to a temp file in
// the same directory, fsync, then rename over the target. A save failure
// is reported to the caller but leaves the in-memory state intact.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	if c.path == "" {
		return nil
	}

	doc := document{
		Threshold: c.threshold,
		Boosts:    c.boosts,
		Features:  c.entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("catalog: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("catalog: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("catalog: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog: close: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog: rename: %w", err)
	}
	return nil
}

// AddAlias registers alias under label, creating the entry if needed.
// A no-op (returning false) when the alias already exists under that
// label. Persists on mutation; a persistence failure is logged and the
// in-memory mutation kept.
func (c *Catalog) AddAlias(label, alias string) bool {
	if label == "" || strings.TrimSpace(alias) == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[label]
	if e == nil {
		e = &Entry{}
		c.entries[label] = e
		c.reindex()
	}
	for _, a := range e.Aliases {
		if a == alias {
			return false
		}
	}
	e.Aliases = append(e.Aliases, alias)

	if err := c.saveLocked(); err != nil {
		c.log.Error("catalog: persist after add_alias failed", "label", label, "error", err)
	}
	return true
}

// UpdateAlias moves an alias to a (possibly different) label: it is
// removed wherever it currently appears and added under label. Idempotent.
func (c *Catalog) UpdateAlias(oldText, newText, label string) bool {
	if label == "" || strings.TrimSpace(newText) == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for l, e := range c.entries {
		if l == label && oldText == newText {
			continue
		}
		kept := e.Aliases[:0]
		for _, a := range e.Aliases {
			if a == oldText {
				changed = true
				continue
			}
			kept = append(kept, a)
		}
		e.Aliases = kept
	}

	e := c.entries[label]
	if e == nil {
		e = &Entry{}
		c.entries[label] = e
		c.reindex()
	}
	present := false
	for _, a := range e.Aliases {
		if a == newText {
			present = true
			break
		}
	}
	if !present {
		e.Aliases = append(e.Aliases, newText)
		changed = true
	}

	if changed {
		if err := c.saveLocked(); err != nil {
			c.log.Error("catalog: persist after update_alias failed", "label", label, "error", err)
		}
	}
	return changed
}

// OverrideFor returns the forced label for the first override pattern
// whose normalized form is a substring of the normalized input. Iteration
// follows the override document's insertion order, so repeated calls are
// deterministic.
func (c *Catalog) OverrideFor(normalized string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ov := range c.overrides {
		if p := featmap.Normalize(ov.Pattern); p != "" && strings.Contains(normalized, p) {
			return ov.Label, true
		}
	}
	return "", false
}

// Labels returns all checkbox labels in sorted order.
func (c *Catalog) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Aliases returns the aliases for a label in insertion order.
func (c *Catalog) Aliases(label string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.entries[label]
	if e == nil {
		return nil
	}
	out := make([]string, len(e.Aliases))
	copy(out, e.Aliases)
	return out
}

// Threshold returns the catalog-level confidence threshold.
func (c *Catalog) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// CategoryBoost returns the additive boost for a feature scored against
// label. The entry's own boost table wins over the catalog table. The
// section hint is consulted first; otherwise the first category name
// (case-insensitive, stable order) contained in the normalized text wins.
func (c *Catalog) CategoryBoost(label, normalized, section string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	boosts := c.boosts
	order := c.boostOrder
	if e := c.entries[label]; e != nil && e.Boosts != nil {
		boosts = e.Boosts
		order = make([]string, 0, len(boosts))
		for name := range boosts {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	if section != "" {
		for _, name := range order {
			if strings.EqualFold(name, section) {
				return boosts[name]
			}
		}
	}
	for _, name := range order {
		if strings.Contains(normalized, strings.ToLower(name)) {
			return boosts[name]
		}
	}
	return 0.0
}

// AliasLabel scans the catalog for the label an alias text currently maps
// to. Used by the learner to decide between update and add.
func (c *Catalog) AliasLabel(alias string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, label := range c.labels {
		for _, a := range c.entries[label].Aliases {
			if a == alias {
				return label, true
			}
		}
	}
	return "", false
}

// Len returns the number of checkbox labels.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
