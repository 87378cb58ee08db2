// Package learn records human corrections against the feature catalog and
// promotes consistently-preferred corrections into permanent aliases.
package learn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/stickermatch/store"
)

// Promotion policy: a correction becomes a suggestion only once at least
// MinCorrections records exist for the feature text and the modal label
// accounts for at least ModalShare of them. Guards against a single noisy
// correction becoming a permanent rule.
const (
	MinCorrections = 3
	ModalShare     = 0.75
)

// Correction is one recorded human correction for a feature string.
type Correction struct {
	ID             string    `json:"id"`
	FeatureText    string    `json:"feature_text"`
	PreviousLabel  string    `json:"previous_label,omitempty"`
	CorrectedLabel string    `json:"corrected_label"`
	CreatedAt      time.Time `json:"created_at"`
}

// Catalog is the mutable view of the feature catalog the learner needs.
type Catalog interface {
	AddAlias(label, alias string) bool
	UpdateAlias(oldText, newText, label string) bool
	AliasLabel(alias string) (string, bool)
}

// Learner aggregates correction history and feeds it back into the catalog.
type Learner struct {
	db    *sql.DB
	cat   Catalog
	log   *slog.Logger
	newID func() string
}

// New creates a Learner over the given database and catalog.
// A nil logger falls back to slog.Default().
func New(db *sql.DB, cat Catalog, log *slog.Logger) *Learner {
	if log == nil {
		log = slog.Default()
	}
	return &Learner{
		db:    db,
		cat:   cat,
		log:   log,
		newID: uuid.NewString,
	}
}

// RecordCorrection appends a correction to the feature's history and adds
// the feature text as an alias of the corrected label, so the correction
// takes effect on the very next mapping call (write-through, not batched).
//
// The catalog mutation happens first: a failing history insert is returned
// to the caller but never undoes the in-memory effect.
func (l *Learner) RecordCorrection(ctx context.Context, featureText, previousLabel, correctedLabel string) error {
	if featureText == "" || correctedLabel == "" {
		return fmt.Errorf("learn: feature text and corrected label are required")
	}

	l.cat.AddAlias(correctedLabel, featureText)
	l.log.Info("learn: correction recorded",
		"feature", featureText, "from", previousLabel, "to", correctedLabel)

	var prev any
	if previousLabel != "" {
		prev = previousLabel
	}
	_, err := store.Exec(ctx, l.db, `
		INSERT INTO corrections (id, feature_text, previous_label, corrected_label, created_at)
		VALUES (?,?,?,?,?)`,
		l.newID(), featureText, prev, correctedLabel, time.Now().Unix())
	if err != nil {
		l.log.Error("learn: persist correction failed", "feature", featureText, "error", err)
		return fmt.Errorf("learn: persist correction: %w", err)
	}
	return nil
}

// History returns all corrections recorded for a feature text, oldest first.
func (l *Learner) History(ctx context.Context, featureText string) ([]Correction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, feature_text, COALESCE(previous_label, ''), corrected_label, created_at
		FROM corrections WHERE feature_text = ? ORDER BY created_at, id`, featureText)
	if err != nil {
		return nil, fmt.Errorf("learn: history: %w", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var c Correction
		var ts int64
		if err := rows.Scan(&c.ID, &c.FeatureText, &c.PreviousLabel, &c.CorrectedLabel, &ts); err != nil {
			return nil, fmt.Errorf("learn: history scan: %w", err)
		}
		c.CreatedAt = time.Unix(ts, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SuggestImprovements returns, for every feature text with at least
// MinCorrections recorded corrections, the modal corrected label — but
// only when that mode accounts for at least ModalShare of the records.
func (l *Learner) SuggestImprovements(ctx context.Context) (map[string]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT feature_text, corrected_label, COUNT(*)
		FROM corrections
		GROUP BY feature_text, corrected_label`)
	if err != nil {
		return nil, fmt.Errorf("learn: suggest: %w", err)
	}
	defer rows.Close()

	type tally struct {
		total  int
		counts map[string]int
	}
	tallies := map[string]*tally{}

	for rows.Next() {
		var feature, label string
		var n int
		if err := rows.Scan(&feature, &label, &n); err != nil {
			return nil, fmt.Errorf("learn: suggest scan: %w", err)
		}
		t := tallies[feature]
		if t == nil {
			t = &tally{counts: map[string]int{}}
			tallies[feature] = t
		}
		t.total += n
		t.counts[label] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("learn: suggest: %w", err)
	}

	suggestions := map[string]string{}
	for feature, t := range tallies {
		if t.total < MinCorrections {
			continue
		}
		// Modal label; ties broken by lexicographic order for determinism.
		labels := make([]string, 0, len(t.counts))
		for label := range t.counts {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		var modal string
		var modalCount int
		for _, label := range labels {
			if t.counts[label] > modalCount {
				modal, modalCount = label, t.counts[label]
			}
		}
		if float64(modalCount)/float64(t.total) >= ModalShare {
			suggestions[feature] = modal
		}
	}

	l.log.Info("learn: suggestions computed", "count", len(suggestions))
	return suggestions, nil
}

// ApplySuggestions applies every pending suggestion to the catalog and
// returns the number of catalog mutations performed. A feature already
// mapped to the suggested label is skipped. Applied features have their
// correction history compacted away; history is otherwise append-only.
func (l *Learner) ApplySuggestions(ctx context.Context) (int, error) {
	suggestions, err := l.SuggestImprovements(ctx)
	if err != nil {
		return 0, err
	}

	features := make([]string, 0, len(suggestions))
	for f := range suggestions {
		features = append(features, f)
	}
	sort.Strings(features)

	var applied int
	for _, feature := range features {
		suggested := suggestions[feature]

		current, ok := l.cat.AliasLabel(feature)
		if ok && current == suggested {
			continue
		}

		var changed bool
		if ok {
			changed = l.cat.UpdateAlias(feature, feature, suggested)
		} else {
			changed = l.cat.AddAlias(suggested, feature)
		}
		if !changed {
			continue
		}
		applied++

		if _, err := store.Exec(ctx, l.db,
			`DELETE FROM corrections WHERE feature_text = ?`, feature); err != nil {
			l.log.Warn("learn: compact history failed", "feature", feature, "error", err)
		}
	}

	l.log.Info("learn: suggestions applied", "applied", applied)
	return applied, nil
}
