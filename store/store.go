// Package store opens the stickermatch SQLite database and owns its
// schema: correction history for the mapping learner, run summaries, and
// the unmatched-feature audit trail.
//
// The catalog itself is NOT here — it is a JSON document replaced
// atomically (see the catalog package) so concurrent dealership runs can
// share it without a database dependency.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := store.Open("data/stickermatch.db")
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const schema = `
CREATE TABLE IF NOT EXISTS corrections (
    id              TEXT PRIMARY KEY,
    feature_text    TEXT NOT NULL,
    previous_label  TEXT,
    corrected_label TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_corrections_feature ON corrections(feature_text);

CREATE TABLE IF NOT EXISTS runs (
    id                 TEXT PRIMARY KEY,
    dealership_id      TEXT NOT NULL,
    dealership_name    TEXT NOT NULL DEFAULT '',
    outcome            TEXT NOT NULL,
    error              TEXT NOT NULL DEFAULT '',
    vehicles_processed INTEGER NOT NULL DEFAULT 0,
    successful_updates INTEGER NOT NULL DEFAULT 0,
    failed_updates     INTEGER NOT NULL DEFAULT 0,
    skipped_vehicles   INTEGER NOT NULL DEFAULT 0,
    features_found     INTEGER NOT NULL DEFAULT 0,
    features_mapped    INTEGER NOT NULL DEFAULT 0,
    checkboxes_updated INTEGER NOT NULL DEFAULT 0,
    report_path        TEXT NOT NULL DEFAULT '',
    started_at         INTEGER NOT NULL,
    finished_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_dealership ON runs(dealership_id, started_at DESC);

CREATE TABLE IF NOT EXISTS unmatched_features (
    id           TEXT PRIMARY KEY,
    run_id       TEXT NOT NULL,
    vehicle_id   TEXT NOT NULL,
    feature_text TEXT NOT NULL,
    best_score   REAL NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_unmatched_run ON unmatched_features(run_id);
CREATE INDEX IF NOT EXISTS idx_unmatched_feature ON unmatched_features(feature_text);
`

// Open opens the database at path with WAL mode and production-safe
// pragmas, creates parent directories, and applies the schema.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for testing. MaxOpenConns(1)
// keeps every query on the same in-memory database; Cleanup closes it.
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
