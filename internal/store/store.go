// Package store provides SQLite persistence for canonical postings, content
// snapshots, cached enrichment results, and pipeline run audit logs. The
// store exclusively owns persistence and transaction boundaries; every other
// component receives a *Store handle and writes only through its methods.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS postings (
  posting_id          TEXT PRIMARY KEY,
  url_canonical       TEXT NOT NULL,
  url_original        TEXT NOT NULL,
  source_id           TEXT NOT NULL,
  job_title           TEXT,
  institution         TEXT,
  department          TEXT,
  city                TEXT,
  country             TEXT,
  language            TEXT NOT NULL DEFAULT 'en',
  contract_type       TEXT,
  fte                 REAL,
  salary_min          REAL,
  salary_max          REAL,
  currency            TEXT,
  closing_date        TEXT,
  interview_date      TEXT,
  topic_tags          TEXT,
  rank_bucket         TEXT,
  rank_source         TEXT NOT NULL DEFAULT 'rules',
  relevance_score     REAL,
  seniority_match     INTEGER NOT NULL DEFAULT 0,
  relevance_rationale TEXT,
  synopsis            TEXT,
  open_status         TEXT NOT NULL DEFAULT 'open',
  first_seen_at       TEXT NOT NULL,
  last_seen_at        TEXT NOT NULL,
  emailed_at          TEXT,
  created_at          TEXT NOT NULL,
  updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS posting_snapshots (
  snapshot_id  INTEGER PRIMARY KEY AUTOINCREMENT,
  posting_id   TEXT NOT NULL REFERENCES postings(posting_id),
  content_text TEXT,
  content_html TEXT,
  content_hash TEXT NOT NULL,
  fetched_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_posting ON posting_snapshots(posting_id, fetched_at DESC);

CREATE TABLE IF NOT EXISTS enrichments (
  enrichment_id  INTEGER PRIMARY KEY AUTOINCREMENT,
  posting_id     TEXT NOT NULL,
  task_type      TEXT NOT NULL,
  prompt_version TEXT NOT NULL,
  model_id       TEXT NOT NULL,
  input_hash     TEXT NOT NULL,
  output_json    TEXT NOT NULL,
  created_at     TEXT NOT NULL,
  UNIQUE(task_type, input_hash)
);
CREATE INDEX IF NOT EXISTS idx_enrichments_posting ON enrichments(posting_id, task_type);

CREATE TABLE IF NOT EXISTS pipeline_runs (
  run_id           INTEGER PRIMARY KEY AUTOINCREMENT,
  run_key          TEXT NOT NULL,
  started_at       TEXT NOT NULL,
  finished_at      TEXT,
  status           TEXT NOT NULL DEFAULT 'running',
  postings_found   INTEGER NOT NULL DEFAULT 0,
  postings_new     INTEGER NOT NULL DEFAULT 0,
  postings_updated INTEGER NOT NULL DEFAULT 0,
  enrichments_made INTEGER NOT NULL DEFAULT 0,
  emails_sent      INTEGER NOT NULL DEFAULT 0,
  errors           TEXT,
  run_metadata     TEXT
);
`

// Store wraps the SQLite database file.
type Store struct {
	db *sql.DB

	// now is injected for tests that exercise time-based behaviour.
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. WAL journaling keeps writers from blocking readers.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite does not support concurrent writers on one handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close checkpoints the WAL into the main database file and closes the
// handle, so the single file is a complete point-in-time artifact.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// timestamp renders a time for storage. All stored times are UTC RFC 3339 so
// lexicographic comparison matches chronological order.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
