// Package sqlite is the record store: ingested records, their
// classifications, analysis runs and insight reports.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// maxInVars bounds the placeholders in one IN (...) clause.
const maxInVars = 500

type Store struct {
	db *sql.DB
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		source_id  TEXT NOT NULL,
		author     TEXT DEFAULT '',
		community  TEXT DEFAULT '',
		url        TEXT DEFAULT '',
		text       TEXT NOT NULL,
		engagement INTEGER NOT NULL DEFAULT 0,
		posted_at  DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(source, source_id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_posted_at ON records(posted_at);

	CREATE TABLE IF NOT EXISTS classifications (
		record_id     TEXT PRIMARY KEY REFERENCES records(id),
		categories    TEXT NOT NULL,
		sentiment     TEXT NOT NULL,
		confidence    REAL NOT NULL,
		reasoning     TEXT DEFAULT '',
		model         TEXT DEFAULT '',
		classified_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_sentiment ON classifications(sentiment);

	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		brand         TEXT NOT NULL,
		range_label   TEXT NOT NULL,
		start_at      DATETIME NOT NULL,
		end_at        DATETIME NOT NULL,
		total_records INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_brand ON runs(brand, created_at);

	CREATE TABLE IF NOT EXISTS run_records (
		run_id    TEXT NOT NULL REFERENCES runs(id),
		record_id TEXT NOT NULL REFERENCES records(id),
		position  INTEGER NOT NULL,
		PRIMARY KEY (run_id, record_id)
	);

	CREATE TABLE IF NOT EXISTS insights (
		run_id            TEXT PRIMARY KEY REFERENCES runs(id),
		executive_summary TEXT NOT NULL,
		key_findings      TEXT NOT NULL,
		recommendations   TEXT NOT NULL,
		opportunities     TEXT NOT NULL,
		cost_estimate     TEXT DEFAULT '',
		generated_at      DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reclassify_queue (
		record_id   TEXT NOT NULL REFERENCES records(id),
		brand       TEXT NOT NULL,
		enqueued_at DATETIME NOT NULL,
		PRIMARY KEY (record_id, brand)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Migration: add error column to runs if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'error'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE runs ADD COLUMN error TEXT DEFAULT ''`); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Open initializes the schema at path and wraps the handle in a Store.
func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// chunks splits ids so each IN clause stays under maxInVars placeholders.
func chunks(ids []string) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += maxInVars {
		end := start + maxInVars
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
