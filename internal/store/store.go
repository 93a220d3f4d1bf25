// Package store persists Configs, their running state and per-config HTTP
// logging overrides in an embedded SQLite database, and implements the
// default-template merge and JSON import/export policies.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	// ErrBusy is returned when a write transaction cannot be acquired.
	ErrBusy = errors.New("store busy")
	// ErrMalformed is returned on invalid JSON payloads.
	ErrMalformed = errors.New("malformed payload")
	// ErrConflict is returned when an incremental import would violate the
	// (context, namespace, local_address, local_port, protocol) uniqueness
	// invariant.
	ErrConflict = errors.New("conflicting config")
	// ErrNotFound is returned by get/update/delete for an unknown id.
	ErrNotFound = errors.New("config not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS configs (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS config_state (
	id         INTEGER PRIMARY KEY,
	config_id  INTEGER UNIQUE,
	is_running INTEGER,
	process_id INTEGER NULL
);
CREATE TABLE IF NOT EXISTS http_logs_config (
	config_id      INTEGER PRIMARY KEY,
	enabled        INTEGER,
	max_file_size  INTEGER,
	retention_days INTEGER,
	auto_cleanup   INTEGER,
	updated_at     TEXT
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

// Store wraps a *sql.DB opened against a single SQLite file. The pool is
// capped at one open connection, matching SQLite's single-writer model, and
// every write method also holds mu for its duration.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or reuses) the SQLite file at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func mapSQLErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	// modernc.org/sqlite surfaces SQLITE_BUSY as a plain error string; the
	// driver doesn't expose a typed sentinel for it.
	if containsBusy(err.Error()) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

func containsBusy(msg string) bool {
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
