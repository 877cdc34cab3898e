// Package store is the local persisted log: message content, MIME parts,
// per-message reconciliation records and per-folder sync checkpoints, all
// in one sqlite database. Status columns move forward only; the SQL layer
// itself rejects regressions so concurrent paths cannot undo each other.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// dsnOptions enables WAL so the observer's reads run concurrently with
// sync-pass writes, and turns foreign keys on for the parts cascade.
const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB is the handle to the local message log.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the log database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open message log: %w", err)
	}
	return &DB{db}, nil
}
