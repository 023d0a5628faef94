// Package state persists the last confirmed switch states and the switch
// change history. The reconciliation engine is the only writer; the status
// API reads concurrently.
package state

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Last confirmed state per switch output
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS switch_state (
			name TEXT PRIMARY KEY,
			is_on INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create switch_state table: %w", err)
	}

	// Append-only change history, pruned by retention window on every persist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS switch_events (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			switch TEXT NOT NULL,
			old_state INTEGER NOT NULL,
			new_state INTEGER NOT NULL,
			cause TEXT NOT NULL,
			schedule TEXT,
			input TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_switch_events_ts ON switch_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_switch_events_switch ON switch_events(switch, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create switch_events table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
