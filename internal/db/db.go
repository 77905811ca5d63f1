// Package db provides the SQLite connection and schema for visbind.
package db

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
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// InitSchema creates all required tables
func InitSchema(db *sql.DB) error {
	// Write ledger - one row per command a binding submitted
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS write_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			mode TEXT NOT NULL,
			binding_id TEXT NOT NULL,
			widget_id TEXT,
			point_key TEXT,
			oid TEXT NOT NULL,
			value TEXT,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_write_ledger_ts ON write_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_write_ledger_oid_ts ON write_ledger(oid, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create write_ledger table: %w", err)
	}

	// A session commits exactly once
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_write_ledger_session
		ON write_ledger(session_id)
		WHERE session_id IS NOT NULL AND session_id != '';
	`)
	if err != nil {
		return fmt.Errorf("failed to create idx_write_ledger_session index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
