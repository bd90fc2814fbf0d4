package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Verify we can actually connect to the database
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn
	// between the pollers, the ingest consumer and request handlers.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("create tables failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			originator TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body TEXT NOT NULL,
			direction TEXT NOT NULL,
			message_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			provider_message_id TEXT,
			sent_by TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_messages_provider_id
			ON messages(provider_message_id) WHERE provider_message_id IS NOT NULL;

		CREATE TABLE IF NOT EXISTS conversations (
			customer_phone TEXT PRIMARY KEY,
			last_inbound_at DATETIME,
			last_outbound_at DATETIME,
			last_read_inbound_at DATETIME,
			assigned_to TEXT,
			assigned_until DATETIME,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS call_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date_and_time DATETIME NOT NULL,
			phone_number TEXT NOT NULL,
			status_text TEXT NOT NULL,
			source_file TEXT NOT NULL,
			loaded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_call_records_source_file
			ON call_records(source_file);

		CREATE TABLE IF NOT EXISTS operators (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			active BOOLEAN DEFAULT 1,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// GetDB exposes the underlying handle for repository construction.
func (d *Database) GetDB() *sql.DB {
	if d == nil {
		return nil
	}
	return d.db
}

func (d *Database) Close() error {
	if d == nil {
		return errors.New("database is nil")
	}

	if d.db == nil {
		return errors.New("database already closed")
	}

	err := d.db.Close()
	d.db = nil
	return err
}
