package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writes serialize, and an in-memory database is shared
	// by every caller instead of being per-connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema if it doesn't exist yet
func (db *DB) RunMigrations() error {
	migration := `
-- Inspection sessions
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    last_used_at INTEGER NOT NULL,
    sequence_counter INTEGER NOT NULL DEFAULT 1 CHECK(sequence_counter >= 1),
    is_active INTEGER NOT NULL DEFAULT 0 CHECK(is_active IN (0, 1))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_single_active_session ON sessions(is_active) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS idx_sessions_last_used ON sessions(last_used_at);

-- Photo records
CREATE TABLE IF NOT EXISTS photo_records (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    sequence_number INTEGER NOT NULL CHECK(sequence_number <> 0),
    captured_at INTEGER NOT NULL,
    image_ref TEXT NOT NULL,
    thumbnail_ref TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    latitude REAL,
    longitude REAL,
    orientation TEXT NOT NULL,
    notes TEXT,
    annotated INTEGER NOT NULL DEFAULT 0 CHECK(annotated IN (0, 1)),
    modified_at INTEGER NOT NULL,
    UNIQUE (session_id, sequence_number),
    FOREIGN KEY (session_id) REFERENCES sessions(id)
);
CREATE INDEX IF NOT EXISTS idx_photo_records_captured ON photo_records(captured_at);

-- Pending deletions, replayed at startup
CREATE TABLE IF NOT EXISTS deletion_intents (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
