// Package repo persists sources and chat sessions in SQLite.
package repo

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or is not visible
// to the requesting owner.
var ErrNotFound = errors.New("repo: not found")

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id       INTEGER NOT NULL,
	kind           TEXT    NOT NULL,
	name           TEXT    NOT NULL,
	agent_role     TEXT    NOT NULL DEFAULT '',
	api_url        TEXT    NOT NULL DEFAULT '',
	api_key        TEXT    NOT NULL DEFAULT '',
	headers        TEXT    NOT NULL DEFAULT '{}',
	data_path      TEXT    NOT NULL DEFAULT '',
	pdf_path       TEXT    NOT NULL DEFAULT '',
	status         TEXT    NOT NULL DEFAULT 'pending',
	document_count INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT    NOT NULL DEFAULT '',
	last_synced    TIMESTAMP,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_owner ON sources(owner_id);

CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id   INTEGER NOT NULL,
	source_id  INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	title      TEXT    NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	sources    TEXT    NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repo: open %s: %w", path, err)
	}
	// Single writer; WAL lets readers proceed during ingestion updates.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("repo: configure %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repo: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
