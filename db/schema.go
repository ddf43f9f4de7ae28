// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_links (
	fingerprint TEXT PRIMARY KEY,
	row_id TEXT,
	external_id TEXT,
	email TEXT,
	phone TEXT,
	last_synced_hash TEXT NOT NULL,
	last_synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_links_email ON sync_links(email);
CREATE INDEX IF NOT EXISTS idx_sync_links_phone ON sync_links(phone);
CREATE INDEX IF NOT EXISTS idx_sync_links_external_id ON sync_links(external_id);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	direction TEXT NOT NULL,
	created INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	conflicts INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

// InitSchema creates all tables and indexes if they don't exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
