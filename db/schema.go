// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	// One statement per Exec; not every driver accepts a batch.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Timestamps are stored as RFC 3339 TEXT so the same statements run on
// SQLite and PostgreSQL.
const schema = `
-- Stored repository files
CREATE TABLE IF NOT EXISTS repo_file (
    scope_key TEXT NOT NULL,
    file_id TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    content TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (scope_key, file_id)
);

-- Per-requester raw file cache
CREATE TABLE IF NOT EXISTS file_cache (
    scope_key TEXT NOT NULL,
    file_id TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    content TEXT NOT NULL,
    fetched_at TEXT NOT NULL,
    PRIMARY KEY (scope_key, file_id)
);

-- Consensus Snapshots
CREATE TABLE IF NOT EXISTS consensus_snapshot (
    id TEXT PRIMARY KEY,
    scope_key TEXT NOT NULL,
    inputs_hash TEXT NOT NULL,
    computed_at TEXT NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consensus_snapshot_scope ON consensus_snapshot(scope_key, computed_at);
CREATE INDEX IF NOT EXISTS idx_consensus_snapshot_hash ON consensus_snapshot(scope_key, inputs_hash)
`
