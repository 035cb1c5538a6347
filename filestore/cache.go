// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package filestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Cache is a SQL-backed raw file cache keyed by scope. Each requester gets
// their own scope; nothing is shared through process globals.
type Cache struct {
	db          *sql.DB
	src         Source
	concurrency int
	now         func() time.Time
}

// RefreshStats summarizes one Refresh.
type RefreshStats struct {
	Fetched int
	Removed int
	Bytes   int
	Files   int
}

func NewCache(db *sql.DB, src Source, concurrency int) *Cache {
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Cache{db: db, src: src, concurrency: concurrency, now: time.Now}
}

// KnownHashes returns the cached (fileId -> hash) map for scope.
func (c *Cache) KnownHashes(ctx context.Context, scope Scope) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT file_id, content_hash FROM file_cache WHERE scope_key = $1
	`, scope.CacheKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	defer rows.Close()

	known := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		known[id] = hash
	}
	return known, rows.Err()
}

// Refresh brings the scope's cache in line with the source, fetching only
// files whose hash changed.
func (c *Cache) Refresh(ctx context.Context, scope Scope) (RefreshStats, error) {
	if err := scope.Validate(); err != nil {
		return RefreshStats{}, err
	}
	known, err := c.KnownHashes(ctx, scope)
	if err != nil {
		return RefreshStats{}, err
	}

	changes, err := changedSince(ctx, c.src, scope, known, c.concurrency)
	if err != nil {
		return RefreshStats{}, err
	}

	stats := RefreshStats{Files: len(known)}
	if len(changes) == 0 {
		return stats, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return RefreshStats{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fetchedAt := c.now().UTC().Format(time.RFC3339Nano)
	for _, ch := range changes {
		if ch.Removed {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM file_cache WHERE scope_key = $1 AND file_id = $2
			`, scope.CacheKey(), ch.FileID)
			if err != nil {
				return RefreshStats{}, fmt.Errorf("failed to evict %s: %w", ch.FileID, err)
			}
			stats.Removed++
			stats.Files--
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO file_cache (scope_key, file_id, content_hash, content, fetched_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (scope_key, file_id) DO UPDATE SET
				content_hash = excluded.content_hash,
				content = excluded.content,
				fetched_at = excluded.fetched_at
		`, scope.CacheKey(), ch.FileID, ch.NewHash, string(ch.Content), fetchedAt)
		if err != nil {
			return RefreshStats{}, fmt.Errorf("failed to cache %s: %w", ch.FileID, err)
		}
		if _, existed := known[ch.FileID]; !existed {
			stats.Files++
		}
		stats.Fetched++
		stats.Bytes += len(ch.Content)
	}

	if err := tx.Commit(); err != nil {
		return RefreshStats{}, fmt.Errorf("failed to commit cache refresh: %w", err)
	}
	return stats, nil
}

// Files returns the cached content for scope, keyed by file id.
func (c *Cache) Files(ctx context.Context, scope Scope) (map[string][]byte, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT file_id, content FROM file_cache WHERE scope_key = $1
	`, scope.CacheKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	defer rows.Close()

	files := make(map[string][]byte)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		files[id] = []byte(content)
	}
	return files, rows.Err()
}
