// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/danielhkuo/quorum/compiler"
)

var ErrInvalidFileID = errors.New("invalid file id")

// NormalizeFileID cleans a file id and strips a leading "annotations/".
// Ids that escape the annotations directory are rejected.
func NormalizeFileID(fileID string) (string, error) {
	if strings.TrimSpace(fileID) == "" || strings.Contains(fileID, "\\") {
		return "", ErrInvalidFileID
	}
	for _, part := range strings.Split(fileID, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+fileID), "/")
	clean = strings.TrimPrefix(clean, "annotations/")
	if clean == "" || clean == "." || clean == "annotations" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
	}
	return clean, nil
}

// SQLStore keeps raw repository files in the repo_file table. It is the
// Source the server compiles from.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Put stores content under fileID and returns its content hash.
func (s *SQLStore) Put(ctx context.Context, scope Scope, fileID string, content []byte) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	id, err := NormalizeFileID(fileID)
	if err != nil {
		return "", err
	}

	hash := compiler.ContentHash(content)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repo_file (scope_key, file_id, content_hash, content, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope_key, file_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, scope.RepoKey(), id, hash, string(content), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return hash, nil
}

// Delete removes fileID. Deleting a missing file returns ErrNotFound.
func (s *SQLStore) Delete(ctx context.Context, scope Scope, fileID string) error {
	id, err := NormalizeFileID(fileID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM repo_file WHERE scope_key = $1 AND file_id = $2
	`, scope.RepoKey(), id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, scope Scope) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, content_hash FROM repo_file
		WHERE scope_key = $1
		ORDER BY file_id
	`, scope.RepoKey())
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.FileID, &e.Hash); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, scope Scope, fileID string) ([]byte, string, error) {
	id, err := NormalizeFileID(fileID)
	if err != nil {
		return nil, "", err
	}
	var content, hash string
	err = s.db.QueryRowContext(ctx, `
		SELECT content, content_hash FROM repo_file
		WHERE scope_key = $1 AND file_id = $2
	`, scope.RepoKey(), id).Scan(&content, &hash)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	return []byte(content), hash, nil
}
