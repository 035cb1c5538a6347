// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/danielhkuo/quorum/compiler"
)

// DirSource serves files from an annotations directory on disk, laid out as
// config.json, users/*.json and moderation/merges.json. The scope is
// ignored.
type DirSource struct {
	Root string
}

func (d DirSource) List(ctx context.Context, _ Scope) ([]Entry, error) {
	var ids []string
	for _, id := range []string{ConfigID, MergesID} {
		if _, err := os.Stat(filepath.Join(d.Root, filepath.FromSlash(id))); err == nil {
			ids = append(ids, id)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	users, err := filepath.Glob(filepath.Join(d.Root, "users", "*.json"))
	if err != nil {
		return nil, err
	}
	for _, p := range users {
		ids = append(ids, UsersDir+filepath.Base(p))
	}
	sort.Strings(ids)

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(id)))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{FileID: id, Hash: compiler.ContentHash(b)})
	}
	return entries, nil
}

func (d DirSource) Get(_ context.Context, _ Scope, fileID string) ([]byte, string, error) {
	id, err := NormalizeFileID(fileID)
	if err != nil {
		return nil, "", err
	}
	b, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return b, compiler.ContentHash(b), nil
}

// ReadAll loads every file of a source into memory, keyed by file id.
func ReadAll(ctx context.Context, src Source, scope Scope) (map[string][]byte, error) {
	changes, err := ChangedSince(ctx, src, scope, nil)
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(changes))
	for _, c := range changes {
		files[c.FileID] = c.Content
	}
	return files, nil
}
