// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package filestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/quorum/compiler"
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrInvalidScope = errors.New("invalid scope")
	ErrNoConfig     = errors.New("config.json not found")
)

// File ids are relative to the annotations directory.
const (
	ConfigID = "config.json"
	MergesID = "moderation/merges.json"
	UsersDir = "users/"
)

const DefaultFetchConcurrency = 8

// Scope names one repository branch of a dataset and, for caches, the user
// the files were fetched for.
type Scope struct {
	DatasetID string
	Repo      string
	Branch    string
	UserID    int64
}

// RepoKey identifies the repository branch, independent of the requester.
func (s Scope) RepoKey() string {
	return s.DatasetID + "/" + s.Repo + "/" + s.Branch
}

// CacheKey identifies the requester's private view of the branch.
func (s Scope) CacheKey() string {
	return s.RepoKey() + "#" + strconv.FormatInt(s.UserID, 10)
}

func (s Scope) Validate() error {
	for _, part := range []string{s.DatasetID, s.Repo, s.Branch} {
		if strings.TrimSpace(part) == "" || strings.ContainsAny(part, "/#") {
			return fmt.Errorf("%w: %q", ErrInvalidScope, s.RepoKey())
		}
	}
	return nil
}

// Entry is a file id with the hash of its current content.
type Entry struct {
	FileID string
	Hash   string
}

// Source is the external file store collaborator.
type Source interface {
	List(ctx context.Context, scope Scope) ([]Entry, error)
	Get(ctx context.Context, scope Scope, fileID string) (content []byte, hash string, err error)
}

type Change struct {
	FileID  string
	NewHash string
	Content []byte
	Removed bool
}

// ChangedSince returns the files whose hash differs from knownHashes, with
// their content, plus a Removed change for every known file that no longer
// exists. Changes are sorted by file id.
func ChangedSince(ctx context.Context, src Source, scope Scope, knownHashes map[string]string) ([]Change, error) {
	return changedSince(ctx, src, scope, knownHashes, DefaultFetchConcurrency)
}

func changedSince(ctx context.Context, src Source, scope Scope, knownHashes map[string]string, limit int) ([]Change, error) {
	entries, err := src.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	present := make(map[string]bool, len(entries))
	var stale []Entry
	for _, e := range entries {
		present[e.FileID] = true
		if knownHashes[e.FileID] != e.Hash {
			stale = append(stale, e)
		}
	}

	changes := make([]Change, len(stale))
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, e := range stale {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, hash, err := src.Get(gctx, scope, e.FileID)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", e.FileID, err)
			}
			changes[i] = Change{FileID: e.FileID, NewHash: hash, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for id := range knownHashes {
		if !present[id] {
			changes = append(changes, Change{FileID: id, Removed: true})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].FileID < changes[j].FileID })
	return changes, nil
}

// IsUserFile reports whether fileID names a per-user file.
func IsUserFile(fileID string) bool {
	return strings.HasPrefix(fileID, UsersDir) && strings.HasSuffix(fileID, ".json") &&
		!strings.Contains(strings.TrimPrefix(fileID, UsersDir), "/")
}

// IsKnownFile reports whether fileID is part of the annotations layout.
func IsKnownFile(fileID string) bool {
	return fileID == ConfigID || fileID == MergesID || IsUserFile(fileID)
}

// BuildInput arranges a scope's raw files for the compiler. Files outside
// the known layout are ignored.
func BuildInput(files map[string][]byte) (compiler.Input, error) {
	cfg, ok := files[ConfigID]
	if !ok {
		return compiler.Input{}, ErrNoConfig
	}
	in := compiler.Input{Config: compiler.File{ID: ConfigID, Content: cfg}}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if IsUserFile(id) {
			in.Users = append(in.Users, compiler.File{ID: id, Content: files[id]})
		}
	}
	if m, ok := files[MergesID]; ok {
		in.Merges = &compiler.File{ID: MergesID, Content: m}
	}
	return in, nil
}
