// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package filestore

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/danielhkuo/quorum/compiler"
	"github.com/danielhkuo/quorum/testutil"
)

var testScope = Scope{DatasetID: "pbmc3k", Repo: "atlas", Branch: "main", UserID: 42}

// countingSource wraps a Source and counts Get calls
type countingSource struct {
	Source
	gets atomic.Int32
}

func (c *countingSource) Get(ctx context.Context, scope Scope, fileID string) ([]byte, string, error) {
	c.gets.Add(1)
	return c.Source.Get(ctx, scope, fileID)
}

func TestScopeKeys(t *testing.T) {
	if got := testScope.RepoKey(); got != "pbmc3k/atlas/main" {
		t.Errorf("RepoKey() = %q", got)
	}
	if got := testScope.CacheKey(); got != "pbmc3k/atlas/main#42" {
		t.Errorf("CacheKey() = %q", got)
	}

	bad := []Scope{
		{DatasetID: "", Repo: "r", Branch: "b"},
		{DatasetID: "d", Repo: "r/x", Branch: "b"},
		{DatasetID: "d", Repo: "r", Branch: "b#1"},
	}
	for _, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidScope) {
			t.Errorf("Validate(%+v) = %v, expected ErrInvalidScope", s, err)
		}
	}
}

func TestNormalizeFileID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"config.json", "config.json", false},
		{"annotations/config.json", "config.json", false},
		{"/users/ghid_1.json", "users/ghid_1.json", false},
		{"users//ghid_1.json", "users/ghid_1.json", false},
		{"../secrets", "", true},
		{"users/../../x", "", true},
		{"", "", true},
		{"annotations", "", true},
		{`users\ghid_1.json`, "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeFileID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("NormalizeFileID(%q) = (%q, %v), expected (%q, err=%v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestSQLStore(t *testing.T) {
	store := NewSQLStore(testutil.SetupTestDB(t))
	ctx := context.Background()

	hash, err := store.Put(ctx, testScope, "annotations/config.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if hash != compiler.ContentHash([]byte(`{"a":1}`)) {
		t.Errorf("Put returned hash %s", hash)
	}

	// Overwrite keeps a single row
	if _, err := store.Put(ctx, testScope, "config.json", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}
	if _, err := store.Put(ctx, testScope, "users/ghid_1.json", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := store.List(ctx, testScope)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 || entries[0].FileID != "config.json" || entries[1].FileID != "users/ghid_1.json" {
		t.Errorf("Unexpected entries %+v", entries)
	}

	content, h, err := store.Get(ctx, testScope, "config.json")
	if err != nil || string(content) != `{"a":2}` || h != compiler.ContentHash(content) {
		t.Errorf("Get = (%s, %s, %v)", content, h, err)
	}

	// Other scopes do not see the files
	other := testScope
	other.Branch = "dev"
	if entries, _ := store.List(ctx, other); len(entries) != 0 {
		t.Errorf("Expected empty listing for another branch, got %+v", entries)
	}
	if _, _, err := store.Get(ctx, other, "config.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Delete(ctx, testScope, "config.json"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, testScope, "config.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	if _, err := store.Put(ctx, testScope, "../escape", []byte(`{}`)); !errors.Is(err, ErrInvalidFileID) {
		t.Errorf("Expected ErrInvalidFileID, got %v", err)
	}
}

func TestChangedSince(t *testing.T) {
	store := NewSQLStore(testutil.SetupTestDB(t))
	ctx := context.Background()

	hashA, _ := store.Put(ctx, testScope, "users/ghid_1.json", []byte(`{"v":1}`))
	store.Put(ctx, testScope, "users/ghid_2.json", []byte(`{"v":2}`))

	src := &countingSource{Source: store}
	known := map[string]string{
		"users/ghid_1.json": hashA,     // unchanged
		"users/ghid_2.json": "stale",   // changed
		"users/ghid_3.json": "deleted", // removed upstream
	}

	changes, err := ChangedSince(ctx, src, testScope, known)
	if err != nil {
		t.Fatalf("ChangedSince failed: %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("Expected 2 changes, got %+v", changes)
	}
	if changes[0].FileID != "users/ghid_2.json" || string(changes[0].Content) != `{"v":2}` || changes[0].Removed {
		t.Errorf("Unexpected change %+v", changes[0])
	}
	if changes[1].FileID != "users/ghid_3.json" || !changes[1].Removed {
		t.Errorf("Expected removal, got %+v", changes[1])
	}
	if n := src.gets.Load(); n != 1 {
		t.Errorf("Expected only the changed file fetched, got %d fetches", n)
	}
}

type failingSource struct{ Source }

func (failingSource) Get(context.Context, Scope, string) ([]byte, string, error) {
	return nil, "", errors.New("upstream unavailable")
}

func TestChangedSinceFetchError(t *testing.T) {
	store := NewSQLStore(testutil.SetupTestDB(t))
	ctx := context.Background()
	store.Put(ctx, testScope, "config.json", []byte(`{}`))

	if _, err := ChangedSince(ctx, failingSource{store}, testScope, nil); err == nil {
		t.Error("Expected fetch error to propagate")
	}
}

func TestCacheRefresh(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := NewSQLStore(conn)
	src := &countingSource{Source: store}
	cache := NewCache(conn, src, 2)
	ctx := context.Background()

	store.Put(ctx, testScope, "config.json", []byte(`{"c":1}`))
	store.Put(ctx, testScope, "users/ghid_1.json", []byte(`{"u":1}`))
	store.Put(ctx, testScope, "users/ghid_2.json", []byte(`{"u":2}`))

	stats, err := cache.Refresh(ctx, testScope)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if stats.Fetched != 3 || stats.Files != 3 || stats.Bytes != 21 {
		t.Errorf("Unexpected first refresh stats %+v", stats)
	}

	// Nothing changed: nothing fetched
	src.gets.Store(0)
	stats, err = cache.Refresh(ctx, testScope)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if stats.Fetched != 0 || src.gets.Load() != 0 {
		t.Errorf("Expected no fetches, got %+v (%d gets)", stats, src.gets.Load())
	}

	// One update, one removal
	store.Put(ctx, testScope, "users/ghid_1.json", []byte(`{"u":10}`))
	store.Delete(ctx, testScope, "users/ghid_2.json")
	stats, err = cache.Refresh(ctx, testScope)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if stats.Fetched != 1 || stats.Removed != 1 || stats.Files != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	files, err := cache.Files(ctx, testScope)
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	want := map[string][]byte{
		"config.json":       []byte(`{"c":1}`),
		"users/ghid_1.json": []byte(`{"u":10}`),
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Cache contents = %v, expected %v", files, want)
	}

	// Another requester has an independent cache
	other := testScope
	other.UserID = 7
	if files, _ := cache.Files(ctx, other); len(files) != 0 {
		t.Errorf("Expected empty cache for another user, got %v", files)
	}
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string][]byte{
		"config.json":            []byte(`{"c":1}`),
		"users/ghid_1.json":      []byte(`{"u":1}`),
		"users/notes.txt":        []byte(`ignored`),
		"moderation/merges.json": []byte(`{"m":1}`),
	})
	src := DirSource{Root: root}
	ctx := context.Background()

	entries, err := src.List(ctx, Scope{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.FileID)
	}
	want := []string{"config.json", "moderation/merges.json", "users/ghid_1.json"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("List ids = %v, expected %v", ids, want)
	}

	if _, _, err := src.Get(ctx, Scope{}, "users/ghid_9.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	files, err := ReadAll(ctx, src, Scope{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(files["moderation/merges.json"]) != `{"m":1}` {
		t.Errorf("Unexpected merges content %q", files["moderation/merges.json"])
	}
}

func TestDirSourceWithoutMerges(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string][]byte{"config.json": []byte(`{}`)})

	entries, err := DirSource{Root: filepath.Clean(root)}.List(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only config.json, got %+v", entries)
	}
}

func TestBuildInput(t *testing.T) {
	files := map[string][]byte{
		"config.json":            []byte(`c`),
		"users/ghid_2.json":      []byte(`u2`),
		"users/ghid_1.json":      []byte(`u1`),
		"users/nested/x.json":    []byte(`x`),
		"moderation/merges.json": []byte(`m`),
		"README.md":              []byte(`r`),
	}

	in, err := BuildInput(files)
	if err != nil {
		t.Fatalf("BuildInput failed: %v", err)
	}
	if in.Config.ID != ConfigID || len(in.Users) != 2 || in.Users[0].ID != "users/ghid_1.json" {
		t.Errorf("Unexpected input %+v", in)
	}
	if in.Merges == nil || string(in.Merges.Content) != "m" {
		t.Errorf("Expected merges file, got %+v", in.Merges)
	}

	delete(files, ConfigID)
	if _, err := BuildInput(files); !errors.Is(err, ErrNoConfig) {
		t.Errorf("Expected ErrNoConfig, got %v", err)
	}
}
