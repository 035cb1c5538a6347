// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielhkuo/quorum/cliparse"
	"github.com/danielhkuo/quorum/db"
	"github.com/danielhkuo/quorum/models"
	_ "modernc.org/sqlite"
)

// FixtureTime is the creation time used by fixture suggestions
var FixtureTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// SetupTestDB opens a fresh SQLite database in a temp dir with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "quorum-test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:             3318,
		DatabaseURL:      "quorum-test.db",
		DatabaseType:     "sqlite",
		AuthorKeySalt:    "test-author-salt",
		FetchConcurrency: 4,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Suggestion builds a fixture suggestion created at FixtureTime
func Suggestion(id, itemID, fieldKey, label string) models.Suggestion {
	return models.Suggestion{
		ID:            id,
		ItemID:        itemID,
		FieldKey:      fieldKey,
		CategoryLabel: label,
		CreatedAt:     FixtureTime,
	}
}

// ConfigJSON encodes a valid config document
func ConfigJSON(t *testing.T, datasets, fields []string, settings map[string]models.FieldSettings) []byte {
	t.Helper()
	return mustMarshal(t, models.Config{
		Version:             models.SchemaVersion,
		SupportedDatasets:   datasets,
		FieldsToAnnotate:    fields,
		AnnotatableSettings: settings,
	})
}

// UserJSON encodes a valid user file for githubUserID
func UserJSON(t *testing.T, githubUserID int64, suggestions []models.Suggestion, votes map[string]models.VoteDirection) []byte {
	t.Helper()
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	if votes == nil {
		votes = map[string]models.VoteDirection{}
	}
	return mustMarshal(t, models.UserFile{
		Version:      models.SchemaVersion,
		GithubUserID: githubUserID,
		Username:     models.IdentityName(githubUserID),
		UpdatedAt:    FixtureTime,
		Suggestions:  suggestions,
		Votes:        votes,
	})
}

// UserFileID returns the file id a user file is stored under
func UserFileID(githubUserID int64) string {
	return "users/" + models.IdentityName(githubUserID) + ".json"
}

// MergesJSON encodes a merges file
func MergesJSON(t *testing.T, merges ...models.MergeRecord) []byte {
	t.Helper()
	if merges == nil {
		merges = []models.MergeRecord{}
	}
	return mustMarshal(t, models.MergeFile{Version: models.SchemaVersion, Merges: merges})
}

// Merge builds a merge record dated at FixtureTime
func Merge(bucketKey, from, into string) models.MergeRecord {
	return models.MergeRecord{BucketKey: bucketKey, FromSuggestionID: from, IntoSuggestionID: into, At: FixtureTime}
}

// WriteTree writes files (keyed by id relative to root) to disk
func WriteTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for id, content := range files {
		p := filepath.Join(root, filepath.FromSlash(id))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, content, 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", p, err)
		}
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal fixture: %v", err)
	}
	return b
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// MakeRawRequest creates an HTTP test request with a raw body
func MakeRawRequest(method, path string, body []byte, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
