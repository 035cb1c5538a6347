// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package integrity

import (
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/quorum/models"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func testConfig() models.Config {
	return models.Config{
		Version:           1,
		SupportedDatasets: []string{"pbmc3k"},
		FieldsToAnnotate:  []string{"cell_type", "state"},
		ClosedFields:      []string{"state"},
	}
}

func sugg(id, item, field, label string) models.Suggestion {
	return models.Suggestion{ID: id, ItemID: item, FieldKey: field, CategoryLabel: label, CreatedAt: t0}
}

func user(id int64, votes map[string]models.VoteDirection, ss ...models.Suggestion) models.UserFile {
	if votes == nil {
		votes = map[string]models.VoteDirection{}
	}
	return models.UserFile{
		Version:      1,
		GithubUserID: id,
		Username:     models.IdentityName(id),
		UpdatedAt:    t0,
		Suggestions:  ss,
		Votes:        votes,
	}
}

func merge(bucketKey, from, into string) models.MergeRecord {
	return models.MergeRecord{BucketKey: bucketKey, FromSuggestionID: from, IntoSuggestionID: into, At: t0}
}

func findDiag(diags []models.Diagnostic, sev models.Severity, pathPrefix string) bool {
	for _, d := range diags {
		if d.Severity == sev && strings.HasPrefix(d.Path, pathPrefix) {
			return true
		}
	}
	return false
}

func suggestionIDs(ss []models.AttributedSuggestion) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s.ID] = true
	}
	return m
}

func TestCheckAcceptsValidBatch(t *testing.T) {
	users := []models.UserFile{
		user(2, map[string]models.VoteDirection{"s1": models.VoteUp}, sugg("s2", "pbmc3k/c0", "cell_type", "T cell")),
		user(1, nil, sugg("s1", "pbmc3k/c0", "cell_type", "T cell")),
	}
	merges := &models.MergeFile{Version: 1, Merges: []models.MergeRecord{merge("cell_type:T cell", "s2", "s1")}}

	res := Check(testConfig(), users, merges, Options{})

	if models.HasErrors(res.Diagnostics) {
		t.Fatalf("Expected no errors, got %v", res.Diagnostics)
	}
	if len(res.Suggestions) != 2 {
		t.Fatalf("Expected 2 suggestions, got %d", len(res.Suggestions))
	}
	// Users are processed in identity order
	if res.Suggestions[0].ID != "s1" || res.Suggestions[0].Author != 1 {
		t.Errorf("Expected s1 by user 1 first, got %+v", res.Suggestions[0])
	}
	if res.Suggestions[0].BucketKey != "cell_type:T cell" {
		t.Errorf("Unexpected bucket key %q", res.Suggestions[0].BucketKey)
	}
	if len(res.Votes) != 1 || res.Votes[0].Voter != 2 {
		t.Errorf("Unexpected votes %+v", res.Votes)
	}
	if len(res.Merges) != 1 {
		t.Errorf("Expected merge to be accepted, got %+v", res.Merges)
	}
}

func TestCheckSuggestionRules(t *testing.T) {
	tests := []struct {
		name     string
		s        models.Suggestion
		opts     Options
		kept     bool
		severity models.Severity
		path     string
	}{
		{
			name:     "unknown field",
			s:        sugg("x", "pbmc3k/c0", "tissue", "lung"),
			severity: models.SeverityError,
			path:     "users[ghid_1].suggestions[0].fieldKey",
		},
		{
			name:     "unsupported dataset",
			s:        sugg("x", "other/c0", "cell_type", "T cell"),
			severity: models.SeverityError,
			path:     "users[ghid_1].suggestions[0].itemId",
		},
		{
			name:     "unresolvable item is kept",
			s:        sugg("x", "c0", "cell_type", "T cell"),
			kept:     true,
			severity: models.SeverityWarning,
			path:     "users[ghid_1].suggestions[0].itemId",
		},
		{
			name:     "closed field without closure time",
			s:        sugg("x", "pbmc3k/c0", "state", "cycling"),
			kept:     true,
			severity: models.SeverityWarning,
			path:     "config.closedFields[state]",
		},
		{
			name:     "created after closure",
			s:        sugg("x", "pbmc3k/c0", "state", "cycling"),
			opts:     Options{ClosedAt: map[string]time.Time{"state": t0.Add(-time.Hour)}},
			severity: models.SeverityError,
			path:     "users[ghid_1].suggestions[0].createdAt",
		},
		{
			name: "created before closure",
			s:    sugg("x", "pbmc3k/c0", "state", "cycling"),
			opts: Options{ClosedAt: map[string]time.Time{"state": t0.Add(time.Hour)}},
			kept: true,
		},
		{
			name:     "catalog lookup",
			s:        sugg("x", "c0", "cell_type", "T cell"),
			opts:     Options{Catalog: MapCatalog{"c0": "other"}},
			severity: models.SeverityError,
			path:     "users[ghid_1].suggestions[0].itemId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(testConfig(), []models.UserFile{user(1, nil, tt.s)}, nil, tt.opts)

			if got := len(res.Suggestions) == 1; got != tt.kept {
				t.Errorf("kept = %v, expected %v (diagnostics %v)", got, tt.kept, res.Diagnostics)
			}
			if tt.path == "" {
				if len(res.Diagnostics) != 0 {
					t.Errorf("Expected no diagnostics, got %v", res.Diagnostics)
				}
				return
			}
			if !findDiag(res.Diagnostics, tt.severity, tt.path) {
				t.Errorf("Expected %s at %q, got %v", tt.severity, tt.path, res.Diagnostics)
			}
		})
	}
}

func TestCheckClosedFieldWarnsOnce(t *testing.T) {
	users := []models.UserFile{
		user(1, nil, sugg("a", "pbmc3k/c0", "state", "x"), sugg("b", "pbmc3k/c1", "state", "y")),
		user(2, nil, sugg("c", "pbmc3k/c0", "state", "z")),
	}
	res := Check(testConfig(), users, nil, Options{})

	if n := models.CountBySeverity(res.Diagnostics, models.SeverityWarning); n != 1 {
		t.Errorf("Expected one warning for the closed field, got %d: %v", n, res.Diagnostics)
	}
}

func TestCheckCollidingSuggestionIDs(t *testing.T) {
	users := []models.UserFile{
		user(1, nil, sugg("dup", "pbmc3k/c0", "cell_type", "T cell"), sugg("ok", "pbmc3k/c0", "cell_type", "B cell")),
		user(2, nil, sugg("dup", "pbmc3k/c1", "cell_type", "NK")),
		user(3, map[string]models.VoteDirection{"dup": models.VoteUp, "ok": models.VoteUp}),
	}
	res := Check(testConfig(), users, nil, Options{})

	ids := suggestionIDs(res.Suggestions)
	if ids["dup"] || !ids["ok"] {
		t.Errorf("Expected only 'ok' to survive, got %v", ids)
	}
	if !findDiag(res.Diagnostics, models.SeverityError, "users[ghid_1].suggestions[0].id") ||
		!findDiag(res.Diagnostics, models.SeverityError, "users[ghid_2].suggestions[0].id") {
		t.Errorf("Expected both colliding suggestions reported, got %v", res.Diagnostics)
	}
	if len(res.Votes) != 1 || res.Votes[0].SuggestionID != "ok" {
		t.Errorf("Expected vote on colliding id dropped, got %+v", res.Votes)
	}
	if !findDiag(res.Diagnostics, models.SeverityWarning, "users[ghid_3].votes[dup]") {
		t.Errorf("Expected dropped-vote warning, got %v", res.Diagnostics)
	}
}

func TestCheckDuplicateIdentity(t *testing.T) {
	users := []models.UserFile{
		user(1, nil, sugg("a", "pbmc3k/c0", "cell_type", "T cell")),
		user(1, nil, sugg("b", "pbmc3k/c0", "cell_type", "B cell")),
	}
	res := Check(testConfig(), users, nil, Options{})

	if len(res.Suggestions) != 1 || res.Suggestions[0].ID != "a" {
		t.Errorf("Expected only the first file to be used, got %+v", res.Suggestions)
	}
	if !findDiag(res.Diagnostics, models.SeverityError, "users[ghid_1]") {
		t.Errorf("Expected duplicate identity error, got %v", res.Diagnostics)
	}
}

func TestCheckTombstones(t *testing.T) {
	u := user(1, nil, sugg("a", "pbmc3k/c0", "cell_type", "T cell"))
	u.DeletedSuggestions = []string{"a"}
	voter := user(2, map[string]models.VoteDirection{"a": models.VoteUp})

	res := Check(testConfig(), []models.UserFile{u, voter}, nil, Options{})

	if len(res.Suggestions) != 0 {
		t.Errorf("Expected tombstoned suggestion dropped, got %+v", res.Suggestions)
	}
	if !findDiag(res.Diagnostics, models.SeverityInfo, "users[ghid_1].suggestions[0]") {
		t.Errorf("Expected info diagnostic for tombstone, got %v", res.Diagnostics)
	}
	if len(res.Votes) != 0 {
		t.Errorf("Expected vote on deleted suggestion dropped, got %+v", res.Votes)
	}
	if models.HasErrors(res.Diagnostics) {
		t.Errorf("Tombstones should not produce errors: %v", res.Diagnostics)
	}
}

func TestCheckUnknownVoteTarget(t *testing.T) {
	res := Check(testConfig(), []models.UserFile{user(1, map[string]models.VoteDirection{"ghost": models.VoteDown})}, nil, Options{})

	if len(res.Votes) != 0 {
		t.Errorf("Expected vote dropped, got %+v", res.Votes)
	}
	if !findDiag(res.Diagnostics, models.SeverityWarning, "users[ghid_1].votes[ghost]") {
		t.Errorf("Expected warning, got %v", res.Diagnostics)
	}
}

func TestCheckBucketChangingEditRetractsVotes(t *testing.T) {
	edited := t0.Add(time.Hour)
	s := sugg("a", "pbmc3k/c0", "cell_type", "CD8 T cell")
	s.EditedAt = &edited
	s.PreviousBucketKey = "cell_type:T cell"

	users := []models.UserFile{
		user(1, map[string]models.VoteDirection{"a": models.VoteUp}, s),
		user(2, map[string]models.VoteDirection{"a": models.VoteUp}),
	}
	res := Check(testConfig(), users, nil, Options{})

	if len(res.Suggestions) != 1 || res.Suggestions[0].BucketKey != "cell_type:CD8 T cell" {
		t.Fatalf("Expected suggestion in its new bucket, got %+v", res.Suggestions)
	}
	// The author's own vote survives; the other identity's is retracted
	if len(res.Votes) != 1 || res.Votes[0].Voter != 1 {
		t.Errorf("Expected only the author's vote, got %+v", res.Votes)
	}
	if !findDiag(res.Diagnostics, models.SeverityInfo, "users[ghid_2].votes[a]") {
		t.Errorf("Expected retraction info, got %v", res.Diagnostics)
	}

	// A merge naming the old bucket no longer matches
	other := user(3, nil, sugg("b", "pbmc3k/c0", "cell_type", "T cell"))
	merges := &models.MergeFile{Merges: []models.MergeRecord{merge("cell_type:T cell", "a", "b")}}
	res = Check(testConfig(), append(users, other), merges, Options{})
	if len(res.Merges) != 0 || !findDiag(res.Diagnostics, models.SeverityError, "merges[0].bucketKey") {
		t.Errorf("Expected merge on the old bucket rejected, got %+v / %v", res.Merges, res.Diagnostics)
	}
}

func TestCheckMergeRules(t *testing.T) {
	users := []models.UserFile{
		user(1, nil,
			sugg("a", "pbmc3k/c0", "cell_type", "T cell"),
			sugg("b", "pbmc3k/c0", "cell_type", "T cell"),
			sugg("c", "pbmc3k/c0", "cell_type", "B cell"),
			sugg("d", "pbmc3k/c1", "cell_type", "T cell"),
			sugg("e", "pbmc3k/c0", "cell_type", "T cell"),
		),
	}

	tests := []struct {
		name string
		m    models.MergeRecord
		path string
	}{
		{"self merge", merge("cell_type:T cell", "a", "a"), "merges[0]"},
		{"undecodable bucket", merge("cell_type", "a", "b"), "merges[0].bucketKey"},
		{"unknown from", merge("cell_type:T cell", "zz", "b"), "merges[0].fromSuggestionId"},
		{"unknown into", merge("cell_type:T cell", "a", "zz"), "merges[0].intoSuggestionId"},
		{"different buckets", merge("cell_type:T cell", "a", "c"), "merges[0].bucketKey"},
		{"bucket mismatch", merge("cell_type:B cell", "a", "b"), "merges[0].bucketKey"},
		{"different items", merge("cell_type:T cell", "a", "d"), "merges[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(testConfig(), users, &models.MergeFile{Merges: []models.MergeRecord{tt.m}}, Options{})
			if len(res.Merges) != 0 {
				t.Errorf("Expected merge rejected, got %+v", res.Merges)
			}
			if !findDiag(res.Diagnostics, models.SeverityError, tt.path) {
				t.Errorf("Expected error at %q, got %v", tt.path, res.Diagnostics)
			}
		})
	}

	t.Run("duplicate and conflicting", func(t *testing.T) {
		merges := &models.MergeFile{Merges: []models.MergeRecord{
			merge("cell_type:T cell", "a", "b"),
			merge("cell_type:T cell", "a", "b"),
			merge("cell_type:T cell", "a", "e"),
		}}
		res := Check(testConfig(), users, merges, Options{})

		if len(res.Merges) != 1 || res.Merges[0].IntoSuggestionID != "b" {
			t.Errorf("Expected first merge kept, got %+v", res.Merges)
		}
		if !findDiag(res.Diagnostics, models.SeverityWarning, "merges[1]") {
			t.Errorf("Expected duplicate warning, got %v", res.Diagnostics)
		}
		if !findDiag(res.Diagnostics, models.SeverityError, "merges[2]") {
			t.Errorf("Expected conflict error, got %v", res.Diagnostics)
		}
	})
}

func TestCheckMergeCycles(t *testing.T) {
	users := []models.UserFile{
		user(1, nil,
			sugg("a", "pbmc3k/c0", "cell_type", "T cell"),
			sugg("b", "pbmc3k/c0", "cell_type", "T cell"),
			sugg("c", "pbmc3k/c0", "cell_type", "T cell"),
			sugg("d", "pbmc3k/c0", "cell_type", "T cell"),
		),
	}

	t.Run("two cycle", func(t *testing.T) {
		merges := &models.MergeFile{Merges: []models.MergeRecord{
			merge("cell_type:T cell", "a", "b"),
			merge("cell_type:T cell", "b", "a"),
		}}
		res := Check(testConfig(), users, merges, Options{})

		if len(res.Merges) != 0 {
			t.Errorf("Expected both cycle edges rejected, got %+v", res.Merges)
		}
		if !findDiag(res.Diagnostics, models.SeverityError, "merges[0]") || !findDiag(res.Diagnostics, models.SeverityError, "merges[1]") {
			t.Errorf("Expected both edges reported, got %v", res.Diagnostics)
		}
	})

	t.Run("tail into cycle", func(t *testing.T) {
		merges := &models.MergeFile{Merges: []models.MergeRecord{
			merge("cell_type:T cell", "d", "a"),
			merge("cell_type:T cell", "a", "b"),
			merge("cell_type:T cell", "b", "c"),
			merge("cell_type:T cell", "c", "a"),
		}}
		res := Check(testConfig(), users, merges, Options{})

		if len(res.Merges) != 1 || res.Merges[0].FromSuggestionID != "d" {
			t.Errorf("Expected only the tail edge kept, got %+v", res.Merges)
		}
		if n := models.CountBySeverity(res.Diagnostics, models.SeverityError); n != 3 {
			t.Errorf("Expected 3 cycle errors, got %d: %v", n, res.Diagnostics)
		}
	})

	t.Run("chain", func(t *testing.T) {
		merges := &models.MergeFile{Merges: []models.MergeRecord{
			merge("cell_type:T cell", "a", "b"),
			merge("cell_type:T cell", "b", "c"),
			merge("cell_type:T cell", "c", "d"),
		}}
		res := Check(testConfig(), users, merges, Options{})
		if len(res.Merges) != 3 || models.HasErrors(res.Diagnostics) {
			t.Errorf("Expected chain accepted, got %+v / %v", res.Merges, res.Diagnostics)
		}
	})
}

func TestPrefixCatalog(t *testing.T) {
	tests := []struct {
		item    string
		dataset string
		ok      bool
	}{
		{"pbmc3k/cluster-0", "pbmc3k", true},
		{"pbmc3k/a/b", "pbmc3k", true},
		{"cluster-0", "", false},
		{"/cluster-0", "", false},
		{"pbmc3k/", "", false},
	}
	for _, tt := range tests {
		d, ok := PrefixCatalog{}.DatasetOf(tt.item)
		if d != tt.dataset || ok != tt.ok {
			t.Errorf("DatasetOf(%q) = (%q, %v), expected (%q, %v)", tt.item, d, ok, tt.dataset, tt.ok)
		}
	}
}

func TestCheckClearedPreviousBucketKeyRestoresVotes(t *testing.T) {
	edited := t0.Add(time.Hour)
	s := sugg("a", "pbmc3k/c0", "cell_type", "CD8 T cell")
	s.EditedAt = &edited

	users := []models.UserFile{
		user(1, nil, s),
		user(2, map[string]models.VoteDirection{"a": models.VoteUp}),
	}
	res := Check(testConfig(), users, nil, Options{})

	if len(res.Votes) != 1 || res.Votes[0].Voter != 2 {
		t.Errorf("Expected the other user's vote to count once the move is cleared, got %+v", res.Votes)
	}
}
