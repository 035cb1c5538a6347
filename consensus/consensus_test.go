// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package consensus

import (
	"reflect"
	"testing"
	"time"

	"github.com/danielhkuo/quorum/bucket"
	"github.com/danielhkuo/quorum/merge"
	"github.com/danielhkuo/quorum/models"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func cfgWith(minAnnotators int, threshold float64) models.Config {
	return models.Config{
		Version:           1,
		SupportedDatasets: []string{"pbmc3k"},
		FieldsToAnnotate:  []string{"state", "cell_type"},
		AnnotatableSettings: map[string]models.FieldSettings{
			"cell_type": {MinAnnotators: minAnnotators, Threshold: threshold},
		},
	}
}

func sugg(id string, author int64, label string, created time.Time) models.AttributedSuggestion {
	return models.AttributedSuggestion{
		Suggestion: models.Suggestion{
			ID:            id,
			ItemID:        "pbmc3k/c0",
			FieldKey:      "cell_type",
			CategoryLabel: label,
			CreatedAt:     created,
		},
		Author:    author,
		BucketKey: bucket.Encode("cell_type", label),
	}
}

func up(id string, voter int64) models.Vote {
	return models.Vote{SuggestionID: id, Voter: voter, Direction: models.VoteUp}
}

func down(id string, voter int64) models.Vote {
	return models.Vote{SuggestionID: id, Voter: voter, Direction: models.VoteDown}
}

// twoOneOne is a group where four annotators split 2/1/1 over three labels.
func twoOneOne() ([]models.AttributedSuggestion, []models.Vote) {
	suggestions := []models.AttributedSuggestion{
		sugg("s1", 1, "T cell", t0),
		sugg("s2", 3, "B cell", t0.Add(time.Minute)),
		sugg("s3", 4, "NK cell", t0.Add(2*time.Minute)),
	}
	votes := []models.Vote{up("s1", 2)}
	return suggestions, votes
}

func TestCompileThreshold(t *testing.T) {
	tests := []struct {
		name          string
		minAnnotators int
		threshold     float64
		reached       bool
	}{
		{"reached at threshold", 3, 0.5, true},
		{"too few annotators", 5, 0.5, false},
		{"threshold not met", 3, 0.6, false},
		{"exact annotator count", 4, 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestions, votes := twoOneOne()
			entries := Compile(cfgWith(tt.minAnnotators, tt.threshold), suggestions, votes, nil)

			if len(entries) != 1 {
				t.Fatalf("Expected 1 entry, got %d", len(entries))
			}
			e := entries[0]
			if e.DistinctAnnotators != 4 {
				t.Errorf("Expected 4 distinct annotators, got %d", e.DistinctAnnotators)
			}
			if e.TopFraction != 0.5 {
				t.Errorf("Expected top fraction 0.5, got %f", e.TopFraction)
			}
			if e.ReachedConsensus != tt.reached {
				t.Errorf("ReachedConsensus = %v, expected %v", e.ReachedConsensus, tt.reached)
			}
			if tt.reached && e.WinningLabel != "T cell" {
				t.Errorf("Expected winning label 'T cell', got %q", e.WinningLabel)
			}
			if !tt.reached && e.WinningLabel != "" {
				t.Errorf("Expected no winning label, got %q", e.WinningLabel)
			}

			supporters := []int{e.Candidates[0].Supporters, e.Candidates[1].Supporters, e.Candidates[2].Supporters}
			if !reflect.DeepEqual(supporters, []int{2, 1, 1}) {
				t.Errorf("Expected supporters [2 1 1], got %v", supporters)
			}
		})
	}
}

func TestCompileRanking(t *testing.T) {
	suggestions, votes := twoOneOne()
	e := Compile(cfgWith(1, 0.5), suggestions, votes, nil)[0]

	expected := []struct {
		id   string
		rank int
	}{
		{"s1", 1},
		{"s2", 2}, // ties with s3 on support, created earlier
		{"s3", 3},
	}
	for i, want := range expected {
		c := e.Candidates[i]
		if c.CanonicalID != want.id || c.Rank != want.rank {
			t.Errorf("Position %d: got %s (rank %d), expected %s (rank %d)", i, c.CanonicalID, c.Rank, want.id, want.rank)
		}
	}
	if !reflect.DeepEqual(e.Candidates[0].SupporterIDs, []int64{1, 2}) {
		t.Errorf("Expected supporters [1 2], got %v", e.Candidates[0].SupporterIDs)
	}
}

func TestCompileTieBreakByID(t *testing.T) {
	suggestions := []models.AttributedSuggestion{
		sugg("zz", 1, "T cell", t0),
		sugg("aa", 2, "B cell", t0),
	}
	e := Compile(cfgWith(1, 0.5), suggestions, nil, nil)[0]

	if e.Candidates[0].CanonicalID != "aa" {
		t.Errorf("Expected 'aa' first on a full tie, got %q", e.Candidates[0].CanonicalID)
	}
}

func TestCompileMergeUnionsSupport(t *testing.T) {
	suggestions, votes := twoOneOne()
	// A fourth annotator proposes "B cell" again; merged into s2
	suggestions = append(suggestions, sugg("s4", 5, "B cell", t0.Add(3*time.Minute)))
	votes = append(votes, up("s4", 3))

	unmerged := Compile(cfgWith(1, 0.5), suggestions, votes, nil)[0]
	resolver := merge.NewResolver([]models.MergeRecord{{
		BucketKey:        bucket.Encode("cell_type", "B cell"),
		FromSuggestionID: "s4",
		IntoSuggestionID: "s2",
		At:               t0,
	}})
	merged := Compile(cfgWith(1, 0.5), suggestions, votes, resolver)[0]

	if len(merged.Candidates) != len(unmerged.Candidates)-1 {
		t.Fatalf("Expected one fewer candidate after merge, got %d vs %d", len(merged.Candidates), len(unmerged.Candidates))
	}

	var b models.Candidate
	for _, c := range merged.Candidates {
		if c.CanonicalID == "s2" {
			b = c
		}
	}
	// s2 by 3, s4 by 5 with 3 voting up: supporters {3, 5}
	if b.Supporters != 2 || !reflect.DeepEqual(b.SupporterIDs, []int64{3, 5}) {
		t.Errorf("Expected union supporters {3, 5}, got %v", b.SupporterIDs)
	}
	if !reflect.DeepEqual(b.MergedIDs, []string{"s4"}) {
		t.Errorf("Expected merged ids [s4], got %v", b.MergedIDs)
	}
	if b.CategoryLabel != "B cell" || !b.CreatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("Candidate should carry the canonical suggestion's label and time, got %+v", b)
	}
	if merged.DistinctAnnotators != unmerged.DistinctAnnotators {
		t.Errorf("Merging should not change participation: %d vs %d", merged.DistinctAnnotators, unmerged.DistinctAnnotators)
	}
}

func TestCompileDownVotes(t *testing.T) {
	suggestions := []models.AttributedSuggestion{sugg("s1", 1, "T cell", t0)}
	votes := []models.Vote{
		down("s1", 2),
		down("s1", 3),
		// The author's own down vote does not make them an opposer
		down("s1", 1),
	}
	e := Compile(cfgWith(1, 0.5), suggestions, votes, nil)[0]

	c := e.Candidates[0]
	if c.Supporters != 1 || c.Opposers != 2 {
		t.Errorf("Expected 1 supporter and 2 opposers, got %d / %d", c.Supporters, c.Opposers)
	}
	if e.DistinctAnnotators != 3 {
		t.Errorf("Down voters should count as participants, got %d", e.DistinctAnnotators)
	}
	if e.ReachedConsensus {
		t.Errorf("1/3 support should not reach a 0.5 threshold")
	}
}

func TestCompileEntryOrder(t *testing.T) {
	mk := func(id, item, field string) models.AttributedSuggestion {
		s := sugg(id, 1, "x", t0)
		s.ItemID = item
		s.FieldKey = field
		s.BucketKey = bucket.Encode(field, "x")
		return s
	}
	suggestions := []models.AttributedSuggestion{
		mk("1", "pbmc3k/c1", "cell_type"),
		mk("2", "pbmc3k/c0", "cell_type"),
		mk("3", "pbmc3k/c1", "state"),
		mk("4", "pbmc3k/c0", "state"),
	}
	entries := Compile(cfgWith(1, 0.5), suggestions, nil, nil)

	var got [][2]string
	for _, e := range entries {
		got = append(got, [2]string{e.ItemID, e.FieldKey})
	}
	expected := [][2]string{
		{"pbmc3k/c0", "state"},
		{"pbmc3k/c0", "cell_type"},
		{"pbmc3k/c1", "state"},
		{"pbmc3k/c1", "cell_type"},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Entry order = %v, expected %v", got, expected)
	}

	// Fields without settings use the defaults
	if entries[0].MinAnnotators != models.DefaultMinAnnotators || entries[0].Threshold != models.DefaultThreshold {
		t.Errorf("Expected default settings for 'state', got %d / %f", entries[0].MinAnnotators, entries[0].Threshold)
	}
}

func TestCompileOrderIndependent(t *testing.T) {
	suggestions, votes := twoOneOne()
	a := Compile(cfgWith(3, 0.5), suggestions, votes, nil)

	reversed := make([]models.AttributedSuggestion, len(suggestions))
	for i, s := range suggestions {
		reversed[len(suggestions)-1-i] = s
	}
	b := Compile(cfgWith(3, 0.5), reversed, votes, nil)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("Result depends on input order:\n%+v\n%+v", a, b)
	}
}

func TestReached(t *testing.T) {
	s := models.FieldSettings{MinAnnotators: 2, Threshold: 0.5}
	tests := []struct {
		distinct int
		fraction float64
		expected bool
	}{
		{0, 0, false},
		{1, 1, false},
		{2, 0.5, true},
		{2, 0.49, false},
		{10, 1, true},
	}
	for _, tt := range tests {
		if got := Reached(tt.distinct, tt.fraction, s); got != tt.expected {
			t.Errorf("Reached(%d, %f) = %v, expected %v", tt.distinct, tt.fraction, got, tt.expected)
		}
	}
}
