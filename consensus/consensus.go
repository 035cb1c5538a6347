// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package consensus

import (
	"sort"

	"github.com/danielhkuo/quorum/merge"
	"github.com/danielhkuo/quorum/models"
)

// tally accumulates one canonical candidate while a group is aggregated
type tally struct {
	canonical  models.AttributedSuggestion
	members    []string
	supporters map[int64]bool
	downVoters map[int64]bool
}

type groupKey struct {
	itemID   string
	fieldKey string
}

// Compile aggregates accepted suggestions and votes into one consensus entry
// per (item, field) that has at least one suggestion. A nil resolver means no
// merges apply.
func Compile(cfg models.Config, suggestions []models.AttributedSuggestion, votes []models.Vote, resolver *merge.Resolver) []models.ConsensusEntry {
	if resolver == nil {
		resolver = merge.NewResolver(nil)
	}

	byID := make(map[string]models.AttributedSuggestion, len(suggestions))
	groups := make(map[groupKey][]models.AttributedSuggestion)
	for _, s := range suggestions {
		byID[s.ID] = s
		k := groupKey{s.ItemID, s.FieldKey}
		groups[k] = append(groups[k], s)
	}

	votesFor := make(map[string][]models.Vote)
	for _, v := range votes {
		votesFor[v.SuggestionID] = append(votesFor[v.SuggestionID], v)
	}

	entries := make([]models.ConsensusEntry, 0, len(groups))
	for k, members := range groups {
		entries = append(entries, compileGroup(cfg, k, members, byID, votesFor, resolver))
	}

	// Order by item, then by the field's position in the config
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		ai, _ := cfg.FieldIndex(a.FieldKey)
		bi, _ := cfg.FieldIndex(b.FieldKey)
		if ai != bi {
			return ai < bi
		}
		return a.FieldKey < b.FieldKey
	})

	return entries
}

func compileGroup(cfg models.Config, k groupKey, members []models.AttributedSuggestion, byID map[string]models.AttributedSuggestion, votesFor map[string][]models.Vote, resolver *merge.Resolver) models.ConsensusEntry {
	tallies := make(map[string]*tally)
	participants := make(map[int64]bool)

	for _, s := range members {
		canon := canonicalOf(s, byID, resolver)

		t, ok := tallies[canon.ID]
		if !ok {
			t = &tally{
				canonical:  canon,
				supporters: make(map[int64]bool),
				downVoters: make(map[int64]bool),
			}
			tallies[canon.ID] = t
		}
		t.members = append(t.members, s.ID)

		// The author always supports their own suggestion
		t.supporters[s.Author] = true
		participants[s.Author] = true

		for _, v := range votesFor[s.ID] {
			participants[v.Voter] = true
			if v.Direction == models.VoteUp {
				t.supporters[v.Voter] = true
			} else {
				t.downVoters[v.Voter] = true
			}
		}
	}

	candidates := make([]models.Candidate, 0, len(tallies))
	for _, t := range tallies {
		candidates = append(candidates, t.candidate())
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		// 1. More supporters wins
		if a.Supporters != b.Supporters {
			return a.Supporters > b.Supporters
		}

		// 2. Earlier suggestion wins
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		// 3. Stable tie-breaking by canonical ID (ascending)
		return a.CanonicalID < b.CanonicalID
	})
	for i := range candidates {
		candidates[i].Rank = i + 1 // 1-indexed ranking
	}

	settings := cfg.Settings(k.fieldKey)
	entry := models.ConsensusEntry{
		ItemID:             k.itemID,
		FieldKey:           k.fieldKey,
		Candidates:         candidates,
		DistinctAnnotators: len(participants),
		MinAnnotators:      settings.MinAnnotators,
		Threshold:          settings.Threshold,
	}

	if len(candidates) > 0 && entry.DistinctAnnotators > 0 {
		entry.TopFraction = float64(candidates[0].Supporters) / float64(entry.DistinctAnnotators)
	}
	entry.ReachedConsensus = Reached(entry.DistinctAnnotators, entry.TopFraction, settings)
	if entry.ReachedConsensus {
		entry.WinningLabel = candidates[0].CategoryLabel
	}
	return entry
}

// Reached reports whether a group with the given participation and top
// support fraction meets the field's consensus settings.
func Reached(distinct int, topFraction float64, s models.FieldSettings) bool {
	return distinct > 0 && distinct >= s.MinAnnotators && topFraction >= s.Threshold
}

// canonicalOf resolves s to the suggestion it was merged into. A canonical
// id that is unknown or annotates another item leaves s on its own.
func canonicalOf(s models.AttributedSuggestion, byID map[string]models.AttributedSuggestion, resolver *merge.Resolver) models.AttributedSuggestion {
	id := resolver.Canonical(s.BucketKey, s.ID)
	if id == s.ID {
		return s
	}
	c, ok := byID[id]
	if !ok || c.ItemID != s.ItemID || c.FieldKey != s.FieldKey {
		return s
	}
	return c
}

func (t *tally) candidate() models.Candidate {
	c := models.Candidate{
		CanonicalID:   t.canonical.ID,
		BucketKey:     t.canonical.BucketKey,
		CategoryLabel: t.canonical.CategoryLabel,
		Supporters:    len(t.supporters),
		SupporterIDs:  sortedIDs(t.supporters),
		CreatedAt:     t.canonical.CreatedAt.UTC(),
		MergedIDs:     []string{},
	}
	for voter := range t.downVoters {
		if !t.supporters[voter] {
			c.Opposers++
		}
	}
	for _, id := range t.members {
		if id != t.canonical.ID {
			c.MergedIDs = append(c.MergedIDs, id)
		}
	}
	sort.Strings(c.MergedIDs)
	return c
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
