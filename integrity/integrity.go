// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package integrity

import (
	"fmt"
	"sort"
	"time"

	"github.com/danielhkuo/quorum/bucket"
	"github.com/danielhkuo/quorum/models"
	"github.com/danielhkuo/quorum/schema"
)

// Options carries facts the checker cannot learn from the files themselves.
type Options struct {
	// ClosedAt maps a closed field key to the time it was closed.
	ClosedAt map[string]time.Time
	// Catalog resolves item datasets. Nil means PrefixCatalog.
	Catalog Catalog
}

// Result holds the records that survived every check, plus the findings for
// the ones that did not.
type Result struct {
	Suggestions []models.AttributedSuggestion
	Votes       []models.Vote
	Merges      []models.MergeRecord
	Diagnostics []models.Diagnostic
}

type checker struct {
	cfg   models.Config
	opts  Options
	diags []models.Diagnostic

	accepted map[string]models.AttributedSuggestion
	excluded map[string]bool
	moved    map[string]bool
}

// Check validates relationships across a batch of structurally valid files.
// Every finding is collected; a failing record is excluded and the rest of
// the batch proceeds. users and merges are not modified.
func Check(cfg models.Config, users []models.UserFile, merges *models.MergeFile, opts Options) Result {
	if opts.Catalog == nil {
		opts.Catalog = PrefixCatalog{}
	}
	c := &checker{
		cfg:      cfg,
		opts:     opts,
		accepted: make(map[string]models.AttributedSuggestion),
		excluded: make(map[string]bool),
		moved:    make(map[string]bool),
	}

	users = c.distinctUsers(users)

	var res Result
	res.Suggestions = c.suggestions(users)
	res.Votes = c.votes(users)
	if merges != nil {
		res.Merges = c.merges(merges.Merges)
	}
	res.Diagnostics = c.diags
	return res
}

func (c *checker) add(sev models.Severity, path, format string, args ...any) {
	c.diags = append(c.diags, models.Diagnostic{
		Severity: sev,
		Kind:     models.KindIntegrity,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// distinctUsers orders files by identity and drops repeated identities.
func (c *checker) distinctUsers(users []models.UserFile) []models.UserFile {
	sorted := make([]models.UserFile, len(users))
	copy(sorted, users)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GithubUserID < sorted[j].GithubUserID
	})

	out := sorted[:0]
	for i, u := range sorted {
		if i > 0 && sorted[i-1].GithubUserID == u.GithubUserID {
			c.add(models.SeverityError, schema.UserPath(u.Identity()), "identity %s appears in more than one user file; only the first is used", u.Identity())
			continue
		}
		out = append(out, u)
	}
	return out
}

func (c *checker) suggestions(users []models.UserFile) []models.AttributedSuggestion {
	// Tombstoned suggestions are dropped before id collisions are counted.
	owners := make(map[string]int)
	for _, u := range users {
		deleted := stringSet(u.DeletedSuggestions)
		for _, s := range u.Suggestions {
			if !deleted[s.ID] {
				owners[s.ID]++
			}
		}
	}

	warnedClosed := make(map[string]bool)
	var out []models.AttributedSuggestion

	for _, u := range users {
		root := schema.UserPath(u.Identity())
		deleted := stringSet(u.DeletedSuggestions)

		for i, s := range u.Suggestions {
			p := fmt.Sprintf("%s.suggestions[%d]", root, i)

			if deleted[s.ID] {
				c.add(models.SeverityInfo, p, "suggestion %q is marked deleted and was dropped", s.ID)
				c.excluded[s.ID] = true
				continue
			}
			if owners[s.ID] > 1 {
				c.add(models.SeverityError, p+".id", "suggestion id %q is used by more than one user file", s.ID)
				c.excluded[s.ID] = true
				continue
			}
			if !c.suggestionOK(s, p, warnedClosed) {
				c.excluded[s.ID] = true
				continue
			}

			a := models.AttributedSuggestion{
				Suggestion: s,
				Author:     u.GithubUserID,
				BucketKey:  bucket.Encode(s.FieldKey, s.CategoryLabel),
			}
			if s.PreviousBucketKey != "" && s.PreviousBucketKey != a.BucketKey {
				c.moved[s.ID] = true
				c.add(models.SeverityInfo, p+".previousBucketKey", "suggestion %q moved from bucket %q; votes cast by others were retracted", s.ID, s.PreviousBucketKey)
			}
			c.accepted[s.ID] = a
			out = append(out, a)
		}
	}
	return out
}

func (c *checker) suggestionOK(s models.Suggestion, p string, warnedClosed map[string]bool) bool {
	if _, ok := c.cfg.FieldIndex(s.FieldKey); !ok {
		c.add(models.SeverityError, p+".fieldKey", "fieldKey %q is not in fieldsToAnnotate", s.FieldKey)
		return false
	}

	dataset, ok := c.opts.Catalog.DatasetOf(s.ItemID)
	if !ok {
		c.add(models.SeverityWarning, p+".itemId", "dataset of item %q could not be resolved", s.ItemID)
	} else if !c.cfg.SupportsDataset(dataset) {
		c.add(models.SeverityError, p+".itemId", "dataset %q of item %q is not in supportedDatasets", dataset, s.ItemID)
		return false
	}

	if c.cfg.IsClosed(s.FieldKey) {
		closedAt, known := c.opts.ClosedAt[s.FieldKey]
		switch {
		case !known:
			if !warnedClosed[s.FieldKey] {
				warnedClosed[s.FieldKey] = true
				c.add(models.SeverityWarning, "config.closedFields["+s.FieldKey+"]", "field %q is closed but its closure time is unknown; its suggestions are kept", s.FieldKey)
			}
		case s.CreatedAt.After(closedAt):
			c.add(models.SeverityError, p+".createdAt", "suggestion created after field %q was closed at %s", s.FieldKey, closedAt.Format(time.RFC3339))
			return false
		}
	}
	return true
}

func (c *checker) votes(users []models.UserFile) []models.Vote {
	var out []models.Vote
	for _, u := range users {
		root := schema.UserPath(u.Identity())
		ids := make([]string, 0, len(u.Votes))
		for id := range u.Votes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			p := fmt.Sprintf("%s.votes[%s]", root, id)
			target, ok := c.accepted[id]
			switch {
			case !ok && c.excluded[id]:
				c.add(models.SeverityWarning, p, "vote on excluded suggestion %q was dropped", id)
				continue
			case !ok:
				c.add(models.SeverityWarning, p, "vote on unknown suggestion %q was dropped", id)
				continue
			}
			if c.moved[id] && target.Author != u.GithubUserID {
				c.add(models.SeverityInfo, p, "vote on %q was retracted because the suggestion changed bucket", id)
				continue
			}
			out = append(out, models.Vote{SuggestionID: id, Voter: u.GithubUserID, Direction: u.Votes[id]})
		}
	}
	return out
}

type edge struct {
	index int
	from  string
	into  string
}

func (c *checker) merges(records []models.MergeRecord) []models.MergeRecord {
	target := make(map[string]string)
	first := make(map[string]int)
	byBucket := make(map[string][]edge)

	for i, m := range records {
		p := fmt.Sprintf("merges[%d]", i)
		if !c.mergeOK(m, p) {
			continue
		}
		if prev, seen := target[m.FromSuggestionID]; seen {
			if prev == m.IntoSuggestionID {
				c.add(models.SeverityWarning, p, "duplicate merge %q -> %q ignored", m.FromSuggestionID, m.IntoSuggestionID)
			} else {
				c.add(models.SeverityError, p+".intoSuggestionId", "suggestion %q is already merged into %q", m.FromSuggestionID, prev)
			}
			continue
		}
		target[m.FromSuggestionID] = m.IntoSuggestionID
		first[m.FromSuggestionID] = i
		byBucket[m.BucketKey] = append(byBucket[m.BucketKey], edge{index: i, from: m.FromSuggestionID, into: m.IntoSuggestionID})
	}

	rejected := make(map[int]bool)
	buckets := make([]string, 0, len(byBucket))
	for b := range byBucket {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		for _, e := range cycleEdges(byBucket[b]) {
			rejected[e.index] = true
			c.add(models.SeverityError, fmt.Sprintf("merges[%d]", e.index), "merge %q -> %q is part of a cycle in bucket %q", e.from, e.into, b)
		}
	}

	var out []models.MergeRecord
	for i, m := range records {
		if j, ok := first[m.FromSuggestionID]; ok && j == i && !rejected[i] {
			out = append(out, m)
		}
	}
	return out
}

func (c *checker) mergeOK(m models.MergeRecord, p string) bool {
	if _, _, err := bucket.Decode(m.BucketKey); err != nil {
		c.add(models.SeverityError, p+".bucketKey", "bucketKey is not valid: %v", err)
		return false
	}
	if m.FromSuggestionID == m.IntoSuggestionID {
		c.add(models.SeverityError, p, "a suggestion cannot be merged into itself")
		return false
	}

	from, fromOK := c.accepted[m.FromSuggestionID]
	into, intoOK := c.accepted[m.IntoSuggestionID]
	if !fromOK {
		c.add(models.SeverityError, p+".fromSuggestionId", "suggestion %q does not exist or was excluded", m.FromSuggestionID)
	}
	if !intoOK {
		c.add(models.SeverityError, p+".intoSuggestionId", "suggestion %q does not exist or was excluded", m.IntoSuggestionID)
	}
	if !fromOK || !intoOK {
		return false
	}

	if from.BucketKey != m.BucketKey || into.BucketKey != m.BucketKey {
		c.add(models.SeverityError, p+".bucketKey", "merge endpoints are in buckets %q and %q, not %q", from.BucketKey, into.BucketKey, m.BucketKey)
		return false
	}
	if from.ItemID != into.ItemID {
		c.add(models.SeverityError, p, "merge endpoints annotate different items (%q, %q)", from.ItemID, into.ItemID)
		return false
	}
	return true
}

// cycleEdges returns every edge that lies on a cycle. Each node has at most
// one outgoing edge, so a walk from any node either ends or re-enters a node
// on the current path.
func cycleEdges(edges []edge) []edge {
	const (
		white = iota
		grey
		black
	)
	out := make(map[string]edge, len(edges))
	for _, e := range edges {
		out[e.from] = e
	}
	color := make(map[string]int, len(edges))

	var cyclic []edge
	for _, start := range edges {
		if color[start.from] != white {
			continue
		}
		var path []string
		node := start.from
		for {
			color[node] = grey
			path = append(path, node)
			e, ok := out[node]
			if !ok {
				break
			}
			next := e.into
			if color[next] == grey {
				// The cycle is the suffix of path starting at next.
				for i := len(path) - 1; i >= 0; i-- {
					cyclic = append(cyclic, out[path[i]])
					if path[i] == next {
						break
					}
				}
				break
			}
			if color[next] == black {
				break
			}
			node = next
		}
		for _, n := range path {
			color[n] = black
		}
	}

	sort.Slice(cyclic, func(i, j int) bool { return cyclic[i].index < cyclic[j].index })
	return cyclic
}

func stringSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
