// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package merge

import "github.com/danielhkuo/quorum/models"

// maxHops bounds a single resolution walk. Accepted merges are acyclic, so
// it is only reached if a cycle slipped past the integrity checks.
const maxHops = 10000

type key struct {
	bucket string
	id     string
}

// Resolver maps a suggestion to the canonical suggestion it was merged into,
// within one bucket. It is not safe for concurrent use.
type Resolver struct {
	next      map[key]string
	canonical map[key]string
}

// NewResolver indexes merge edges by bucket. The records should already have
// passed integrity checks; when a suggestion has more than one outgoing
// edge, the first one wins.
func NewResolver(merges []models.MergeRecord) *Resolver {
	r := &Resolver{
		next:      make(map[key]string, len(merges)),
		canonical: make(map[key]string),
	}
	for _, m := range merges {
		k := key{m.BucketKey, m.FromSuggestionID}
		if _, exists := r.next[k]; exists {
			continue
		}
		r.next[k] = m.IntoSuggestionID
	}
	return r
}

// Canonical returns the end of the merge chain starting at id. An id that
// was never merged resolves to itself. Every node on a resolved chain is
// cached, so repeated lookups are constant time.
func (r *Resolver) Canonical(bucketKey, id string) string {
	if c, ok := r.canonical[key{bucketKey, id}]; ok {
		return c
	}

	var path []string
	cur := id
	for hops := 0; ; hops++ {
		if c, ok := r.canonical[key{bucketKey, cur}]; ok {
			cur = c
			break
		}
		nxt, ok := r.next[key{bucketKey, cur}]
		if !ok || hops >= maxHops {
			break
		}
		path = append(path, cur)
		cur = nxt
	}

	for _, n := range path {
		r.canonical[key{bucketKey, n}] = cur
	}
	r.canonical[key{bucketKey, cur}] = cur
	return cur
}
