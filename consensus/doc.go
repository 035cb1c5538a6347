// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package consensus tallies support per (item, field) and decides whether
consensus was reached.

A user supports a suggestion they authored or up-voted; merged suggestions
pool their supporters under the canonical id. Down votes count the voter as
a participant but not as support.

Consensus requires

	distinctAnnotators >= minAnnotators
	topSupporters / distinctAnnotators >= threshold

Candidates are ranked by supporters, then earliest createdAt, then canonical
id, so a tie at the top is still broken deterministically.
*/
package consensus
