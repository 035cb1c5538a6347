// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package integrity applies the cross-file rules to a batch of schema-valid
records. Records that break a rule are dropped individually; the rest of
their file survives.

# Suggestions

  - the field must be in fieldsToAnnotate and the item's dataset supported
  - suggestions on a closed field made after its closure time are rejected
  - suggestion ids are unique across the batch; every colliding copy is
    dropped
  - ids listed in deletedSuggestions are tombstones and never compile

# Votes

Votes on unknown or dropped suggestions are dropped with a warning. When an
edit moved a suggestion to another bucket (previousBucketKey is set), other
users' votes on it are retracted.

# Merges

Both endpoints must exist, share the merge's bucket and the same item. A
suggestion may be merged into one target only. Every edge on a cycle is
rejected; edges leading into a cycle are kept.
*/
package integrity
