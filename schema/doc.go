// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package schema validates the raw JSON artifacts and decodes them into typed
records.

	cfg, diags := schema.ParseConfig(raw)
	user, diags := schema.ParseUserFile("users/ghid_42.json", raw)
	merges, diags := schema.ParseMergeFile(raw)

Validation is eager and never panics: every problem found in a document is
reported as a diagnostic with a path such as
"users[ghid_42].suggestions[3].createdAt". A user or merges file with any
error-severity diagnostic must be dropped by the caller; config problems are
reported with kind "config".

Validate dispatches on models.FileKind for callers that only need the
diagnostics.
*/
package schema
