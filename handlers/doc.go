// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the quorum API.

# Handler Types

  - CompileHandler: stateless validation and compilation of documents sent
    in the request body
  - RepoHandler: raw annotation files stored per repository branch
  - ScopeHandler: per-requester compilation of a branch, with snapshots

Handlers are created with their stores, the config and the metrics:

	repoHandler := handlers.NewRepoHandler(store, cfg, m)

# Writing Files

config.json and moderation/merges.json require the branch's X-Author-Key.
A user file may be written by its owner, identified by X-Github-User-Id, or
by an author. Bodies are stored verbatim; malformed files surface as
diagnostics when the branch is compiled.

# Compiling a Branch

	POST /repos/{dataset}/{repo}/{branch}/compile

refreshes the requester's file cache (only changed files are fetched),
computes the snapshot key from the inputs hash and any closure times, and
returns the stored snapshot for that key when one exists. Otherwise the
branch is compiled and the report saved as a new snapshot. An invalid config
yields 422 with its diagnostics.
*/
package handlers
