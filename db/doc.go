// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database schema creation.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The same statements run on SQLite (modernc.org/sqlite) and PostgreSQL
(github.com/lib/pq).

# Tables

  - repo_file: Raw annotation files stored per scope
  - file_cache: Raw files fetched into a requester's cache scope
  - consensus_snapshot: Compiled reports keyed by inputs hash

A scope key is "<dataset>/<repo>/<branch>" for repo_file and snapshots, and
"<dataset>/<repo>/<branch>#<userId>" for file_cache.

# Indexes

  - consensus_snapshot.(scope_key, computed_at)
  - consensus_snapshot.(scope_key, inputs_hash)
*/
package db
