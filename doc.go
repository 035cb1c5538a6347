// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the quorum API server.

Quorum compiles the consensus view of a collaborative annotation repository:
annotators suggest category labels for dataset items and vote on each
other's suggestions, moderators merge duplicates, and the server reports
which label each (item, field) settled on.

# Starting the Server

	AUTHOR_KEY_SALT=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

A .env file in the working directory is loaded first when present.

# Configuration

Required settings:

  - AUTHOR_KEY_SALT (-author-salt): Secret for author key HMAC

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - DATABASE_URL (-d): Database URL or SQLite path (default: quorum.db)
  - FETCH_CONCURRENCY (-fetch-concurrency): Parallel fetches per refresh
  - LOG_LEVEL, LOG_FORMAT: slog level and text/json output
  - QUORUM_CONFIG (-c): YAML file with the same settings

# Architecture

  - schema, bucket, integrity, merge, consensus, compiler: the pure
    compilation pipeline
  - filestore: raw file storage, directory source and per-user cache
  - snapshots: compiled reports keyed by inputs hash
  - handlers, router, middleware: HTTP surface
  - metrics: Prometheus collectors
  - auth, cliparse, db, models: supporting packages

cmd/quorum-check runs the same pipeline over a directory for CI.
*/
package main
