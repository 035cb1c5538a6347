// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the quorum API.

	mux := router.NewRouter(db, cfg)

# Endpoints

Health and metrics:

	GET /health
	GET /metrics

Stateless (documents in the request body):

	POST /validate - Diagnostics for one artifact
	POST /compile  - Consensus report for a batch (422 on invalid config)

Repository branches, under /repos/{dataset}/{repo}/{branch}:

	GET    /files           - File ids and content hashes
	GET    /files/{path...} - Raw file
	PUT    /files/{path...} - Store a file (config and merges need X-Author-Key)
	DELETE /files/{path...} - Remove a file
	POST   /changes         - Files changed since a set of known hashes
	POST   /compile         - Refresh the X-Github-User-Id cache and compile
	GET    /snapshots/latest

The router owns the stores and the metrics registry and hands them to the
handlers.
*/
package router
