// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides author key and identity helpers.

# Author Keys

Author keys use HMAC-SHA256 to create deterministic, verifiable keys for a
repository scope ("<dataset>/<repo>/<branch>"):

	key := auth.GenerateAuthorKey(scopeKey, salt)
	err := auth.ValidateAuthorKey(scopeKey, key, salt)

The key is URL-safe base64 encoded without padding. Since it's deterministic,
the same scope and salt always produce the same key, so nothing is stored.

Only authors may write config.json and moderation/merges.json:

	if auth.RequiresAuthorKey(fileID) { ... }

# User IDs

Requesters identify themselves with their GitHub user id:

	id, err := auth.ParseUserID(r.Header.Get("X-Github-User-Id"))

Authentication of that id happens upstream; this service only scopes caches
by it.
*/
package auth
