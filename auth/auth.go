// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"path"
	"strconv"
	"strings"
)

var (
	ErrInvalidAuthorKey = errors.New("invalid author key")
	ErrInvalidUserID    = errors.New("invalid github user id")
)

// Files only repository authors may write, relative to the annotations root
var authorOnlyFiles = map[string]bool{
	"config.json":            true,
	"moderation/merges.json": true,
}

// GenerateAuthorKey creates an HMAC-based author key for a repository scope
// ("<dataset>/<repo>/<branch>"). This is deterministic and verifiable.
func GenerateAuthorKey(scopeKey, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(scopeKey))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateAuthorKey checks if the provided author key is valid for the scope
func ValidateAuthorKey(scopeKey, authorKey, salt string) error {
	expected := GenerateAuthorKey(scopeKey, salt)
	if !hmac.Equal([]byte(authorKey), []byte(expected)) {
		return ErrInvalidAuthorKey
	}
	return nil
}

// RequiresAuthorKey reports whether writing fileID is restricted to authors.
// Ids may carry a leading "annotations/".
func RequiresAuthorKey(fileID string) bool {
	clean := strings.TrimPrefix(path.Clean("/"+fileID), "/")
	clean = strings.TrimPrefix(clean, "annotations/")
	return authorOnlyFiles[clean]
}

// ParseUserID parses a GitHub user id header value
func ParseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID
	}
	return id, nil
}
