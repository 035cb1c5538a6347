// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package bucket

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// Separator splits the field key from the category label.
	Separator = ":"
	// Marker prefixes a field key that had to be escaped.
	Marker = "~"
)

var (
	ErrNoSeparator = errors.New("bucket key has no separator")
	ErrBadEscape   = errors.New("bucket key has an invalid escaped field key")
)

// Encode builds the composite bucket key for a field key and category label.
// Field keys containing the separator, or starting with the marker, are
// percent-encoded and prefixed with the marker so Decode can split at the
// first separator.
func Encode(fieldKey, categoryLabel string) string {
	if needsEscape(fieldKey) {
		return Marker + url.QueryEscape(fieldKey) + Separator + categoryLabel
	}
	return fieldKey + Separator + categoryLabel
}

// Decode is the exact inverse of Encode.
func Decode(key string) (fieldKey, categoryLabel string, err error) {
	i := strings.Index(key, Separator)
	if i < 0 {
		return "", "", fmt.Errorf("%w: %q", ErrNoSeparator, key)
	}
	field, label := key[:i], key[i+len(Separator):]

	if !strings.HasPrefix(field, Marker) {
		return field, label, nil
	}

	unescaped, err := url.QueryUnescape(strings.TrimPrefix(field, Marker))
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrBadEscape, key)
	}
	// Only escaped keys carry the marker; a canonical encoding of this field
	// would not have needed it.
	if !needsEscape(unescaped) {
		return "", "", fmt.Errorf("%w: %q", ErrBadEscape, key)
	}
	return unescaped, label, nil
}

func needsEscape(fieldKey string) bool {
	return strings.Contains(fieldKey, Separator) || strings.HasPrefix(fieldKey, Marker)
}
