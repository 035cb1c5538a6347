// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package bucket encodes and decodes the key that groups suggestions by
// field and category label.
package bucket
