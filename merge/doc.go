// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package merge resolves moderator merges to canonical suggestion ids.
package merge
