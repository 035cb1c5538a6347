// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package snapshots persists compiled consensus reports. Snapshots are
// immutable; a compile whose inputs hash matches an existing snapshot of the
// same scope reuses it rather than storing a copy.
package snapshots
