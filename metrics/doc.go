// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics exposes Prometheus counters for compilations, the raw-file
// cache and snapshot reuse. All collectors use the quorum_ namespace and are
// served at GET /metrics.
package metrics
