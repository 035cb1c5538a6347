// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/quorum/auth"
	"github.com/danielhkuo/quorum/cliparse"
	"github.com/danielhkuo/quorum/compiler"
	"github.com/danielhkuo/quorum/filestore"
	"github.com/danielhkuo/quorum/metrics"
	"github.com/danielhkuo/quorum/middleware"
	"github.com/danielhkuo/quorum/models"
	"github.com/danielhkuo/quorum/snapshots"
)

// ScopeHandler compiles repository branches from the requester's file cache
// and keeps the resulting snapshots.
type ScopeHandler struct {
	cache     *filestore.Cache
	snapshots *snapshots.Store
	cfg       cliparse.Config
	metrics   *metrics.Metrics
}

func NewScopeHandler(cache *filestore.Cache, store *snapshots.Store, cfg cliparse.Config, m *metrics.Metrics) *ScopeHandler {
	return &ScopeHandler{cache: cache, snapshots: store, cfg: cfg, metrics: m}
}

// Compile handles POST /repos/{dataset}/{repo}/{branch}/compile
// Refreshes the requester's cache, then returns the snapshot for the current
// inputs, compiling only when no snapshot exists for them yet
func (h *ScopeHandler) Compile(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	scope.UserID, err = auth.ParseUserID(r.Header.Get("X-Github-User-Id"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Github-User-Id is required")
		return
	}

	// The body is optional
	var req models.CompileScopeRequest
	body, err := middleware.ReadBody(r)
	if err != nil {
		bodyError(w, err)
		return
	}
	if !isAbsent(body) {
		if err := json.Unmarshal(body, &req); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}

	ctx := r.Context()
	stats, err := h.cache.Refresh(ctx, scope)
	if err != nil {
		slog.Error("cache refresh failed", "scope", scope.CacheKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to refresh files")
		return
	}
	h.metrics.ObserveRefresh(stats)
	slog.Info("cache refreshed",
		"scope", scope.CacheKey(),
		"files", stats.Files,
		"fetched", stats.Fetched,
		"removed", stats.Removed,
		"size", humanize.Bytes(uint64(stats.Bytes)),
	)

	files, err := h.cache.Files(ctx, scope)
	if err != nil {
		slog.Error("failed to read cache", "scope", scope.CacheKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	in, err := filestore.BuildInput(files)
	if errors.Is(err, filestore.ErrNoConfig) {
		middleware.ErrorResponse(w, http.StatusNotFound, "config.json not found for this branch")
		return
	}
	if err != nil {
		middleware.ErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := compiler.Options{ClosedAt: req.ClosedAt}
	key := compiler.SnapshotKey(in, opts)

	existing, err := h.snapshots.FindByHash(ctx, scope.RepoKey(), key)
	if err == nil {
		existing.Reused = true
		h.metrics.ObserveSnapshot(true)
		slog.Info("snapshot reused", "scope", scope.RepoKey(), "snapshot_id", existing.ID)
		middleware.JSONResponse(w, http.StatusOK, existing)
		return
	}
	if !errors.Is(err, snapshots.ErrNotFound) {
		slog.Error("failed to look up snapshot", "scope", scope.RepoKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	start := time.Now()
	report, err := compiler.Compile(in, opts)
	var cfgErr *compiler.ConfigError
	if errors.As(err, &cfgErr) {
		h.metrics.ObserveConfigError(cfgErr.Diagnostics)
		middleware.DiagnosticsResponse(w, http.StatusUnprocessableEntity, "Invalid config", cfgErr.Diagnostics)
		return
	}
	if err != nil {
		slog.Error("compile failed", "scope", scope.RepoKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Compilation failed")
		return
	}
	h.metrics.ObserveCompile(metrics.SourceScope, time.Since(start), report)

	snap, err := h.snapshots.Save(ctx, scope.RepoKey(), key, report)
	if err != nil {
		slog.Error("failed to save snapshot", "scope", scope.RepoKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	h.metrics.ObserveSnapshot(snap.Reused)

	logReport("consensus compiled", report, "source", metrics.SourceScope, "scope", scope.RepoKey(), "snapshot_id", snap.ID)
	middleware.JSONResponse(w, http.StatusOK, snap)
}

// LatestSnapshot handles GET /repos/{dataset}/{repo}/{branch}/snapshots/latest
func (h *ScopeHandler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.snapshots.Latest(r.Context(), scope.RepoKey())
	if errors.Is(err, snapshots.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "No snapshot for this branch")
		return
	}
	if err != nil {
		slog.Error("failed to query snapshot", "scope", scope.RepoKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, snap)
}
