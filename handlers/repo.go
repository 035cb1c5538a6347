// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/quorum/auth"
	"github.com/danielhkuo/quorum/cliparse"
	"github.com/danielhkuo/quorum/filestore"
	"github.com/danielhkuo/quorum/metrics"
	"github.com/danielhkuo/quorum/middleware"
	"github.com/danielhkuo/quorum/models"
	"github.com/danielhkuo/quorum/schema"
)

// RepoHandler serves the raw annotation files of repository branches.
type RepoHandler struct {
	store   *filestore.SQLStore
	cfg     cliparse.Config
	metrics *metrics.Metrics
}

func NewRepoHandler(store *filestore.SQLStore, cfg cliparse.Config, m *metrics.Metrics) *RepoHandler {
	return &RepoHandler{store: store, cfg: cfg, metrics: m}
}

// scopeFromPath reads {dataset}/{repo}/{branch}. UserID is left zero.
func scopeFromPath(r *http.Request) (filestore.Scope, error) {
	scope := filestore.Scope{
		DatasetID: r.PathValue("dataset"),
		Repo:      r.PathValue("repo"),
		Branch:    r.PathValue("branch"),
	}
	return scope, scope.Validate()
}

// authorize checks who may write fileID. Config and merges need the
// branch's author key; a user file needs the author key or the owner's
// X-Github-User-Id.
func (h *RepoHandler) authorize(r *http.Request, scope filestore.Scope, fileID string) (int, string) {
	authorKey := r.Header.Get("X-Author-Key")
	isAuthor := authorKey != "" &&
		auth.ValidateAuthorKey(scope.RepoKey(), authorKey, h.cfg.AuthorKeySalt) == nil

	if auth.RequiresAuthorKey(fileID) {
		if !isAuthor {
			return http.StatusUnauthorized, "Invalid author key"
		}
		return 0, ""
	}
	if isAuthor {
		return 0, ""
	}

	userID, err := auth.ParseUserID(r.Header.Get("X-Github-User-Id"))
	if err != nil {
		return http.StatusUnauthorized, "X-Github-User-Id or X-Author-Key is required"
	}
	if schema.IdentityFromFileID(fileID) != models.IdentityName(userID) {
		return http.StatusForbidden, "Users may only write their own file"
	}
	return 0, ""
}

// PutFile handles PUT /repos/{dataset}/{repo}/{branch}/files/{path...}
// The body is stored verbatim; validation happens at compile time.
func (h *RepoHandler) PutFile(w http.ResponseWriter, r *http.Request) {
	scope, fileID, ok := h.fileTarget(w, r)
	if !ok {
		return
	}
	if status, msg := h.authorize(r, scope, fileID); status != 0 {
		middleware.ErrorResponse(w, status, msg)
		return
	}

	content, err := middleware.ReadBody(r)
	if err != nil {
		bodyError(w, err)
		return
	}
	if len(content) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "content is required")
		return
	}

	hash, err := h.store.Put(r.Context(), scope, fileID, content)
	if err != nil {
		slog.Error("failed to store file", "scope", scope.RepoKey(), "file", fileID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	h.metrics.ObserveFileStored()

	slog.Info("file stored", "scope", scope.RepoKey(), "file", fileID, "size", humanize.Bytes(uint64(len(content))))
	middleware.JSONResponse(w, http.StatusOK, models.PutFileResponse{
		FileID: fileID,
		Hash:   hash,
		Size:   len(content),
	})
}

// GetFile handles GET /repos/{dataset}/{repo}/{branch}/files/{path...}
func (h *RepoHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	scope, fileID, ok := h.fileTarget(w, r)
	if !ok {
		return
	}

	content, hash, err := h.store.Get(r.Context(), scope, fileID)
	if errors.Is(err, filestore.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		slog.Error("failed to read file", "scope", scope.RepoKey(), "file", fileID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", `"`+hash+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// DeleteFile handles DELETE /repos/{dataset}/{repo}/{branch}/files/{path...}
func (h *RepoHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	scope, fileID, ok := h.fileTarget(w, r)
	if !ok {
		return
	}
	if status, msg := h.authorize(r, scope, fileID); status != 0 {
		middleware.ErrorResponse(w, status, msg)
		return
	}

	err := h.store.Delete(r.Context(), scope, fileID)
	if errors.Is(err, filestore.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		slog.Error("failed to delete file", "scope", scope.RepoKey(), "file", fileID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	slog.Info("file deleted", "scope", scope.RepoKey(), "file", fileID)
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles handles GET /repos/{dataset}/{repo}/{branch}/files
func (h *RepoHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.store.List(r.Context(), scope)
	if err != nil {
		slog.Error("failed to list files", "scope", scope.RepoKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	files := make([]models.FileEntry, 0, len(entries))
	for _, e := range entries {
		files = append(files, models.FileEntry{FileID: e.FileID, Hash: e.Hash})
	}
	middleware.JSONResponse(w, http.StatusOK, files)
}

// Changes handles POST /repos/{dataset}/{repo}/{branch}/changes
// Returns the files whose hash differs from knownHashes, plus removals
func (h *RepoHandler) Changes(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromPath(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.ChangesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		bodyError(w, err)
		return
	}
	if req.UserID <= 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "userId is required")
		return
	}
	scope.UserID = req.UserID

	changes, err := filestore.ChangedSince(r.Context(), h.store, scope, req.KnownHashes)
	if err != nil {
		slog.Error("failed to compute changes", "scope", scope.CacheKey(), "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to list changes")
		return
	}

	resp := models.ChangesResponse{Changes: make([]models.FileChange, 0, len(changes))}
	size := 0
	for _, c := range changes {
		resp.Changes = append(resp.Changes, models.FileChange{
			FileID:  c.FileID,
			NewHash: c.NewHash,
			Removed: c.Removed,
			Content: string(c.Content),
		})
		size += len(c.Content)
	}

	slog.Debug("changes listed", "scope", scope.CacheKey(), "changes", len(changes), "size", humanize.Bytes(uint64(size)))
	middleware.JSONResponse(w, http.StatusOK, resp)
}

func (h *RepoHandler) fileTarget(w http.ResponseWriter, r *http.Request) (filestore.Scope, string, bool) {
	scope, err := scopeFromPath(r)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return scope, "", false
	}
	fileID, err := filestore.NormalizeFileID(r.PathValue("path"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return scope, "", false
	}
	if !filestore.IsKnownFile(fileID) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "file must be config.json, moderation/merges.json or users/<identity>.json")
		return scope, "", false
	}
	return scope, fileID, true
}
