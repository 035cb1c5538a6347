// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielhkuo/quorum/cliparse"
	"github.com/danielhkuo/quorum/compiler"
	"github.com/danielhkuo/quorum/filestore"
	"github.com/danielhkuo/quorum/metrics"
	"github.com/danielhkuo/quorum/middleware"
	"github.com/danielhkuo/quorum/models"
	"github.com/danielhkuo/quorum/schema"
)

// CompileHandler serves the stateless endpoints: documents come in the
// request body and nothing is stored.
type CompileHandler struct {
	cfg     cliparse.Config
	metrics *metrics.Metrics
}

func NewCompileHandler(cfg cliparse.Config, m *metrics.Metrics) *CompileHandler {
	return &CompileHandler{cfg: cfg, metrics: m}
}

// Validate handles POST /validate
func (h *CompileHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		bodyError(w, err)
		return
	}

	switch req.Kind {
	case models.KindConfig, models.KindUser, models.KindMerges:
	case "":
		middleware.ErrorResponse(w, http.StatusBadRequest, "kind is required")
		return
	default:
		middleware.ErrorResponse(w, http.StatusBadRequest, "kind must be config, user or merges")
		return
	}
	if len(req.Content) == 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "content is required")
		return
	}

	diags := schema.Validate(req.Kind, req.FileID, req.Content)
	if diags == nil {
		diags = []models.Diagnostic{}
	}

	middleware.JSONResponse(w, http.StatusOK, models.ValidateResponse{
		Valid:       !models.HasErrors(diags),
		Diagnostics: diags,
	})
}

// Compile handles POST /compile
// Returns 422 with the config diagnostics when the config is invalid
func (h *CompileHandler) Compile(w http.ResponseWriter, r *http.Request) {
	var req models.CompileRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		bodyError(w, err)
		return
	}
	if isAbsent(req.Config) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "config is required")
		return
	}

	in := compiler.Input{Config: compiler.File{ID: filestore.ConfigID, Content: req.Config}}
	for _, doc := range req.Users {
		in.Users = append(in.Users, compiler.File{ID: doc.FileID, Content: doc.Content})
	}
	if !isAbsent(req.Merges) {
		in.Merges = &compiler.File{ID: filestore.MergesID, Content: req.Merges}
	}

	start := time.Now()
	report, err := compiler.Compile(in, compiler.Options{ClosedAt: req.ClosedAt})
	var cfgErr *compiler.ConfigError
	if errors.As(err, &cfgErr) {
		h.metrics.ObserveConfigError(cfgErr.Diagnostics)
		middleware.DiagnosticsResponse(w, http.StatusUnprocessableEntity, "Invalid config", cfgErr.Diagnostics)
		return
	}
	if err != nil {
		slog.Error("compile failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Compilation failed")
		return
	}
	h.metrics.ObserveCompile(metrics.SourceInline, time.Since(start), report)

	logReport("consensus compiled", report, "source", metrics.SourceInline)
	middleware.JSONResponse(w, http.StatusOK, report)
}

func logReport(msg string, report *models.CompileReport, args ...any) {
	args = append(args,
		"inputs_hash", report.InputsHash,
		"user_files", report.Stats.UserFilesUsed,
		"entries", report.Stats.Entries,
		"consensus", report.Stats.ConsensusCount,
		"errors", report.Stats.ErrorCount,
		"warnings", report.Stats.WarningCount,
	)
	slog.Info(msg, args...)
}

// bodyError maps a request body failure to 413 or 400
func bodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, middleware.ErrBodyTooLarge) {
		middleware.ErrorResponse(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
