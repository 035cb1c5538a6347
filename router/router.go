// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/quorum/cliparse"
	"github.com/danielhkuo/quorum/filestore"
	"github.com/danielhkuo/quorum/handlers"
	"github.com/danielhkuo/quorum/metrics"
	"github.com/danielhkuo/quorum/middleware"
	"github.com/danielhkuo/quorum/snapshots"
)

const repoPrefix = "/repos/{dataset}/{repo}/{branch}"

func NewRouter(db *sql.DB, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()
	m := metrics.New()

	// Storage
	store := filestore.NewSQLStore(db)
	cache := filestore.NewCache(db, store, cfg.FetchConcurrency)
	snaps := snapshots.NewStore(db)

	// Initialize handlers
	compileHandler := handlers.NewCompileHandler(cfg, m)
	repoHandler := handlers.NewRepoHandler(store, cfg, m)
	scopeHandler := handlers.NewScopeHandler(cache, snaps, cfg, m)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", m.Handler())

	// Stateless validation and compilation
	mux.HandleFunc("POST /validate", middleware.WithLogging(compileHandler.Validate))
	mux.HandleFunc("POST /compile", middleware.WithLogging(compileHandler.Compile))

	// Repository files (config and merges require X-Author-Key)
	mux.HandleFunc("GET "+repoPrefix+"/files", middleware.WithLogging(repoHandler.ListFiles))
	mux.HandleFunc("GET "+repoPrefix+"/files/{path...}", middleware.WithLogging(repoHandler.GetFile))
	mux.HandleFunc("PUT "+repoPrefix+"/files/{path...}", middleware.WithLogging(repoHandler.PutFile))
	mux.HandleFunc("DELETE "+repoPrefix+"/files/{path...}", middleware.WithLogging(repoHandler.DeleteFile))
	mux.HandleFunc("POST "+repoPrefix+"/changes", middleware.WithLogging(repoHandler.Changes))

	// Per-requester compilation and snapshots
	mux.HandleFunc("POST "+repoPrefix+"/compile", middleware.WithLogging(scopeHandler.Compile))
	mux.HandleFunc("GET "+repoPrefix+"/snapshots/latest", middleware.WithLogging(scopeHandler.LatestSnapshot))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quorum API v1"))
	})

	return mux
}
