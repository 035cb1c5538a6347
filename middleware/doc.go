// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

	mux.HandleFunc("POST /compile", middleware.WithLogging(handler))

Logs one line per request with method, path, status, client IP, response
size and duration. 5xx responses are logged at error level.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, report)
	middleware.ErrorResponse(w, http.StatusBadRequest, "invalid JSON")
	middleware.DiagnosticsResponse(w, http.StatusUnprocessableEntity, "invalid config", diags)

Request bodies are capped at MaxBodyBytes by ReadBody and ParseJSONBody.

# CORS

	server := http.Server{Handler: middleware.CORS(mux)}

Allows the X-Author-Key and X-Github-User-Id headers used by the repository
endpoints.
*/
package middleware
