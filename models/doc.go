// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines the artifact, consensus, and API types.

# Artifacts

The JSON documents annotators and moderators commit:

  - Config: supportedDatasets, fieldsToAnnotate, annotatableSettings,
    closedFields
  - UserFile: one annotator's suggestions, votes, comments and tombstones
  - MergeFile: moderator merges of duplicate suggestions

# Compilation

  - AttributedSuggestion, Vote: records that passed integrity checks
  - Candidate, ConsensusEntry: the ranked result per (item, field)
  - CompileReport: entries, diagnostics, inputs hash and stats
  - Diagnostic: severity, kind, path and message for one finding

# API

ValidateRequest, CompileRequest, ChangesRequest and CompileScopeRequest are
decoded from request bodies; ErrorResponse carries diagnostics when a
request fails on an invalid config.
*/
package models
