// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package filestore stores and fetches raw annotation files.

File ids are relative to the annotations directory: config.json,
users/ghid_<id>.json and moderation/merges.json.

  - SQLStore keeps the files of each repository branch in repo_file
  - DirSource reads an annotations directory on disk
  - Cache mirrors a Source into file_cache, one scope per requester

ChangedSince lists files whose hash differs from the caller's known hashes
and fetches only those, in parallel with a bounded worker pool.
*/
package filestore
