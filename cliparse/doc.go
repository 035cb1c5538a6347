// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Precedence

CLI flags win over environment variables, which win over the YAML config
file, which wins over defaults:

	-p                  PORT               port
	-d                  DATABASE_URL       database_url
	-t                  DATABASE_TYPE      database_type
	-author-salt        AUTHOR_KEY_SALT    author_key_salt
	-fetch-concurrency  FETCH_CONCURRENCY  fetch_concurrency
	-log-level          LOG_LEVEL          log_level
	-log-format         LOG_FORMAT         log_format
	-c                  QUORUM_CONFIG      (the file itself)

# Validation

ParseFlags fails when AUTHOR_KEY_SALT is missing, the database type is not
sqlite or postgres, postgres has no URL, or a level, format or concurrency
is out of range.

# Helpers

	db, err := sql.Open(cfg.DriverName(), cfg.DataSourceName())
	slog.SetDefault(cfg.NewLogger(os.Stderr))
*/
package cliparse
