// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package compiler runs the whole pipeline over one batch of raw files:
schema validation, integrity checks, merge resolution and consensus.

	report, err := compiler.Compile(compiler.Input{
		Config: compiler.File{ID: "config.json", Content: cfg},
		Users:  users,
	}, compiler.Options{})

An invalid config returns *ConfigError and no report. Every other problem is
a diagnostic in the report, and the offending file or record is left out.
The report is byte-identical for identical inputs regardless of file order,
and carries InputsHash so callers can cache by it.
*/
package compiler
