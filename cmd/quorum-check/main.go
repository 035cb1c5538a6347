// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Command quorum-check validates an annotations directory in CI. It reads
// config.json, users/*.json and moderation/merges.json under -root, prints
// every diagnostic to stderr and exits 1 if any is an error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/danielhkuo/quorum/auth"
	"github.com/danielhkuo/quorum/compiler"
	"github.com/danielhkuo/quorum/filestore"
	"github.com/danielhkuo/quorum/models"
)

func main() {
	_ = godotenv.Load(".env")
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, stderrIsTerminal()))
}

func stderrIsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type options struct {
	root      string
	compile   bool
	strict    bool
	authorKey string
	closedAt  string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, color bool) int {
	var opts options
	fs := flag.NewFlagSet("quorum-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.root, "root", "annotations", "Annotations directory")
	fs.BoolVar(&opts.compile, "compile", false, "Print the consensus report as JSON to stdout")
	fs.BoolVar(&opts.strict, "strict", false, "Fail on warnings too")
	fs.StringVar(&opts.closedAt, "closed-at", "", "JSON object of closure times, e.g. {\"cell_type\":\"2025-01-01T00:00:00Z\"}")
	fs.StringVar(&opts.authorKey, "author-key", "", "Print the author key for <dataset>/<repo>/<branch> (uses AUTHOR_KEY_SALT) and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if opts.authorKey != "" {
		salt := os.Getenv("AUTHOR_KEY_SALT")
		if salt == "" {
			fmt.Fprintln(stderr, "AUTHOR_KEY_SALT required")
			return 2
		}
		fmt.Fprintln(stdout, auth.GenerateAuthorKey(opts.authorKey, salt))
		return 0
	}

	var closedAt map[string]time.Time
	if opts.closedAt != "" {
		if err := json.Unmarshal([]byte(opts.closedAt), &closedAt); err != nil {
			fmt.Fprintf(stderr, "invalid -closed-at: %v\n", err)
			return 2
		}
	}

	files, err := filestore.ReadAll(ctx, filestore.DirSource{Root: opts.root}, filestore.Scope{})
	if err != nil {
		fmt.Fprintf(stderr, "failed to read %s: %v\n", opts.root, err)
		return 1
	}
	size := 0
	for _, b := range files {
		size += len(b)
	}

	in, err := filestore.BuildInput(files)
	if errors.Is(err, filestore.ErrNoConfig) {
		fmt.Fprintf(stderr, "%s: config.json not found\n", opts.root)
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	p := printer{w: stderr, color: color}
	report, err := compiler.Compile(in, compiler.Options{ClosedAt: closedAt})
	var cfgErr *compiler.ConfigError
	if errors.As(err, &cfgErr) {
		for _, d := range cfgErr.Diagnostics {
			p.diagnostic(d)
		}
		fmt.Fprintf(stderr, "config.json is invalid: %s\n", english.Plural(len(cfgErr.Diagnostics), "error", "errors"))
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	for _, d := range report.Diagnostics {
		p.diagnostic(d)
	}
	fmt.Fprintf(stderr, "checked %s (%s): %s, %s; %s of %s reached consensus\n",
		english.Plural(len(files), "file", "files"),
		humanize.Bytes(uint64(size)),
		english.Plural(report.Stats.ErrorCount, "error", "errors"),
		english.Plural(report.Stats.WarningCount, "warning", "warnings"),
		humanize.Comma(int64(report.Stats.ConsensusCount)),
		english.Plural(report.Stats.Entries, "entry", "entries"),
	)

	if opts.compile {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	if report.Stats.ErrorCount > 0 || (opts.strict && report.Stats.WarningCount > 0) {
		return 1
	}
	return 0
}

const (
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiReset  = "\033[0m"
)

type printer struct {
	w     io.Writer
	color bool
}

func (p printer) diagnostic(d models.Diagnostic) {
	sev := string(d.Severity)
	if p.color {
		switch d.Severity {
		case models.SeverityError:
			sev = ansiRed + sev + ansiReset
		case models.SeverityWarning:
			sev = ansiYellow + sev + ansiReset
		default:
			sev = ansiCyan + sev + ansiReset
		}
	}
	fmt.Fprintf(p.w, "%s [%s] %s: %s\n", sev, d.Kind, d.Path, d.Message)
}
