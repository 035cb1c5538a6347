// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danielhkuo/quorum/consensus"
	"github.com/danielhkuo/quorum/integrity"
	"github.com/danielhkuo/quorum/merge"
	"github.com/danielhkuo/quorum/models"
	"github.com/danielhkuo/quorum/schema"
)

// File is one raw artifact and the id it is stored under
type File struct {
	ID      string
	Content []byte
}

type Input struct {
	Config File
	Users  []File
	Merges *File // optional
}

type Options struct {
	ClosedAt map[string]time.Time
	Catalog  integrity.Catalog
}

// ConfigError is returned when the config itself is invalid. No partial
// report is produced in that case.
type ConfigError struct {
	Diagnostics []models.Diagnostic
}

func (e *ConfigError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "invalid config"
	}
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		msgs = append(msgs, d.Path+": "+d.Message)
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Compile validates every file, drops malformed ones, and compiles the
// consensus view from the rest. The report is identical for identical
// inputs regardless of the order of in.Users.
func Compile(in Input, opts Options) (*models.CompileReport, error) {
	cfg, cfgDiags := schema.ParseConfig(in.Config.Content)
	if models.HasErrors(cfgDiags) {
		return nil, &ConfigError{Diagnostics: cfgDiags}
	}

	diags := append([]models.Diagnostic(nil), cfgDiags...)

	users := make([]File, len(in.Users))
	copy(users, in.Users)
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].ID != users[j].ID {
			return users[i].ID < users[j].ID
		}
		return ContentHash(users[i].Content) < ContentHash(users[j].Content)
	})

	var valid []models.UserFile
	for _, f := range users {
		u, d := schema.ParseUserFile(f.ID, f.Content)
		diags = append(diags, d...)
		if models.HasErrors(d) {
			continue
		}
		valid = append(valid, u)
	}

	var mf *models.MergeFile
	if in.Merges != nil {
		parsed, d := schema.ParseMergeFile(in.Merges.Content)
		diags = append(diags, d...)
		if !models.HasErrors(d) {
			mf = &parsed
		}
	}

	report := run(cfg, valid, mf, opts, diags)
	report.Stats.UserFiles = len(in.Users)
	report.InputsHash = InputsHash(in)
	return report, nil
}

// CompileRecords compiles already decoded records. The config must be valid;
// InputsHash is left empty since there are no raw files to hash. Records are
// put in canonical order first, so which of two records sharing a
// githubUserId survives does not depend on the caller's order.
func CompileRecords(cfg models.Config, users []models.UserFile, merges *models.MergeFile, opts Options) *models.CompileReport {
	report := run(cfg, canonicalRecords(users), merges, opts, nil)
	report.Stats.UserFiles = len(users)
	return report
}

// canonicalRecords orders records by githubUserId, then by the hash of
// their JSON encoding.
func canonicalRecords(users []models.UserFile) []models.UserFile {
	type keyed struct {
		user models.UserFile
		hash string
	}
	ks := make([]keyed, len(users))
	for i, u := range users {
		b, _ := json.Marshal(u)
		ks[i] = keyed{user: u, hash: ContentHash(b)}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].user.GithubUserID != ks[j].user.GithubUserID {
			return ks[i].user.GithubUserID < ks[j].user.GithubUserID
		}
		return ks[i].hash < ks[j].hash
	})

	out := make([]models.UserFile, len(ks))
	for i, k := range ks {
		out[i] = k.user
	}
	return out
}

func run(cfg models.Config, users []models.UserFile, mf *models.MergeFile, opts Options, diags []models.Diagnostic) *models.CompileReport {
	res := integrity.Check(cfg, users, mf, integrity.Options{
		ClosedAt: opts.ClosedAt,
		Catalog:  opts.Catalog,
	})
	diags = append(diags, res.Diagnostics...)

	resolver := merge.NewResolver(res.Merges)
	entries := consensus.Compile(cfg, res.Suggestions, res.Votes, resolver)

	report := &models.CompileReport{
		Entries:     entries,
		Diagnostics: diags,
	}
	if report.Diagnostics == nil {
		report.Diagnostics = []models.Diagnostic{}
	}

	report.Stats = models.CompileStats{
		UserFilesUsed: len(users),
		Suggestions:   len(res.Suggestions),
		Votes:         len(res.Votes),
		MergesApplied: len(res.Merges),
		Entries:       len(entries),
		ErrorCount:    models.CountBySeverity(diags, models.SeverityError),
		WarningCount:  models.CountBySeverity(diags, models.SeverityWarning),
	}
	if mf != nil {
		report.Stats.Merges = len(mf.Merges)
	}
	for _, e := range entries {
		if e.ReachedConsensus {
			report.Stats.ConsensusCount++
		}
	}
	return report
}

// ContentHash is the hex SHA-256 of a file's bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// InputsHash fingerprints a batch: SHA-256 over the sorted (fileId,
// contentHash) pairs of every input file.
func InputsHash(in Input) string {
	files := append([]File{in.Config}, in.Users...)
	if in.Merges != nil {
		files = append(files, *in.Merges)
	}

	pairs := make([]string, 0, len(files))
	for _, f := range files {
		pairs = append(pairs, f.ID+"\x00"+ContentHash(f.Content))
	}
	sort.Strings(pairs)

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotKey extends InputsHash with the closure times in opts, since they
// change the report too. Without closure times it equals InputsHash.
func SnapshotKey(in Input, opts Options) string {
	base := InputsHash(in)
	if len(opts.ClosedAt) == 0 {
		return base
	}

	fields := make([]string, 0, len(opts.ClosedAt))
	for f := range opts.ClosedAt {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	h := sha256.New()
	h.Write([]byte(base))
	for _, f := range fields {
		fmt.Fprintf(h, "\n%s\x00%s", f, opts.ClosedAt[f].UTC().Format(time.RFC3339Nano))
	}
	return hex.EncodeToString(h.Sum(nil))
}
