// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// File kinds
type FileKind string

const (
	KindConfig FileKind = "config"
	KindUser   FileKind = "user"
	KindMerges FileKind = "merges"
)

// Schema version accepted for every artifact
const SchemaVersion = 1

// Field settings applied when config has no entry for a field
const (
	DefaultMinAnnotators = 1
	DefaultThreshold     = 0.5
)

// Vote directions
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Input artifacts

type FieldSettings struct {
	MinAnnotators int     `json:"minAnnotators"`
	Threshold     float64 `json:"threshold"`
}

type Config struct {
	Version             int                      `json:"version"`
	SupportedDatasets   []string                 `json:"supportedDatasets"`
	FieldsToAnnotate    []string                 `json:"fieldsToAnnotate"`
	AnnotatableSettings map[string]FieldSettings `json:"annotatableSettings,omitempty"`
	ClosedFields        []string                 `json:"closedFields,omitempty"`
}

// Settings returns the consensus settings for fieldKey, falling back to the
// defaults for anything the config leaves unset.
func (c Config) Settings(fieldKey string) FieldSettings {
	s, ok := c.AnnotatableSettings[fieldKey]
	if !ok {
		return FieldSettings{MinAnnotators: DefaultMinAnnotators, Threshold: DefaultThreshold}
	}
	if s.MinAnnotators <= 0 {
		s.MinAnnotators = DefaultMinAnnotators
	}
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}
	return s
}

// FieldIndex returns the position of fieldKey in FieldsToAnnotate.
func (c Config) FieldIndex(fieldKey string) (int, bool) {
	for i, f := range c.FieldsToAnnotate {
		if f == fieldKey {
			return i, true
		}
	}
	return -1, false
}

func (c Config) SupportsDataset(datasetID string) bool {
	for _, d := range c.SupportedDatasets {
		if d == datasetID {
			return true
		}
	}
	return false
}

func (c Config) IsClosed(fieldKey string) bool {
	for _, f := range c.ClosedFields {
		if f == fieldKey {
			return true
		}
	}
	return false
}

// Marker is a supporting marker gene. On disk it is either a bare gene
// string or an object with a gene and optional notes.
type Marker struct {
	Gene      string `json:"gene"`
	Direction string `json:"direction,omitempty"`
	Note      string `json:"note,omitempty"`
}

func (m *Marker) UnmarshalJSON(b []byte) error {
	var gene string
	if err := json.Unmarshal(b, &gene); err == nil {
		*m = Marker{Gene: gene}
		return nil
	}
	type plain Marker
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = Marker(p)
	return nil
}

type Suggestion struct {
	ID                string     `json:"id"`
	ItemID            string     `json:"itemId"`
	FieldKey          string     `json:"fieldKey"`
	CategoryLabel     string     `json:"categoryLabel"`
	Evidence          *string    `json:"evidence,omitempty"`
	OntologyID        *string    `json:"ontologyId,omitempty"`
	Markers           []Marker   `json:"markers,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	EditedAt          *time.Time `json:"editedAt,omitempty"`
	// PreviousBucketKey is set when an edit moved the suggestion to another
	// bucket. While it is set, votes from other users on the suggestion are
	// retracted, including votes cast after the edit since votes carry no
	// time. Editors clear it once the move has been acknowledged to let
	// support count again.
	PreviousBucketKey string     `json:"previousBucketKey,omitempty"`
}

type Comment struct {
	ID             string     `json:"id"`
	SuggestionID   string     `json:"suggestionId"`
	AuthorUsername string     `json:"authorUsername"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"createdAt"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

// DatasetAccess is the per-dataset bookkeeping the editor keeps in a user
// file. It never affects tallies.
type DatasetAccess struct {
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
	FieldsToAnnotate []string  `json:"fieldsToAnnotate"`
}

type UserFile struct {
	Version            int                      `json:"version"`
	GithubUserID       int64                    `json:"githubUserId"`
	Username           string                   `json:"username"`
	Login              string                   `json:"login,omitempty"`
	DisplayName        string                   `json:"displayName,omitempty"`
	Email              string                   `json:"email,omitempty"`
	LinkedIn           string                   `json:"linkedin,omitempty"`
	ORCID              string                   `json:"orcid,omitempty"`
	UpdatedAt          time.Time                `json:"updatedAt"`
	Suggestions        []Suggestion             `json:"suggestions"`
	Votes              map[string]VoteDirection `json:"votes"`
	Comments           []Comment                `json:"comments,omitempty"`
	DeletedSuggestions []string                 `json:"deletedSuggestions,omitempty"`
	Datasets           map[string]DatasetAccess `json:"datasets,omitempty"`
}

// Identity returns the file identity, ghid_<githubUserId>.
func (u UserFile) Identity() string {
	return IdentityName(u.GithubUserID)
}

func IdentityName(githubUserID int64) string {
	return "ghid_" + strconv.FormatInt(githubUserID, 10)
}

type MergeRecord struct {
	BucketKey        string     `json:"bucketKey"`
	FromSuggestionID string     `json:"fromSuggestionId"`
	IntoSuggestionID string     `json:"intoSuggestionId"`
	By               string     `json:"by,omitempty"`
	At               time.Time  `json:"at"`
	Note             string     `json:"note,omitempty"`
	EditedAt         *time.Time `json:"editedAt,omitempty"`
}

type MergeFile struct {
	Version int           `json:"version"`
	Merges  []MergeRecord `json:"merges"`
}

// Compilation inputs after integrity checks

// AttributedSuggestion is a suggestion together with its author and its
// encoded bucket.
type AttributedSuggestion struct {
	Suggestion
	Author    int64  `json:"author"`
	BucketKey string `json:"bucketKey"`
}

type Vote struct {
	SuggestionID string        `json:"suggestionId"`
	Voter        int64         `json:"voter"`
	Direction    VoteDirection `json:"direction"`
}

// Consensus output types

type Candidate struct {
	Rank          int       `json:"rank"` // 1-indexed
	CanonicalID   string    `json:"canonicalId"`
	BucketKey     string    `json:"bucketKey"`
	CategoryLabel string    `json:"categoryLabel"`
	Supporters    int       `json:"supporters"`
	SupporterIDs  []int64   `json:"supporterIds"`
	Opposers      int       `json:"opposers"`
	MergedIDs     []string  `json:"mergedIds"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ConsensusEntry struct {
	ItemID             string      `json:"itemId"`
	FieldKey           string      `json:"fieldKey"`
	Candidates         []Candidate `json:"candidates"`
	DistinctAnnotators int         `json:"distinctAnnotators"`
	MinAnnotators      int         `json:"minAnnotators"`
	Threshold          float64     `json:"threshold"`
	TopFraction        float64     `json:"topFraction"`
	ReachedConsensus   bool        `json:"reachedConsensus"`
	WinningLabel       string      `json:"winningLabel,omitempty"`
}

type CompileStats struct {
	UserFiles      int `json:"userFiles"`
	UserFilesUsed  int `json:"userFilesUsed"`
	Suggestions    int `json:"suggestions"`
	Votes          int `json:"votes"`
	Merges         int `json:"merges"`
	MergesApplied  int `json:"mergesApplied"`
	Entries        int `json:"entries"`
	ConsensusCount int `json:"consensusCount"`
	ErrorCount     int `json:"errorCount"`
	WarningCount   int `json:"warningCount"`
}

type CompileReport struct {
	Entries     []ConsensusEntry `json:"entries"`
	Diagnostics []Diagnostic     `json:"diagnostics"`
	InputsHash  string           `json:"inputsHash"` // SHA-256 over sorted (fileId, contentHash)
	Stats       CompileStats     `json:"stats"`
}

// Request types

// Document is one raw artifact as sent over the API.
type Document struct {
	FileID  string          `json:"fileId"`
	Content json.RawMessage `json:"content"`
}

type ValidateRequest struct {
	Kind    FileKind        `json:"kind"`
	FileID  string          `json:"fileId"`
	Content json.RawMessage `json:"content"`
}

type CompileRequest struct {
	Config   json.RawMessage      `json:"config"`
	Users    []Document           `json:"users"`
	Merges   json.RawMessage      `json:"merges,omitempty"`
	ClosedAt map[string]time.Time `json:"closedAt,omitempty"`
}

type ChangesRequest struct {
	UserID      int64             `json:"userId"`
	KnownHashes map[string]string `json:"knownHashes"`
}

type CompileScopeRequest struct {
	ClosedAt map[string]time.Time `json:"closedAt,omitempty"`
}

// Response types

type ValidateResponse struct {
	Valid       bool         `json:"valid"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type FileEntry struct {
	FileID string `json:"fileId"`
	Hash   string `json:"hash"`
}

type PutFileResponse struct {
	FileID string `json:"fileId"`
	Hash   string `json:"hash"`
	Size   int    `json:"size"`
}

// FileChange carries content as text since stored files may be malformed
type FileChange struct {
	FileID  string `json:"fileId"`
	NewHash string `json:"newHash,omitempty"`
	Removed bool   `json:"removed,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChangesResponse struct {
	Changes []FileChange `json:"changes"`
}

type Snapshot struct {
	ID         string        `json:"id"`
	ScopeKey   string        `json:"scopeKey"`
	InputsHash string        `json:"inputsHash"`
	ComputedAt time.Time     `json:"computedAt"`
	Reused     bool          `json:"reused"`
	Report     CompileReport `json:"report"`
}

// Error response

type ErrorResponse struct {
	Error       string       `json:"error"`
	Message     string       `json:"message,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}
