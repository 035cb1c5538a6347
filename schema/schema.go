// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schema

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/danielhkuo/quorum/bucket"
	"github.com/danielhkuo/quorum/models"
)

// Field length limits
const (
	MaxIDLen          = 128
	MaxFieldKeyLen    = 128
	MaxLabelLen       = 120
	MaxOntologyLen    = 64
	MaxEvidenceLen    = 2000
	MaxUsernameLen    = 64
	MaxDisplayNameLen = 120
	MaxCommentLen     = 500
	MaxNoteLen        = 500
	MaxMarkerGeneLen  = 64
)

// Collection caps keep pathological files from making validation expensive.
const (
	MaxDatasets      = 1000
	MaxFields        = 500
	MaxSuggestions   = 5000
	MaxMarkers       = 200
	MaxVotes         = 50000
	MaxComments      = 10000
	MaxDeleted       = 5000
	MaxMerges        = 10000
	MaxMinAnnotators = 50
)

// Validate checks one file against the structure expected for kind. It never
// fails: every finding, including unparseable JSON, is returned as a
// diagnostic. An empty result means the file is valid.
func Validate(kind models.FileKind, fileID string, raw []byte) []models.Diagnostic {
	var diags []models.Diagnostic
	switch kind {
	case models.KindConfig:
		_, diags = ParseConfig(raw)
	case models.KindUser:
		_, diags = ParseUserFile(fileID, raw)
	case models.KindMerges:
		_, diags = ParseMergeFile(raw)
	default:
		diags = []models.Diagnostic{{
			Severity: models.SeverityError,
			Kind:     models.KindStructural,
			Path:     fileID,
			Message:  fmt.Sprintf("unknown file kind %q (expected config, user or merges)", kind),
		}}
	}
	return diags
}

// ParseConfig validates and decodes the repository config. The returned
// config must not be used when the diagnostics contain an error.
func ParseConfig(raw []byte) (models.Config, []models.Diagnostic) {
	const root = "config"
	c := newChecker(models.KindConfigErr)
	doc, ok := c.document(raw, root, "config")
	if !ok {
		return models.Config{}, c.diags
	}

	cfg := models.Config{Version: c.version(doc, root)}
	cfg.SupportedDatasets = c.stringSet(doc, root, "supportedDatasets", true, true, MaxDatasets)
	cfg.FieldsToAnnotate = c.stringSet(doc, root, "fieldsToAnnotate", true, true, MaxFields)
	for i, f := range cfg.FieldsToAnnotate {
		c.maxLen(index(join(root, "fieldsToAnnotate"), i), "fieldsToAnnotate", f, MaxFieldKeyLen)
	}

	fields := make(map[string]bool, len(cfg.FieldsToAnnotate))
	for _, f := range cfg.FieldsToAnnotate {
		fields[f] = true
	}

	cfg.ClosedFields = c.stringSet(doc, root, "closedFields", false, false, MaxFields)
	for _, f := range cfg.ClosedFields {
		if len(fields) > 0 && !fields[f] {
			c.errorf(keyed(join(root, "closedFields"), f), "closed field %q must be in fieldsToAnnotate", f)
		}
	}

	settings, ok := c.object(doc, root, "annotatableSettings", false)
	if ok {
		cfg.AnnotatableSettings = make(map[string]models.FieldSettings, len(settings))
		for _, fk := range sortedKeys(settings) {
			p := keyed(join(root, "annotatableSettings"), fk)
			if strings.TrimSpace(fk) == "" {
				c.errorf(join(root, "annotatableSettings"), "annotatableSettings key must be a non-empty string")
				continue
			}
			if len(fields) > 0 && !fields[fk] {
				c.errorf(p, "annotatableSettings[%q] must be in fieldsToAnnotate", fk)
			}
			obj, isObj := settings[fk].(map[string]any)
			if !isObj {
				c.errorf(p, "annotatableSettings[%q] must be an object", fk)
				continue
			}
			cfg.AnnotatableSettings[fk] = c.fieldSettings(obj, p)
		}
	}
	return cfg, c.diags
}

func (c *checker) fieldSettings(obj map[string]any, p string) models.FieldSettings {
	fs := models.FieldSettings{
		MinAnnotators: models.DefaultMinAnnotators,
		Threshold:     models.DefaultThreshold,
	}
	if v, present := obj["minAnnotators"]; present && v != nil {
		if n, ok := c.reqInt(obj, p, "minAnnotators"); ok {
			if n < 1 || n > MaxMinAnnotators {
				c.errorf(join(p, "minAnnotators"), "minAnnotators must be 1-%d", MaxMinAnnotators)
			} else {
				fs.MinAnnotators = int(n)
			}
		}
	}
	if v, present := obj["threshold"]; present && v != nil {
		if f, ok := c.reqNumber(obj, p, "threshold"); ok {
			if f <= 0 || f > 1 {
				c.errorf(join(p, "threshold"), "threshold must be in (0, 1]")
			} else {
				fs.Threshold = f
			}
		}
	}
	return fs
}

// IdentityFromFileID returns the file identity encoded in a user file id,
// e.g. "annotations/users/ghid_42.json" -> "ghid_42".
func IdentityFromFileID(fileID string) string {
	if fileID == "" {
		return ""
	}
	return strings.TrimSuffix(path.Base(fileID), ".json")
}

// UserPath is the diagnostic path prefix for a user file.
func UserPath(identity string) string {
	if identity == "" {
		identity = "?"
	}
	return keyed("users", identity)
}

// ParseUserFile validates and decodes one user file. fileID may be empty
// when the caller has no file name; otherwise its identity must match the
// contained githubUserId.
func ParseUserFile(fileID string, raw []byte) (models.UserFile, []models.Diagnostic) {
	c := newChecker(models.KindStructural)
	identity := IdentityFromFileID(fileID)
	root := UserPath(identity)
	doc, ok := c.document(raw, root, "user file")
	if !ok {
		return models.UserFile{}, c.diags
	}
	if identity == "" {
		if n, isNum := doc["githubUserId"].(json.Number); isNum {
			if id, err := n.Int64(); err == nil {
				root = UserPath(models.IdentityName(id))
			}
		}
	}

	u := models.UserFile{Version: c.version(doc, root)}

	id, ok := c.reqInt(doc, root, "githubUserId")
	if ok && id <= 0 {
		c.errorf(join(root, "githubUserId"), "githubUserId must be a positive integer")
		ok = false
	}
	u.Username = strings.TrimSpace(c.reqString(doc, root, "username", MaxUsernameLen))
	if ok {
		u.GithubUserID = id
		expected := models.IdentityName(id)
		if u.Username != "" && u.Username != expected {
			c.errorf(join(root, "username"), "username must match githubUserId (expected %q)", expected)
		}
		if identity != "" && identity != expected {
			c.errorf(root, "file identity %q does not match githubUserId (expected %q)", identity, expected)
		}
	}
	u.UpdatedAt = c.reqTime(doc, root, "updatedAt")

	c.profile(doc, root, &u)
	u.Suggestions = c.suggestions(doc, root)
	u.Votes = c.votes(doc, root)
	u.Comments = c.comments(doc, root)
	u.DeletedSuggestions = c.stringSet(doc, root, "deletedSuggestions", false, false, MaxDeleted)
	u.Datasets = c.datasets(doc, root)

	return u, c.diags
}

func (c *checker) datasets(doc map[string]any, root string) map[string]models.DatasetAccess {
	obj, ok := c.object(doc, root, "datasets", false)
	if !ok {
		return nil
	}
	p := join(root, "datasets")
	if len(obj) > MaxDatasets {
		c.errorf(p, "datasets must have at most %d entries", MaxDatasets)
		return nil
	}
	out := make(map[string]models.DatasetAccess, len(obj))
	for _, id := range sortedKeys(obj) {
		if strings.TrimSpace(id) == "" {
			c.errorf(p, "datasets key must be a non-empty string")
			continue
		}
		dp := keyed(p, id)
		meta, isObj := obj[id].(map[string]any)
		if !isObj {
			c.errorf(dp, "datasets[%s] must be an object", id)
			continue
		}
		out[id] = models.DatasetAccess{
			LastAccessedAt:   c.reqTime(meta, dp, "lastAccessedAt"),
			FieldsToAnnotate: c.stringSet(meta, dp, "fieldsToAnnotate", true, false, MaxFields),
		}
	}
	return out
}

func (c *checker) profile(doc map[string]any, root string, u *models.UserFile) {
	u.Login, _ = c.optString(doc, root, "login", MaxUsernameLen)
	u.DisplayName, _ = c.optString(doc, root, "displayName", MaxDisplayNameLen)
	u.ORCID, _ = c.optString(doc, root, "orcid", 0)

	if v, present := doc["email"]; present {
		s, isStr := v.(string)
		s = strings.TrimSpace(s)
		if !isStr || (s != "" && !plausibleEmail(s)) {
			c.errorf(join(root, "email"), "email must be a valid email address if present")
		} else {
			u.Email = s
		}
	}

	if li, ok := c.optString(doc, root, "linkedin", 0); ok && li != "" {
		if !isLinkedInHandle(li) {
			c.errorf(join(root, "linkedin"), "linkedin must be a lowercase handle (a-z0-9-) if present")
		}
		if n := len(li); n < 3 || n > 120 {
			c.errorf(join(root, "linkedin"), "linkedin must be 3-120 chars if present")
		}
		u.LinkedIn = li
	}
}

func plausibleEmail(s string) bool {
	if strings.Contains(s, " ") {
		return false
	}
	at := strings.Index(s, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(s[at+1:], ".")
}

func isLinkedInHandle(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}

func (c *checker) suggestions(doc map[string]any, root string) []models.Suggestion {
	arr, ok := c.array(doc, root, "suggestions", true, MaxSuggestions)
	if !ok {
		return nil
	}
	out := make([]models.Suggestion, 0, len(arr))
	seen := make(map[string]int, len(arr))
	for i, raw := range arr {
		p := index(join(root, "suggestions"), i)
		obj, isObj := raw.(map[string]any)
		if !isObj {
			c.errorf(p, "suggestions[%d] must be an object", i)
			continue
		}

		s := models.Suggestion{
			ID:            c.reqString(obj, p, "id", MaxIDLen),
			ItemID:        c.reqString(obj, p, "itemId", MaxIDLen),
			FieldKey:      c.reqString(obj, p, "fieldKey", MaxFieldKeyLen),
			CategoryLabel: c.reqString(obj, p, "categoryLabel", MaxLabelLen),
		}
		if ev, ok := c.optString(obj, p, "evidence", MaxEvidenceLen); ok && ev != "" {
			s.Evidence = &ev
		}
		if ont, ok := c.optString(obj, p, "ontologyId", MaxOntologyLen); ok && ont != "" {
			s.OntologyID = &ont
		}
		s.Markers = c.markers(obj, p)
		s.CreatedAt = c.reqTime(obj, p, "createdAt")
		s.EditedAt = c.optTime(obj, p, "editedAt", s.CreatedAt, "createdAt")

		if prev, ok := c.optString(obj, p, "previousBucketKey", 0); ok && prev != "" {
			if _, _, err := bucket.Decode(prev); err != nil {
				c.errorf(join(p, "previousBucketKey"), "previousBucketKey is not a valid bucket key (%v)", err)
			}
			if s.EditedAt == nil {
				c.errorf(join(p, "previousBucketKey"), "previousBucketKey requires editedAt")
			}
			s.PreviousBucketKey = prev
		}

		if s.ID != "" {
			if j, dup := seen[s.ID]; dup {
				c.errorf(join(p, "id"), "suggestion id %q duplicates suggestions[%d]", s.ID, j)
			} else {
				seen[s.ID] = i
			}
		}
		out = append(out, s)
	}
	return out
}

func (c *checker) markers(obj map[string]any, p string) []models.Marker {
	arr, ok := c.array(obj, p, "markers", false, MaxMarkers)
	if !ok {
		return nil
	}
	out := make([]models.Marker, 0, len(arr))
	for j, raw := range arr {
		mp := index(join(p, "markers"), j)
		switch m := raw.(type) {
		case string:
			gene := strings.TrimSpace(m)
			c.maxLen(mp, fmt.Sprintf("markers[%d]", j), gene, MaxMarkerGeneLen)
			out = append(out, models.Marker{Gene: gene})
		case map[string]any:
			gene := c.reqString(m, mp, "gene", MaxMarkerGeneLen)
			dir, _ := c.optString(m, mp, "direction", 16)
			note, _ := c.optString(m, mp, "note", MaxNoteLen)
			out = append(out, models.Marker{Gene: gene, Direction: dir, Note: note})
		default:
			c.errorf(mp, "markers[%d] must be string or object", j)
		}
	}
	return out
}

func (c *checker) votes(doc map[string]any, root string) map[string]models.VoteDirection {
	obj, ok := c.object(doc, root, "votes", true)
	if !ok {
		return nil
	}
	p := join(root, "votes")
	if len(obj) > MaxVotes {
		c.errorf(p, "votes must have at most %d entries", MaxVotes)
		return nil
	}
	out := make(map[string]models.VoteDirection, len(obj))
	for _, sid := range sortedKeys(obj) {
		if strings.TrimSpace(sid) == "" {
			c.errorf(p, "votes key must be a non-empty string")
			continue
		}
		dir, _ := obj[sid].(string)
		switch models.VoteDirection(dir) {
		case models.VoteUp, models.VoteDown:
			out[sid] = models.VoteDirection(dir)
		default:
			c.errorf(keyed(p, sid), "votes[%s] must be 'up' or 'down'", sid)
		}
	}
	return out
}

func (c *checker) comments(doc map[string]any, root string) []models.Comment {
	arr, ok := c.array(doc, root, "comments", false, MaxComments)
	if !ok {
		return nil
	}
	out := make([]models.Comment, 0, len(arr))
	for i, raw := range arr {
		p := index(join(root, "comments"), i)
		obj, isObj := raw.(map[string]any)
		if !isObj {
			c.errorf(p, "comments[%d] must be an object", i)
			continue
		}
		cm := models.Comment{
			ID:             c.reqString(obj, p, "id", MaxIDLen),
			SuggestionID:   c.reqString(obj, p, "suggestionId", MaxIDLen),
			AuthorUsername: c.reqString(obj, p, "authorUsername", MaxUsernameLen),
			Text:           c.reqString(obj, p, "text", MaxCommentLen),
			CreatedAt:      c.reqTime(obj, p, "createdAt"),
		}
		cm.EditedAt = c.optTime(obj, p, "editedAt", cm.CreatedAt, "createdAt")
		out = append(out, cm)
	}
	return out
}

// ParseMergeFile validates and decodes the author-curated merge file.
// Relationship rules (endpoints, buckets, cycles) are left to the integrity
// checker so one bad record does not reject the whole file.
func ParseMergeFile(raw []byte) (models.MergeFile, []models.Diagnostic) {
	const root = "merges"
	c := newChecker(models.KindStructural)
	doc, ok := c.document(raw, root, "merges file")
	if !ok {
		return models.MergeFile{}, c.diags
	}

	mf := models.MergeFile{Version: c.version(doc, root)}
	arr, ok := c.array(doc, "", "merges", false, MaxMerges)
	if !ok {
		return mf, c.diags
	}
	mf.Merges = make([]models.MergeRecord, 0, len(arr))
	for i, raw := range arr {
		p := index(root, i)
		obj, isObj := raw.(map[string]any)
		if !isObj {
			c.errorf(p, "merges[%d] must be an object", i)
			continue
		}
		m := models.MergeRecord{
			BucketKey:        c.reqString(obj, p, "bucketKey", 0),
			FromSuggestionID: c.reqString(obj, p, "fromSuggestionId", MaxIDLen),
			IntoSuggestionID: c.reqString(obj, p, "intoSuggestionId", MaxIDLen),
			At:               c.reqTime(obj, p, "at"),
		}
		m.By, _ = c.optString(obj, p, "by", MaxUsernameLen)
		m.Note, _ = c.optString(obj, p, "note", MaxNoteLen)
		m.EditedAt = c.optTime(obj, p, "editedAt", m.At, "at")
		mf.Merges = append(mf.Merges, m)
	}
	return mf, c.diags
}
