// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/danielhkuo/quorum/models"
)

// checker walks a generically decoded JSON document and collects
// diagnostics. Its accessors never fail; they report and return zero values.
type checker struct {
	kind  models.DiagnosticKind
	diags []models.Diagnostic
}

func newChecker(kind models.DiagnosticKind) *checker {
	return &checker{kind: kind}
}

func (c *checker) errorf(path, format string, args ...any) {
	c.diags = append(c.diags, models.Diagnostic{
		Severity: models.SeverityError,
		Kind:     c.kind,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// decode parses raw JSON keeping numbers as json.Number so integers can be
// told apart from fractions.
func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

// document decodes raw and requires a JSON object at the top level.
func (c *checker) document(raw []byte, path, what string) (map[string]any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		c.errorf(path, "%s is empty", what)
		return nil, false
	}
	v, err := decode(raw)
	if err != nil {
		c.errorf(path, "failed to parse (%v)", err)
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		c.errorf(path, "%s must be an object", what)
		return nil, false
	}
	return obj, true
}

func (c *checker) version(obj map[string]any, path string) int {
	v, ok := obj["version"]
	if !ok {
		c.errorf(join(path, "version"), "version must be %d", models.SchemaVersion)
		return 0
	}
	n, isNum := v.(json.Number)
	if !isNum || n.String() != fmt.Sprint(models.SchemaVersion) {
		c.errorf(join(path, "version"), "version must be %d", models.SchemaVersion)
		return 0
	}
	return models.SchemaVersion
}

// reqString returns a required, non-blank string, enforcing maxLen runes
// when maxLen > 0. The value is returned as written; ids and labels take
// part in bucket keys and must match byte for byte.
func (c *checker) reqString(obj map[string]any, path, key string, maxLen int) string {
	p := join(path, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.errorf(p, "%s is required", key)
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		c.errorf(p, "%s must be a string", key)
		return ""
	}
	if strings.TrimSpace(s) == "" {
		c.errorf(p, "%s is required", key)
		return ""
	}
	c.maxLen(p, key, s, maxLen)
	return s
}

// optString accepts a missing key, null, or a string.
func (c *checker) optString(obj map[string]any, path, key string, maxLen int) (string, bool) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok || v == nil {
		return "", false
	}
	s, isStr := v.(string)
	if !isStr {
		c.errorf(p, "%s must be string|null", key)
		return "", false
	}
	c.maxLen(p, key, s, maxLen)
	return s, true
}

func (c *checker) maxLen(path, key, s string, maxLen int) {
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		c.errorf(path, "%s must be <= %d chars", key, maxLen)
	}
}

func (c *checker) reqTime(obj map[string]any, path, key string) time.Time {
	s := c.reqString(obj, path, key, 0)
	if s == "" {
		return time.Time{}
	}
	t, err := parseTime(s)
	if err != nil {
		c.errorf(join(path, key), "%s must be an RFC 3339 timestamp", key)
		return time.Time{}
	}
	return t
}

// optTime parses an optional timestamp and checks it is not before notBefore.
func (c *checker) optTime(obj map[string]any, path, key string, notBefore time.Time, notBeforeKey string) *time.Time {
	s, ok := c.optString(obj, path, key, 0)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := parseTime(s)
	if err != nil {
		c.errorf(join(path, key), "%s must be an RFC 3339 timestamp", key)
		return nil
	}
	if !notBefore.IsZero() && t.Before(notBefore) {
		c.errorf(join(path, key), "%s must not be before %s", key, notBeforeKey)
	}
	return &t
}

// reqInt returns a required integer; fractional or non-numeric values are
// reported.
func (c *checker) reqInt(obj map[string]any, path, key string) (int64, bool) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.errorf(p, "%s is required", key)
		return 0, false
	}
	n, isNum := v.(json.Number)
	if !isNum {
		c.errorf(p, "%s must be an integer", key)
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		c.errorf(p, "%s must be an integer", key)
		return 0, false
	}
	return i, true
}

func (c *checker) reqNumber(obj map[string]any, path, key string) (float64, bool) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.errorf(p, "%s is required", key)
		return 0, false
	}
	n, isNum := v.(json.Number)
	if !isNum {
		c.errorf(p, "%s must be a number", key)
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		c.errorf(p, "%s must be a number", key)
		return 0, false
	}
	return f, true
}

// array returns obj[key] as a slice. Missing or null is reported only when
// required.
func (c *checker) array(obj map[string]any, path, key string, required bool, limit int) ([]any, bool) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			c.errorf(p, "%s must be an array", key)
		}
		return nil, false
	}
	arr, isArr := v.([]any)
	if !isArr {
		c.errorf(p, "%s must be an array", key)
		return nil, false
	}
	if limit > 0 && len(arr) > limit {
		c.errorf(p, "%s must have at most %d entries", key, limit)
		return arr[:limit], true
	}
	return arr, true
}

func (c *checker) object(obj map[string]any, path, key string, required bool) (map[string]any, bool) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			c.errorf(p, "%s must be an object", key)
		}
		return nil, false
	}
	m, isObj := v.(map[string]any)
	if !isObj {
		c.errorf(p, "%s must be an object", key)
		return nil, false
	}
	return m, true
}

// stringSet validates an array of non-blank, unique strings.
func (c *checker) stringSet(obj map[string]any, path, key string, required, nonEmpty bool, limit int) []string {
	arr, ok := c.array(obj, path, key, required, limit)
	if !ok {
		return nil
	}
	if nonEmpty && len(arr) == 0 {
		c.errorf(join(path, key), "%s must be a non-empty array", key)
		return nil
	}
	out := make([]string, 0, len(arr))
	seen := make(map[string]bool, len(arr))
	for i, raw := range arr {
		p := index(join(path, key), i)
		s, isStr := raw.(string)
		if !isStr || strings.TrimSpace(s) == "" {
			c.errorf(p, "%s[%d] must be a non-empty string", key, i)
			continue
		}
		if seen[s] {
			c.errorf(p, "%s[%d] is duplicated (%q)", key, i, s)
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func keyed(path, key string) string {
	return path + "[" + key + "]"
}
