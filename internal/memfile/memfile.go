// Package memfile implements the Parser described in spec.md §4.1: reading
// and writing memory files as a YAML frontmatter block followed by a
// markdown body. Frontmatter is decoded into and encoded from a fixed
// struct with yaml.v3, so Serialize writes keys in that struct's field
// order; the key order and comments of the file that was parsed are not
// kept.
package memfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/tokenizer"
)

const fence = "---"

// Token count bounds from spec.md §3.1 invariant I-M6 and §4.1: below
// softMinTokens is a warning, above hardCeilingTokens is a terminal schema
// error.
const (
	softMinTokens    = 300
	hardCeilingTokens = 1200
)

// frontmatter mirrors the YAML schema in spec.md §3.1. String-typed date
// fields are kept as RFC3339 strings at the unmarshal boundary so a missing
// or malformed value is a schema-validation error tied to a specific field,
// not a generic YAML decode failure.
type frontmatter struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	TokenCount int      `yaml:"token_count,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Scope      string   `yaml:"scope"`
	Priority   *float64 `yaml:"priority"`
	Confidence string   `yaml:"confidence"`
	Status     string   `yaml:"status"`
	Created    string   `yaml:"created,omitempty"`
	LastUsed   string   `yaml:"last_used,omitempty"`
	Expires    string   `yaml:"expires,omitempty"`
	Supersedes []string `yaml:"supersedes,omitempty"`
	Related    []string `yaml:"related,omitempty"`

	DeprecatedAt      string `yaml:"deprecated_at,omitempty"`
	DeprecationReason string `yaml:"deprecation_reason,omitempty"`
	PromotedAt        string `yaml:"promoted_at,omitempty"`
	PromotedFrom      string `yaml:"promoted_from,omitempty"`
}

// Result is everything Parse recovers from one memory file, plus any
// non-fatal warnings raised while filling in defaults (spec.md §4.1 edge
// cases: missing title, missing created timestamp).
type Result struct {
	Memory   *dmmtypes.Memory
	Warnings []string
}

// Parse reads one memory markdown file: a YAML frontmatter block delimited
// by --- fences, followed by a markdown body. relPath is the file's
// location relative to the memory root and is used for Memory.Path and the
// title fallback.
func Parse(relPath string, data []byte) (*Result, error) {
	fmBytes, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, &dmmerrors.ParseError{Path: relPath, ErrorType: "content", Err: err}
	}

	var raw frontmatter
	if len(bytes.TrimSpace(fmBytes)) > 0 {
		if err := yaml.Unmarshal(fmBytes, &raw); err != nil {
			return nil, &dmmerrors.ParseError{Path: relPath, ErrorType: "yaml", Err: err}
		}
	}

	if raw.ID == "" {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "id", Reason: "missing required field"}
	}
	if len(raw.Tags) == 0 {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "tags", Reason: "missing required field"}
	}
	if raw.Scope == "" {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "scope", Reason: "missing required field"}
	}
	if raw.Confidence == "" {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "confidence", Reason: "missing required field"}
	}
	if raw.Status == "" {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "status", Reason: "missing required field"}
	}
	if raw.Priority == nil {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "priority", Reason: "missing required field"}
	}

	var warnings []string

	title := raw.Title
	if title == "" {
		title = titleFromFilename(relPath)
		warnings = append(warnings, fmt.Sprintf("%s: missing title, derived %q from filename", relPath, title))
	}

	scope := dmmtypes.Scope(raw.Scope)
	if !scope.Valid() {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "scope", Reason: fmt.Sprintf("unrecognized scope %q", raw.Scope)}
	}

	confidence := dmmtypes.Confidence(raw.Confidence)
	if !confidence.Valid() {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "confidence", Reason: fmt.Sprintf("unrecognized confidence %q", raw.Confidence)}
	}

	status := dmmtypes.Status(raw.Status)
	if !status.Valid() {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "status", Reason: fmt.Sprintf("unrecognized status %q", raw.Status)}
	}

	priority := *raw.Priority
	if priority < 0 || priority > 1 {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "priority", Reason: fmt.Sprintf("priority %v out of range [0,1]", priority)}
	}

	created, err := parseOptionalTime(raw.Created)
	if err != nil {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "created", Reason: err.Error()}
	}
	if created == nil {
		now := time.Now().UTC()
		created = &now
		warnings = append(warnings, fmt.Sprintf("%s: missing created timestamp, stamped now", relPath))
	}

	lastUsed, err := parseOptionalTime(raw.LastUsed)
	if err != nil {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "last_used", Reason: err.Error()}
	}

	expires, err := parseOptionalTime(raw.Expires)
	if err != nil {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "expires", Reason: err.Error()}
	}

	deprecatedAt, err := parseOptionalTime(raw.DeprecatedAt)
	if err != nil {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "deprecated_at", Reason: err.Error()}
	}
	promotedAt, err := parseOptionalTime(raw.PromotedAt)
	if err != nil {
		return nil, &dmmerrors.SchemaValidationError{Path: relPath, Field: "promoted_at", Reason: err.Error()}
	}

	bodyText := string(bytes.Trim(body, "\n"))

	mem := &dmmtypes.Memory{
		ID:                raw.ID,
		Path:              filepath.ToSlash(relPath),
		Title:             title,
		Body:              bodyText,
		TokenCount:        tokenizer.Count(bodyText),
		Tags:              raw.Tags,
		Scope:             scope,
		Priority:          priority,
		Confidence:        confidence,
		Status:            status,
		Created:           created,
		LastUsed:          lastUsed,
		Expires:           expires,
		Supersedes:        raw.Supersedes,
		Related:           raw.Related,
		FileHash:          hashContent(data),
		DeprecatedAt:      deprecatedAt,
		DeprecationReason: raw.DeprecationReason,
		PromotedAt:        promotedAt,
		PromotedFrom:      dmmtypes.Scope(raw.PromotedFrom),
	}

	if mem.TokenCount > hardCeilingTokens {
		return nil, &dmmerrors.SchemaValidationError{
			Path: relPath, Field: "token_count",
			Reason: fmt.Sprintf("token_count %d exceeds hard ceiling %d", mem.TokenCount, hardCeilingTokens),
		}
	}
	if mem.TokenCount < softMinTokens {
		warnings = append(warnings, fmt.Sprintf("%s: token_count %d below soft floor %d", relPath, mem.TokenCount, softMinTokens))
	}
	if scope == dmmtypes.ScopeEphemeral && mem.Expires == nil {
		warnings = append(warnings, fmt.Sprintf("%s: scope ephemeral with no expires", relPath))
	}
	if confidence == dmmtypes.ConfidenceDeprecated && status != dmmtypes.StatusDeprecated {
		warnings = append(warnings, fmt.Sprintf("%s: confidence deprecated but status is %q", relPath, status))
	}

	return &Result{Memory: mem, Warnings: warnings}, nil
}

// Serialize is Parse's inverse: it renders a Memory back into frontmatter
// plus body bytes, fixing token_count to the current body's token count so
// a round trip through Parse/Serialize never leaves a stale count on disk.
func Serialize(mem *dmmtypes.Memory) ([]byte, error) {
	raw := frontmatter{
		ID:         mem.ID,
		Title:      mem.Title,
		TokenCount: tokenizer.Count(mem.Body),
		Tags:       mem.Tags,
		Scope:      string(mem.Scope),
		Priority:   &mem.Priority,
		Confidence: string(mem.Confidence),
		Status:     string(mem.Status),
		Supersedes: mem.Supersedes,
		Related:    mem.Related,
	}
	if mem.Created != nil {
		raw.Created = mem.Created.UTC().Format(time.RFC3339)
	}
	if mem.LastUsed != nil {
		raw.LastUsed = mem.LastUsed.UTC().Format(time.RFC3339)
	}
	if mem.Expires != nil {
		raw.Expires = mem.Expires.UTC().Format(time.RFC3339)
	}
	if mem.DeprecatedAt != nil {
		raw.DeprecatedAt = mem.DeprecatedAt.UTC().Format(time.RFC3339)
	}
	if mem.DeprecationReason != "" {
		raw.DeprecationReason = mem.DeprecationReason
	}
	if mem.PromotedAt != nil {
		raw.PromotedAt = mem.PromotedAt.UTC().Format(time.RFC3339)
	}
	if mem.PromotedFrom != "" {
		raw.PromotedFrom = string(mem.PromotedFrom)
	}

	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.WriteByte('\n')

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&raw); err != nil {
		return nil, fmt.Errorf("memfile: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("memfile: close encoder: %w", err)
	}

	buf.WriteString(fence)
	buf.WriteString("\n\n")
	buf.WriteString(strings.TrimRight(mem.Body, "\n"))
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// splitFrontmatter separates a file into its raw frontmatter bytes and
// body bytes. A file with no opening fence is treated as a bodyless
// frontmatter error: every memory file must declare at least an id.
func splitFrontmatter(data []byte) (fm []byte, body []byte, err error) {
	text := string(data)
	if !strings.HasPrefix(strings.TrimLeft(text, "﻿"), fence) {
		return nil, nil, fmt.Errorf("file does not begin with a %q frontmatter fence", fence)
	}
	text = strings.TrimPrefix(strings.TrimLeft(text, "﻿"), fence)
	text = strings.TrimPrefix(text, "\n")

	idx := strings.Index(text, "\n"+fence)
	if idx < 0 {
		return nil, nil, fmt.Errorf("missing closing %q frontmatter fence", fence)
	}

	fmText := text[:idx]
	rest := text[idx+len("\n"+fence):]
	rest = strings.TrimPrefix(rest, "\n")

	return []byte(fmText), []byte(rest), nil
}

// titleFromFilename derives a human-readable title from a memory file's
// base name, matching the fallback the original Python indexer applies
// (underscores/hyphens become spaces, each word capitalized).
func titleFromFilename(relPath string) string {
	base := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	words := strings.Fields(base)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if unix, numErr := strconv.ParseInt(s, 10, 64); numErr == nil {
			t = time.Unix(unix, 0).UTC()
		} else {
			return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t = t.UTC()
	return &t, nil
}

// hashContent returns the file_hash recorded on Memory, a hex-encoded
// SHA-256 digest of the full file bytes (frontmatter and body together),
// used by the Indexer to detect on-disk edits between scans.
func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBytes exposes hashContent to the Indexer so it can compare an
// on-disk file's hash against Memory.FileHash before re-parsing unchanged
// files (spec.md §4.4).
func HashBytes(data []byte) string {
	return hashContent(data)
}
