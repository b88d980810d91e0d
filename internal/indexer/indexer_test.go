package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/indexer"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/sqlitestore"
)

const sampleMemory = `---
id: mem_20260730_010
title: Prefer Explicit Error Returns
tags: [go, errors]
scope: project
priority: 0.8
confidence: stable
status: active
created: 2026-07-30T00:00:00Z
---

Return errors explicitly instead of panicking across package boundaries in
library code that other packages depend on for control flow.
`

func newTestIndexer(t *testing.T) (*indexer.Indexer, string, store.Store) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "project"), 0o755))

	dbPath := filepath.Join(t.TempDir(), "dmm.db")
	s, err := sqlitestore.Open(context.Background(), dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	idx := indexer.New(root, s, embed.NewHashEmbedder())
	return idx, root, s
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestFullReindexIndexesNewFiles(t *testing.T) {
	ctx := context.Background()
	idx, root, s := newTestIndexer(t)
	writeFile(t, root, "project/errors.md", sampleMemory)

	report, err := idx.FullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reindexed)
	assert.Equal(t, 0, report.SkippedUnchanged)
	assert.Empty(t, report.Errors)

	got, err := s.GetMemory(ctx, "mem_20260730_010")
	require.NoError(t, err)
	assert.Equal(t, "Prefer Explicit Error Returns", got.Title)
}

func TestFullReindexSkipsUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	idx, root, _ := newTestIndexer(t)
	writeFile(t, root, "project/errors.md", sampleMemory)

	_, err := idx.FullReindex(ctx)
	require.NoError(t, err)

	report, err := idx.FullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reindexed)
	assert.Equal(t, 1, report.SkippedUnchanged)
}

func TestFullReindexReembedsChangedFiles(t *testing.T) {
	ctx := context.Background()
	idx, root, s := newTestIndexer(t)
	writeFile(t, root, "project/errors.md", sampleMemory)
	_, err := idx.FullReindex(ctx)
	require.NoError(t, err)

	updated := sampleMemory + "\nAlways wrap errors with context using fmt.Errorf and %w.\n"
	writeFile(t, root, "project/errors.md", updated)

	report, err := idx.FullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reindexed)
	assert.Equal(t, 0, report.SkippedUnchanged)

	got, err := s.GetMemory(ctx, "mem_20260730_010")
	require.NoError(t, err)
	assert.Contains(t, got.Body, "Always wrap errors")
}

func TestFullReindexPrunesDeletedFiles(t *testing.T) {
	ctx := context.Background()
	idx, root, s := newTestIndexer(t)
	writeFile(t, root, "project/errors.md", sampleMemory)
	_, err := idx.FullReindex(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "project/errors.md")))

	_, err = idx.FullReindex(ctx)
	require.NoError(t, err)

	_, err = s.GetMemory(ctx, "mem_20260730_010")
	assert.Error(t, err)
}

func TestFullReindexSkipsDeprecatedDirectory(t *testing.T) {
	ctx := context.Background()
	idx, root, s := newTestIndexer(t)
	writeFile(t, root, "deprecated/old.md", sampleMemory)

	report, err := idx.FullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Reindexed)

	_, err = s.GetMemory(ctx, "mem_20260730_010")
	assert.Error(t, err)
}

func TestFullReindexRecordsParseErrorsWithoutAbortingPass(t *testing.T) {
	ctx := context.Background()
	idx, root, s := newTestIndexer(t)
	writeFile(t, root, "project/broken.md", "---\ntitle: no id here\n---\n\nbody\n")
	writeFile(t, root, "project/errors.md", sampleMemory)

	report, err := idx.FullReindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reindexed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "project/broken.md", report.Errors[0].Path)

	_, err = s.GetMemory(ctx, "mem_20260730_010")
	assert.NoError(t, err)
}

func TestIncrementalReindexPathDeletesMissingFile(t *testing.T) {
	ctx := context.Background()
	idx, root, s := newTestIndexer(t)
	writeFile(t, root, "project/errors.md", sampleMemory)
	require.NoError(t, idx.IncrementalReindexPath(ctx, "project/errors.md"))

	_, err := s.GetMemory(ctx, "mem_20260730_010")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "project/errors.md")))
	require.NoError(t, idx.IncrementalReindexPath(ctx, "project/errors.md"))

	_, err = s.GetMemory(ctx, "mem_20260730_010")
	assert.Error(t, err)
}

func TestCheckVersionsForcesReindexOnFirstRun(t *testing.T) {
	ctx := context.Background()
	_, _, s := newTestIndexer(t)

	needsReindex, err := indexer.CheckVersions(ctx, s, embed.NewHashEmbedder())
	require.NoError(t, err)
	assert.True(t, needsReindex)

	needsReindex, err = indexer.CheckVersions(ctx, s, embed.NewHashEmbedder())
	require.NoError(t, err)
	assert.False(t, needsReindex)
}
