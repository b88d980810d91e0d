package resolver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/commit"
	"github.com/dmmcore/dmm/internal/conflict/resolver"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/indexer"
	"github.com/dmmcore/dmm/internal/proposal"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/sqlitestore"
)

const memAContent = `---
id: mem_a
title: Prefer Explicit Errors
tags: [go, errors]
scope: project
priority: 0.8
confidence: stable
status: active
created: 2026-07-30T00:00:00Z
---

Return errors explicitly instead of panicking across package boundaries.
`

const memBContent = `---
id: mem_b
title: Errors Should Panic
tags: [go, errors]
scope: global
priority: 0.6
confidence: stable
status: active
created: 2026-07-30T00:00:00Z
---

Panic on any unexpected error so the caller notices immediately.
`

func newTestResolver(t *testing.T) (*resolver.Resolver, store.Store, string) {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "dmm.db")
	s, err := sqlitestore.Open(context.Background(), dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	embedder := embed.NewHashEmbedder()
	idx := indexer.New(root, s, embedder)
	q := proposal.New(s)
	ce := commit.New(root, s, idx, q)
	r := resolver.New(s, q, ce)
	return r, s, root
}

func seedMemory(t *testing.T, ctx context.Context, idx *indexer.Indexer, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	require.NoError(t, idx.IncrementalReindexPath(ctx, relPath))
}

func seedConflict(t *testing.T, ctx context.Context, s store.Store, now time.Time) *dmmtypes.Conflict {
	t.Helper()
	c := &dmmtypes.Conflict{
		ConflictID: "conflict_test_1",
		DetectedAt: now,
		ScanID:     "scan_1",
		Memories: [2]dmmtypes.ConflictMemory{
			{MemoryID: "mem_a", Path: "project/a.md", Title: "Prefer Explicit Errors", Scope: dmmtypes.ScopeProject, Role: dmmtypes.RolePrimary},
			{MemoryID: "mem_b", Path: "global/b.md", Title: "Errors Should Panic", Scope: dmmtypes.ScopeGlobal, Role: dmmtypes.RoleSecondary},
		},
		ConflictType:    dmmtypes.ConflictContradictory,
		DetectionMethod: dmmtypes.MethodSemanticSimilarity,
		Confidence:      0.8,
		Status:          dmmtypes.ConflictUnresolved,
	}
	require.NoError(t, s.PutConflict(ctx, c))
	return c
}

func TestResolveDeprecateMarksTargetAndConflict(t *testing.T) {
	ctx := context.Background()
	r, s, root := newTestResolver(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	embedder := embed.NewHashEmbedder()
	idx := indexer.New(root, s, embedder)

	seedMemory(t, ctx, idx, root, "project/a.md", memAContent)
	seedMemory(t, ctx, idx, root, "global/b.md", memBContent)
	seedConflict(t, ctx, s, now)

	res, err := r.Resolve(ctx, &resolver.Request{
		ConflictID: "conflict_test_1", Action: resolver.ActionDeprecate,
		TargetMemoryID: "mem_b", Reason: "global guidance was wrong", ResolvedBy: "reviewer-1",
	}, now)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"mem_b"}, res.MemoriesDeprecated)

	_, err = s.GetMemory(ctx, "mem_b")
	assert.Error(t, err) // deprecation removes it from the active store index

	conflict, err := s.GetConflict(ctx, "conflict_test_1")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.ConflictResolved, conflict.Status)
	assert.Equal(t, string(resolver.ActionDeprecate), conflict.ResolutionAction)
}

func TestResolveDeprecateRequiresTargetMemoryID(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newTestResolver(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	seedConflict(t, ctx, s, now)

	res, err := r.Resolve(ctx, &resolver.Request{ConflictID: "conflict_test_1", Action: resolver.ActionDeprecate}, now)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	conflict, err := s.GetConflict(ctx, "conflict_test_1")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.ConflictUnresolved, conflict.Status)
}

func TestResolveDismissMarksDismissed(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newTestResolver(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	seedConflict(t, ctx, s, now)

	res, err := r.Resolve(ctx, &resolver.Request{
		ConflictID: "conflict_test_1", Action: resolver.ActionDismiss, DismissReason: "not actually contradictory",
	}, now)
	require.NoError(t, err)
	assert.True(t, res.Success)

	conflict, err := s.GetConflict(ctx, "conflict_test_1")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.ConflictDismissed, conflict.Status)
}

func TestResolveDeferReturnsToUnresolved(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newTestResolver(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	seedConflict(t, ctx, s, now)

	res, err := r.Resolve(ctx, &resolver.Request{ConflictID: "conflict_test_1", Action: resolver.ActionDefer, Reason: "need more context"}, now)
	require.NoError(t, err)
	assert.True(t, res.Success)

	conflict, err := s.GetConflict(ctx, "conflict_test_1")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.ConflictUnresolved, conflict.Status)
}

func TestResolveAlreadyResolvedFails(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newTestResolver(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	c := seedConflict(t, ctx, s, now)
	c.Status = dmmtypes.ConflictResolved
	c.ResolutionAction = "dismiss"
	require.NoError(t, s.PutConflict(ctx, c))

	res, err := r.Resolve(ctx, &resolver.Request{ConflictID: "conflict_test_1", Action: resolver.ActionDeprecate, TargetMemoryID: "mem_b"}, now)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "already resolved")
}

func TestResolveUnknownConflictReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	_, err := r.Resolve(ctx, &resolver.Request{ConflictID: "conflict_missing", Action: resolver.ActionDismiss}, now)
	require.Error(t, err)
}
