package commit_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/commit"
	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/indexer"
	"github.com/dmmcore/dmm/internal/proposal"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/sqlitestore"
)

const sampleContent = `---
id: mem_commit_1
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

func newTestEngine(t *testing.T) (*commit.Engine, *proposal.Queue, store.Store, string) {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "dmm.db")
	s, err := sqlitestore.Open(context.Background(), dbPath, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	embedder := embed.NewHashEmbedder()
	idx := indexer.New(root, s, embedder)
	q := proposal.New(s)
	e := commit.New(root, s, idx, q)
	return e, q, s, root
}

func approve(t *testing.T, ctx context.Context, q *proposal.Queue, p *dmmtypes.WriteProposal, now time.Time) {
	t.Helper()
	_, err := q.Enqueue(ctx, p, now)
	require.NoError(t, err)
	_, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusInReview, "review", "", now)
	require.NoError(t, err)
	_, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusApproved, "approve", "", now)
	require.NoError(t, err)
}

func TestCommitCreateWritesFileAndIndexes(t *testing.T) {
	ctx := context.Background()
	e, q, s, root := newTestEngine(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_create", ProposedBy: "agent-1", Type: dmmtypes.ProposalCreate,
		TargetPath: "project/errors.md", Content: []byte(sampleContent), Reason: "new rule",
	}
	approve(t, ctx, q, p, now)

	res, err := e.Commit(ctx, "prop_create", now)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "project/errors.md", res.NewPath)

	data, err := os.ReadFile(filepath.Join(root, "project/errors.md"))
	require.NoError(t, err)
	assert.Equal(t, sampleContent, string(data))

	mem, err := s.GetMemory(ctx, "mem_commit_1")
	require.NoError(t, err)
	assert.Equal(t, "project/errors.md", mem.Path)

	committed, err := q.Get(ctx, "prop_create")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusCommitted, committed.Status)
}

func TestCommitCreateFailsWhenFileExists(t *testing.T) {
	ctx := context.Background()
	e, q, _, root := newTestEngine(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "project"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "project/errors.md"), []byte("existing"), 0o644))

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_create2", ProposedBy: "agent-1", Type: dmmtypes.ProposalCreate,
		TargetPath: "project/errors.md", Content: []byte(sampleContent), Reason: "new rule",
	}
	approve(t, ctx, q, p, now)

	res, err := e.Commit(ctx, "prop_create2", now)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.RollbackSuccess)

	reverted, err := q.Get(ctx, "prop_create2")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusPending, reverted.Status)
	assert.NotEmpty(t, reverted.CommitError)

	data, err := os.ReadFile(filepath.Join(root, "project/errors.md"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestCommitDeprecateMovesFileAndRemovesFromStore(t *testing.T) {
	ctx := context.Background()
	e, q, s, root := newTestEngine(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	embedder := embed.NewHashEmbedder()
	idx := indexer.New(root, s, embedder)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "project"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "project/errors.md"), []byte(sampleContent), 0o644))
	require.NoError(t, idx.IncrementalReindexPath(ctx, "project/errors.md"))

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_dep", ProposedBy: "agent-1", Type: dmmtypes.ProposalDeprecate,
		TargetPath: "project/errors.md", MemoryID: "mem_commit_1",
		DeprecationReason: "superseded by a newer convention",
	}
	approve(t, ctx, q, p, now)

	res, err := e.Commit(ctx, "prop_dep", now)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "deprecated/errors.md", res.NewPath)

	_, err = os.Stat(filepath.Join(root, "deprecated/errors.md"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "project/errors.md"))
	assert.True(t, os.IsNotExist(err))

	_, err = s.GetMemory(ctx, "mem_commit_1")
	assert.True(t, dmmerrors.IsNotFound(err))
}

func TestCommitPromoteMovesFileAndUpdatesScope(t *testing.T) {
	ctx := context.Background()
	e, q, s, root := newTestEngine(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	embedder := embed.NewHashEmbedder()
	idx := indexer.New(root, s, embedder)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "project"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "project/errors.md"), []byte(sampleContent), 0o644))
	require.NoError(t, idx.IncrementalReindexPath(ctx, "project/errors.md"))

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_promote", ProposedBy: "agent-1", Type: dmmtypes.ProposalPromote,
		TargetPath: "project/errors.md", MemoryID: "mem_commit_1", NewScope: dmmtypes.ScopeGlobal,
	}
	approve(t, ctx, q, p, now)

	res, err := e.Commit(ctx, "prop_promote", now)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "global/errors.md", res.NewPath)

	mem, err := s.GetMemory(ctx, "mem_commit_1")
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.ScopeGlobal, mem.Scope)
	assert.Equal(t, "global/errors.md", mem.Path)
	assert.Equal(t, dmmtypes.ScopeProject, mem.PromotedFrom)

	_, err = os.Stat(filepath.Join(root, "project/errors.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestCommitRejectsNonApprovedProposal(t *testing.T) {
	ctx := context.Background()
	e, q, _, _ := newTestEngine(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_pending", ProposedBy: "agent-1", Type: dmmtypes.ProposalCreate,
		TargetPath: "project/errors.md", Content: []byte(sampleContent),
	}
	_, err := q.Enqueue(ctx, p, now)
	require.NoError(t, err)

	_, err = e.Commit(ctx, "prop_pending", now)
	require.Error(t, err)
}
