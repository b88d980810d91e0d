package merge_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/conflict/analyzer"
	"github.com/dmmcore/dmm/internal/conflict/merge"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/store/sqlitestore"
)

func newTestStore(t *testing.T) *sqlitestore.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmm.db")
	s, err := sqlitestore.Open(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMemories() map[string]*dmmtypes.Memory {
	return map[string]*dmmtypes.Memory{
		"mem_a": {ID: "mem_a", Title: "Prefer Explicit Errors", Path: "project/a.md", Scope: dmmtypes.ScopeProject, Tags: []string{"go", "errors"}, Body: "Return errors explicitly."},
		"mem_b": {ID: "mem_b", Title: "Errors Should Panic", Path: "global/b.md", Scope: dmmtypes.ScopeGlobal, Tags: []string{"go", "errors"}, Body: "Panic on unexpected errors."},
	}
}

func TestMergeAndPersistCreatesNewConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	byID := testMemories()

	candidates := []analyzer.Candidate{
		{MemoryA: "mem_a", MemoryB: "mem_b", Method: dmmtypes.MethodTagOverlap, RawScore: 0.8, Evidence: map[string]any{"jaccard": 0.8}},
	}

	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	res, err := m.MergeAndPersist(ctx, candidates, byID, "scan_1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewConflicts)
	assert.Equal(t, 0, res.ExistingConflicts)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, dmmtypes.ConflictUnresolved, res.Conflicts[0].Status)

	persisted, err := s.GetConflict(ctx, res.Conflicts[0].ConflictID)
	require.NoError(t, err)
	assert.Equal(t, "scan_1", persisted.ScanID)
}

func TestMergeAndPersistSkipsExistingPair(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	byID := testMemories()

	candidates := []analyzer.Candidate{
		{MemoryA: "mem_a", MemoryB: "mem_b", Method: dmmtypes.MethodTagOverlap, RawScore: 0.8, Evidence: map[string]any{}},
	}
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	_, err := m.MergeAndPersist(ctx, candidates, byID, "scan_1", now)
	require.NoError(t, err)

	res2, err := m.MergeAndPersist(ctx, candidates, byID, "scan_2", now)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.NewConflicts)
	assert.Equal(t, 1, res2.ExistingConflicts)
}

func TestMergeBoostsConfidenceForMultipleMethods(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	byID := testMemories()

	candidates := []analyzer.Candidate{
		{MemoryA: "mem_a", MemoryB: "mem_b", Method: dmmtypes.MethodTagOverlap, RawScore: 0.7, Evidence: map[string]any{}},
		{MemoryA: "mem_a", MemoryB: "mem_b", Method: dmmtypes.MethodSemanticSimilarity, RawScore: 0.6, Evidence: map[string]any{"similarity": 0.85}},
	}
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	res, err := m.MergeAndPersist(ctx, candidates, byID, "scan_1", now)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.InDelta(t, 0.8, res.Conflicts[0].Confidence, 1e-9)
}

func TestMergeDeterminesSupersessionTypeFromEvidence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	byID := testMemories()

	candidates := []analyzer.Candidate{
		{MemoryA: "mem_a", MemoryB: "mem_b", Method: dmmtypes.MethodSupersessionChain, RawScore: 0.9, Evidence: map[string]any{"issue_type": "orphaned"}},
	}
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	res, err := m.MergeAndPersist(ctx, candidates, byID, "scan_1", now)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, dmmtypes.ConflictSupersession, res.Conflicts[0].ConflictType)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	byID := testMemories()

	candidates := []analyzer.Candidate{
		{MemoryA: "mem_a", MemoryB: "mem_b", Method: dmmtypes.MethodTagOverlap, RawScore: 0.8, Evidence: map[string]any{}},
	}
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	conflicts := m.Preview(candidates, byID, now)
	require.Len(t, conflicts, 1)

	existing, err := s.FindConflictByPair(context.Background(), dmmtypes.NewPairKey("mem_a", "mem_b"))
	require.NoError(t, err)
	assert.Nil(t, existing)
}
