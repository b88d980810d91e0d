package scanner_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/conflict/analyzer"
	"github.com/dmmcore/dmm/internal/conflict/merge"
	"github.com/dmmcore/dmm/internal/conflict/scanner"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/store"
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

func putMemory(t *testing.T, ctx context.Context, s store.Store, m *dmmtypes.Memory) {
	t.Helper()
	require.NoError(t, s.PutMemory(ctx, m))
}

func TestScanFullPersistsScanRecordAndConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	putMemory(t, ctx, s, &dmmtypes.Memory{
		ID: "mem_a", Title: "A", Path: "project/a.md", Scope: dmmtypes.ScopeProject,
		Status: dmmtypes.StatusActive, Tags: []string{"go", "errors", "style"}, Body: "Return errors explicitly from library code.",
	})
	putMemory(t, ctx, s, &dmmtypes.Memory{
		ID: "mem_b", Title: "B", Path: "global/b.md", Scope: dmmtypes.ScopeGlobal,
		Status: dmmtypes.StatusActive, Tags: []string{"go", "errors", "style"}, Body: "Always wrap errors using fmt.Errorf with %w for context.",
	})

	tagOverlap := analyzer.NewTagOverlap(0.70)
	m := merge.New(s, 0.1, 0.25)
	sc := scanner.New(s, []analyzer.Analyzer{tagOverlap}, m)

	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	finish := start.Add(50 * time.Millisecond)

	record, err := sc.ScanFull(ctx, dmmtypes.ScanStartup, start, finish)
	require.NoError(t, err)
	assert.Equal(t, 2, record.MemoriesScanned)
	assert.Equal(t, 1, record.Detected)
	assert.Equal(t, 1, record.New)
	assert.Contains(t, record.MethodsUsed, dmmtypes.MethodTagOverlap)

	last, err := s.LastScan(ctx, dmmtypes.ScanStartup)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, record.ScanID, last.ScanID)
}

func TestScanIncrementalRestrictsToFocusMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	putMemory(t, ctx, s, &dmmtypes.Memory{
		ID: "mem_a", Title: "A", Path: "project/a.md", Scope: dmmtypes.ScopeProject,
		Status: dmmtypes.StatusActive, Tags: []string{"go", "errors"}, Body: "one",
	})
	putMemory(t, ctx, s, &dmmtypes.Memory{
		ID: "mem_b", Title: "B", Path: "global/b.md", Scope: dmmtypes.ScopeGlobal,
		Status: dmmtypes.StatusActive, Tags: []string{"completely", "unrelated"}, Body: "two",
	})

	tagOverlap := analyzer.NewTagOverlap(0.70)
	m := merge.New(s, 0.1, 0.25)
	sc := scanner.New(s, []analyzer.Analyzer{tagOverlap}, m)

	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	record, err := sc.ScanIncremental(ctx, "mem_a", start, start)
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.ScanIncremental, record.ScanType)
	assert.Equal(t, 0, record.Detected)
}

func TestDuePeriodicTrueWhenNoPriorScan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	sc := scanner.New(s, nil, m)

	due, err := sc.DuePeriodic(ctx, 24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.True(t, due)
}

func TestDuePeriodicFalseWithinInterval(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := merge.New(s, 0.1, 0.25)
	sc := scanner.New(s, nil, m)

	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	_, err := sc.ScanFull(ctx, dmmtypes.ScanPeriodic, start, start)
	require.NoError(t, err)

	due, err := sc.DuePeriodic(ctx, 24*time.Hour, start.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, due)
}
