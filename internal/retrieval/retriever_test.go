package retrieval_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/config"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/retrieval"
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

func putIndexedMemory(t *testing.T, ctx context.Context, s store.Store, embedder embed.Embedder, m *dmmtypes.Memory) {
	t.Helper()
	require.NoError(t, s.PutMemory(ctx, m))
	dirText := embed.DirectoryText(m.Path, m.Tags, m.Title)
	vecs, err := embedder.Embed(ctx, []string{dirText, m.Body})
	require.NoError(t, err)
	require.NoError(t, s.PutEmbedding(ctx, m.ID, store.EmbeddingDirectory, vecs[0]))
	require.NoError(t, s.PutEmbedding(ctx, m.ID, store.EmbeddingComposite, vecs[1]))
}

func testConfig() *config.Config {
	return &config.Config{
		DirectoryTopK:           3,
		ContentTopKPerDirectory: 20,
	}
}

func TestQueryReturnsBaselineAndRetrieved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	putIndexedMemory(t, ctx, s, embedder, &dmmtypes.Memory{
		ID: "mem_baseline_1", Path: "baseline/house_rules.md", Title: "House Rules",
		Body: "Always run tests before committing.", TokenCount: 6,
		Scope: dmmtypes.ScopeBaseline, Priority: 0.9,
		Confidence: dmmtypes.ConfidenceStable, Status: dmmtypes.StatusActive, Created: &now,
	})
	putIndexedMemory(t, ctx, s, embedder, &dmmtypes.Memory{
		ID: "mem_errors_1", Path: "project/errors.md", Title: "Error Handling",
		Body: "Return errors explicitly instead of panicking across boundaries.", TokenCount: 9,
		Tags: []string{"go", "errors"}, Scope: dmmtypes.ScopeProject, Priority: 0.8,
		Confidence: dmmtypes.ConfidenceStable, Status: dmmtypes.StatusActive, Created: &now,
	})

	r := retrieval.New(s, embedder, testConfig())
	pack, err := r.Query(ctx, retrieval.QueryRequest{
		QueryText: "error handling", Budget: 1000, BaselineBudget: 800, BaselineReserved: true,
	})
	require.NoError(t, err)

	require.Len(t, pack.Baseline, 1)
	assert.Equal(t, "baseline/house_rules.md", pack.Baseline[0].Memory.Path)

	require.Len(t, pack.Retrieved, 1)
	assert.Equal(t, "project/errors.md", pack.Retrieved[0].Memory.Path)
	assert.Equal(t, 6, pack.Stats.BaselineTokens)
}

func TestQueryExcludesDeprecatedAndExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)

	putIndexedMemory(t, ctx, s, embedder, &dmmtypes.Memory{
		ID: "mem_dep", Path: "project/old.md", Title: "Old Approach",
		Body: "deprecated content about retries", TokenCount: 4,
		Scope: dmmtypes.ScopeProject, Priority: 0.5,
		Confidence: dmmtypes.ConfidenceDeprecated, Status: dmmtypes.StatusDeprecated, Created: &now,
	})
	putIndexedMemory(t, ctx, s, embedder, &dmmtypes.Memory{
		ID: "mem_exp", Path: "ephemeral/note.md", Title: "Expired Note",
		Body: "temporary content about retries", TokenCount: 4,
		Scope: dmmtypes.ScopeEphemeral, Priority: 0.5, Expires: &past,
		Confidence: dmmtypes.ConfidenceActive, Status: dmmtypes.StatusActive, Created: &now,
	})

	r := retrieval.New(s, embedder, testConfig())
	pack, err := r.Query(ctx, retrieval.QueryRequest{QueryText: "retries", Budget: 1000})
	require.NoError(t, err)
	assert.Empty(t, pack.Retrieved)
}

func TestQueryExcludesWhenBudgetTooSmall(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	putIndexedMemory(t, ctx, s, embedder, &dmmtypes.Memory{
		ID: "mem_big", Path: "project/big.md", Title: "Big Entry",
		Body: "content about caching strategies and invalidation", TokenCount: 500,
		Scope: dmmtypes.ScopeProject, Priority: 0.7,
		Confidence: dmmtypes.ConfidenceStable, Status: dmmtypes.StatusActive, Created: &now,
	})

	r := retrieval.New(s, embedder, testConfig())
	pack, err := r.Query(ctx, retrieval.QueryRequest{QueryText: "caching strategies", Budget: 50})
	require.NoError(t, err)
	assert.Empty(t, pack.Retrieved)
	require.Len(t, pack.ExcludedPaths, 1)
	assert.Equal(t, "project/big.md", pack.ExcludedPaths[0].Path)
}

func TestRenderProducesDeterministicMarkdown(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	pack := &retrieval.MemoryPack{
		QueryText: "error handling",
		Baseline: []retrieval.PackEntry{
			{Memory: &dmmtypes.Memory{Path: "baseline/house_rules.md", Body: "Always run tests."}},
		},
		Retrieved: []retrieval.PackEntry{
			{Memory: &dmmtypes.Memory{Path: "project/errors.md", Body: "Return errors explicitly."}, Score: 0.87},
		},
		Stats: retrieval.PackStats{BaselineTokens: 3, RetrievedTokens: 3, TotalTokens: 6, Budget: 1000, Included: 1, Excluded: 0},
	}

	out1 := retrieval.Render(pack, now)
	out2 := retrieval.Render(pack, now)
	assert.Equal(t, out1, out2)
	assert.Contains(t, out1, "# DMM Memory Pack")
	assert.Contains(t, out1, "## Baseline (Always Included)")
	assert.Contains(t, out1, "### project/errors.md  (score: 0.87)")
	assert.Contains(t, out1, "- included: 1, excluded: 0")
}
