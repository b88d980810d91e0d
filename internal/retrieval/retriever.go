package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmmcore/dmm/internal/config"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/store"
)

// fenceOverhead is the per-entry markdown rendering envelope charged
// against budget on top of an entry's own token count (spec.md §4.5.1
// step 6).
const fenceOverhead = 10

const (
	defaultBaselineBudget = 800
	defaultDirectoryTopK  = 3
	defaultContentTopK    = 20
)

// Retriever runs the six-step query pipeline from spec.md §4.5.1.
type Retriever struct {
	Store    store.Store
	Embedder embed.Embedder
	Config   *config.Config
}

// New constructs a Retriever over s and embedder, tuned by cfg.
func New(s store.Store, embedder embed.Embedder, cfg *config.Config) *Retriever {
	return &Retriever{Store: s, Embedder: embedder, Config: cfg}
}

// Query runs the full pipeline and returns the assembled pack.
func (r *Retriever) Query(ctx context.Context, req QueryRequest) (*MemoryPack, error) {
	timer := dmmlog.StartTimer(dmmlog.CategoryRetrieval, "query")
	defer timer.Stop()

	baselineBudget := req.BaselineBudget
	if baselineBudget <= 0 {
		baselineBudget = defaultBaselineBudget
	}

	baseline, baselineTokens, err := r.selectBaseline(ctx, baselineBudget)
	if err != nil {
		return nil, fmt.Errorf("retrieval: select baseline: %w", err)
	}

	queryVec, err := r.embedQuery(ctx, req.QueryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	directories, err := r.rankDirectories(ctx, queryVec, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("retrieval: rank directories: %w", err)
	}

	candidates, err := r.rankContent(ctx, queryVec, directories, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("retrieval: rank content: %w", err)
	}

	candidates = scoreAndOrder(candidates)

	budget := req.Budget
	if req.BaselineReserved {
		budget -= baselineTokens
	}
	admitted, excluded, retrievedTokens := fillBudget(candidates, budget)

	pack := &MemoryPack{
		QueryText:     req.QueryText,
		Baseline:      baseline,
		Retrieved:     admitted,
		ExcludedPaths: excluded,
		Stats: PackStats{
			BaselineTokens:  baselineTokens,
			RetrievedTokens: retrievedTokens,
			TotalTokens:     baselineTokens + retrievedTokens,
			Budget:          req.Budget,
			Included:        len(admitted),
			Excluded:        len(excluded),
		},
	}
	dmmlog.Info(dmmlog.CategoryRetrieval, "query %q: %d baseline, %d retrieved, %d excluded",
		req.QueryText, len(baseline), len(admitted), len(excluded))
	return pack, nil
}

// selectBaseline greedily takes baseline-scope memories in declared
// (path) order until the next entry would exceed baselineBudget (spec.md
// §4.5.1 step 1).
func (r *Retriever) selectBaseline(ctx context.Context, baselineBudget int) ([]PackEntry, int, error) {
	mems, err := r.Store.ListMemories(ctx, store.MemoryFilter{Scope: dmmtypes.ScopeBaseline})
	if err != nil {
		return nil, 0, err
	}

	var entries []PackEntry
	used := 0
	for _, m := range mems {
		if used+m.TokenCount > baselineBudget {
			break
		}
		entries = append(entries, PackEntry{Memory: m})
		used += m.TokenCount
	}
	return entries, used, nil
}

// embedQuery produces the single query vector used for both directory and
// content ranking (spec.md §4.5.1 step 2).
func (r *Retriever) embedQuery(ctx context.Context, text string) (embed.Vector, error) {
	vecs, err := r.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// rankDirectories returns up to K_dir candidate directories, ranked by
// their best directory_embedding match (spec.md §4.5.1 step 3).
func (r *Retriever) rankDirectories(ctx context.Context, queryVec embed.Vector, filters store.MemoryFilter) ([]string, error) {
	kDir := r.Config.DirectoryTopK
	if kDir <= 0 {
		kDir = defaultDirectoryTopK
	}

	// Oversample before aggregating by directory so a directory whose best
	// memory doesn't happen to be the single top hit still surfaces.
	scored, err := r.Store.SearchByEmbedding(ctx, store.EmbeddingDirectory, queryVec, filters, kDir*10)
	if err != nil {
		return nil, err
	}

	best := make(map[string]float64)
	for _, sm := range scored {
		if sm.Memory.Scope == dmmtypes.ScopeBaseline {
			// Baseline entries are always included via selectBaseline and
			// never compete for retrieved-section budget (spec.md §4.5.1
			// step 1: they're reserved, not ranked).
			continue
		}
		dir := sm.Memory.Directory()
		if cur, ok := best[dir]; !ok || sm.Score > cur {
			best[dir] = sm.Score
		}
	}

	dirs := make([]string, 0, len(best))
	for d := range best {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if best[dirs[i]] != best[dirs[j]] {
			return best[dirs[i]] > best[dirs[j]]
		}
		return dirs[i] < dirs[j]
	})

	if len(dirs) > kDir {
		dirs = dirs[:kDir]
	}
	return dirs, nil
}

// rankContent searches each candidate directory's composite embeddings and
// merges the results (spec.md §4.5.1 step 4). Deprecated and expired
// entries are dropped here, matching "already filtered out upstream" in
// step 5.
func (r *Retriever) rankContent(ctx context.Context, queryVec embed.Vector, directories []string, filters store.MemoryFilter) ([]store.ScoredMemory, error) {
	kCont := r.Config.ContentTopKPerDirectory
	if kCont <= 0 {
		kCont = defaultContentTopK
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	var out []store.ScoredMemory

	for _, dir := range directories {
		dirFilter := filters
		dirFilter.PathGlob = dir + "/*"

		scored, err := r.Store.SearchByEmbedding(ctx, store.EmbeddingComposite, queryVec, dirFilter, kCont)
		if err != nil {
			return nil, err
		}
		for _, sm := range scored {
			if sm.Memory.Status == dmmtypes.StatusDeprecated || sm.Memory.Scope == dmmtypes.ScopeDeprecated {
				continue
			}
			if sm.Memory.Scope == dmmtypes.ScopeBaseline {
				continue
			}
			if sm.Memory.IsExpired(now) {
				continue
			}
			if seen[sm.Memory.ID] {
				continue
			}
			seen[sm.Memory.ID] = true
			out = append(out, sm)
		}
	}
	return out, nil
}

// scoreAndOrder applies the final relevance formula and tiebreak rules
// (spec.md §4.5.1 step 5).
func scoreAndOrder(candidates []store.ScoredMemory) []PackEntry {
	entries := make([]PackEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = PackEntry{
			Memory: c.Memory,
			Score:  0.7*c.Score + 0.3*c.Memory.Priority,
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ci, cj := entries[i].Memory.Created, entries[j].Memory.Created
		switch {
		case ci != nil && cj != nil && !ci.Equal(*cj):
			return ci.After(*cj)
		case ci != nil && cj == nil:
			return true
		case ci == nil && cj != nil:
			return false
		}
		return entries[i].Memory.ID < entries[j].Memory.ID
	})
	return entries
}

// fillBudget admits candidates in score order while remaining budget
// allows, charging fenceOverhead per entry on top of its token count
// (spec.md §4.5.1 step 6).
func fillBudget(candidates []PackEntry, budget int) (admitted []PackEntry, excluded []ExcludedEntry, tokensUsed int) {
	remaining := budget
	for _, c := range candidates {
		cost := c.Memory.TokenCount + fenceOverhead
		if remaining-cost < 0 {
			excluded = append(excluded, ExcludedEntry{Path: c.Memory.Path, Score: c.Score})
			continue
		}
		remaining -= cost
		tokensUsed += cost
		admitted = append(admitted, c)
	}
	return admitted, excluded, tokensUsed
}
