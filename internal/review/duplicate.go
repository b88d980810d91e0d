package review

import (
	"context"

	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/store"
)

// duplicateSearchTopK bounds how many composite-embedding neighbors the
// detector inspects; the reviewer only cares whether anything crosses the
// near-duplicate threshold, not an exhaustive ranking.
const duplicateSearchTopK = 20

// DuplicateDetector compares a proposed memory's composite embedding
// against the store's existing composite embeddings (spec.md §4.7 step 4).
type DuplicateDetector struct {
	Store          store.Store
	Embedder       embed.Embedder
	HardThreshold  float64 // default 0.95
	NearThreshold  float64 // default 0.85
}

// NewDuplicateDetector returns a detector using cfg's thresholds.
func NewDuplicateDetector(s store.Store, embedder embed.Embedder, hardThreshold, nearThreshold float64) *DuplicateDetector {
	return &DuplicateDetector{Store: s, Embedder: embedder, HardThreshold: hardThreshold, NearThreshold: nearThreshold}
}

// Check embeds body, searches for similar existing memories (excluding
// excludeID, the memory being updated for UPDATE proposals), and classifies
// the result. hardDuplicate forces REJECT; nearDuplicate forces DEFER.
func (d *DuplicateDetector) Check(ctx context.Context, body string, excludeID string) (matches []DuplicateMatch, hardDuplicate, nearDuplicate bool, err error) {
	vecs, err := d.Embedder.Embed(ctx, []string{body})
	if err != nil {
		return nil, false, false, err
	}

	scored, err := d.Store.SearchByEmbedding(ctx, store.EmbeddingComposite, vecs[0], store.MemoryFilter{}, duplicateSearchTopK)
	if err != nil {
		return nil, false, false, err
	}

	for _, sm := range scored {
		if sm.Memory.ID == excludeID {
			continue
		}
		if sm.Score < d.NearThreshold {
			continue
		}
		matches = append(matches, DuplicateMatch{MemoryID: sm.Memory.ID, Path: sm.Memory.Path, Score: sm.Score})
		if sm.Score >= d.HardThreshold {
			hardDuplicate = true
		} else {
			nearDuplicate = true
		}
	}
	return matches, hardDuplicate, nearDuplicate, nil
}
