package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
)

const (
	scopeMismatchPenalty = 0.2
	priorityGapWeight    = 0.1
)

// opposingMarkers are lexical signals of a memory taking a firm position.
// Two memories about the same topic (high cosine similarity) that each lean
// on a different density of this vocabulary are a signal they may be making
// opposite claims, not just restating each other (spec.md §4.9.1).
var opposingMarkers = []string{
	"always", "never", "must", "must not", "required", "optional",
	"enable", "disable", "should", "should not", "deprecated", "prefer",
}

// SemanticSimilarity flags memory pairs whose bodies embed close together
// yet diverge in the opinionated language they use, a proxy for
// contradictory guidance on the same topic (spec.md §4.9.1).
type SemanticSimilarity struct {
	Embedder                embed.Embedder
	SimilarityThreshold     float64
	DivergenceThreshold     float64
	HighSimilarityThreshold float64
	PairCap                 int
}

// NewSemanticSimilarity builds the analyzer against embedder, using the
// given thresholds (spec.md defaults: similarity 0.80, divergence 0.15,
// high-similarity exclusion 0.95) and a cap on the number of pairs scored
// per scan (default 10,000) so a large corpus cannot turn a full scan into
// an O(n^2) embedding bill.
func NewSemanticSimilarity(embedder embed.Embedder, similarity, divergence, highSimilarity float64, pairCap int) *SemanticSimilarity {
	if pairCap <= 0 {
		pairCap = 10000
	}
	return &SemanticSimilarity{
		Embedder:                embedder,
		SimilarityThreshold:     similarity,
		DivergenceThreshold:     divergence,
		HighSimilarityThreshold: highSimilarity,
		PairCap:                 pairCap,
	}
}

func (a *SemanticSimilarity) Method() dmmtypes.DetectionMethod {
	return dmmtypes.MethodSemanticSimilarity
}

// Scan re-embeds every memory's body (the store only indexes vectors for
// query-time search, not for pairwise lookup by id — see DESIGN.md) and
// compares every pair up to PairCap.
func (a *SemanticSimilarity) Scan(ctx context.Context, memories []*dmmtypes.Memory, focus map[string]bool) ([]Candidate, error) {
	active := make([]*dmmtypes.Memory, 0, len(memories))
	for _, m := range memories {
		if m.Status == dmmtypes.StatusActive {
			active = append(active, m)
		}
	}

	vecs, err := a.embedAll(ctx, active)
	if err != nil {
		return nil, fmt.Errorf("analyzer: semantic similarity: %w", err)
	}

	var out []Candidate
	pairs := 0
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if pairs >= a.PairCap {
				return out, nil
			}
			m1, m2 := active[i], active[j]
			if !touchesFocus(focus, m1.ID, m2.ID) {
				continue
			}
			pairs++

			sim := cosineSimilarity(vecs[m1.ID], vecs[m2.ID])
			if sim < a.SimilarityThreshold {
				continue
			}
			if sim >= a.HighSimilarityThreshold && m1.Scope == m2.Scope {
				// Near-identical bodies in the same scope are a duplicate
				// concern, not a semantic one; the reviewer's duplicate
				// detector already guards CREATE/UPDATE against this.
				continue
			}

			div := divergence(m1, m2)
			if div < a.DivergenceThreshold {
				continue
			}

			out = append(out, Candidate{
				MemoryA:  m1.ID,
				MemoryB:  m2.ID,
				Method:   dmmtypes.MethodSemanticSimilarity,
				RawScore: clamp01(sim * div),
				Evidence: map[string]any{
					"similarity": sim,
					"divergence": div,
				},
			})
		}
	}
	return out, nil
}

func (a *SemanticSimilarity) embedAll(ctx context.Context, memories []*dmmtypes.Memory) (map[string]embed.Vector, error) {
	if len(memories) == 0 {
		return nil, nil
	}
	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Body
	}
	vecs, err := a.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make(map[string]embed.Vector, len(memories))
	for i, m := range memories {
		out[m.ID] = vecs[i]
	}
	return out, nil
}

// divergence scores how differently two memories take a position on their
// shared topic: asymmetry in opposing-marker usage, plus a flat penalty for
// a scope mismatch and a scaled penalty for a priority gap (spec.md
// §4.9.1's divergence signal).
func divergence(m1, m2 *dmmtypes.Memory) float64 {
	c1 := float64(countMarkers(m1.Body))
	c2 := float64(countMarkers(m2.Body))
	d := math.Abs(c1-c2) / (math.Max(c1, c2) + 1)

	if m1.Scope != m2.Scope {
		d += scopeMismatchPenalty
	}
	d += math.Abs(m1.Priority-m2.Priority) * priorityGapWeight

	return clamp01(d)
}

func countMarkers(body string) int {
	lower := strings.ToLower(body)
	n := 0
	for _, marker := range opposingMarkers {
		n += strings.Count(lower, marker)
	}
	return n
}

func cosineSimilarity(a, b embed.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
