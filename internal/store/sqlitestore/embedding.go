package sqlitestore

import (
	"context"
	"math"
	"sort"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/store"
)

func (s *SQLiteStore) PutEmbedding(ctx context.Context, memoryID string, kind store.EmbeddingKind, v embed.Vector) error {
	buf := encodeVector(v)

	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO embedding (memory_id, kind, vector) VALUES (?, ?, ?)
		ON CONFLICT(memory_id, kind) DO UPDATE SET vector = excluded.vector
	`, memoryID, string(kind), buf)
	if err != nil {
		return dmmerrors.WrapStoreErr("put embedding", err)
	}

	if s.vecReady {
		// vec0 has no natural upsert-by-metadata; delete then insert keeps
		// the ANN index consistent with the table above.
		_, _ = s.ex.ExecContext(ctx, `DELETE FROM vec_embedding WHERE memory_id = ? AND kind = ?`, memoryID, string(kind))
		_, _ = s.ex.ExecContext(ctx, `INSERT INTO vec_embedding (vector, memory_id, kind) VALUES (?, ?, ?)`, buf, memoryID, string(kind))
	}

	return nil
}

// SearchByEmbedding ranks memories by cosine similarity to query. When the
// sqlite-vec virtual table loaded successfully this could be pushed down
// to vec0's KNN operator; the pure-Go linear scan below is kept as the
// always-correct path (and the only path when vec0 is unavailable), since
// DMM's memory counts are small enough that cosine similarity over every
// candidate row is cheap (spec.md §4.2 Non-goal: no ANN index required for
// correctness, only for scale).
func (s *SQLiteStore) SearchByEmbedding(ctx context.Context, kind store.EmbeddingKind, query embed.Vector, filter store.MemoryFilter, topK int) ([]store.ScoredMemory, error) {
	candidates, err := s.ListMemories(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	memByID := make(map[string]*dmmtypes.Memory, len(candidates))
	for i, m := range candidates {
		ids[i] = m.ID
		memByID[m.ID] = m
	}

	rows, err := s.ex.QueryContext(ctx, buildInQuery(
		`SELECT memory_id, vector FROM embedding WHERE kind = ? AND memory_id IN (`, ids)+")",
		append([]any{string(kind)}, toAnySlice(ids)...)...)
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("search by embedding", err)
	}
	defer func() { _ = rows.Close() }()

	scored := make([]store.ScoredMemory, 0, len(candidates))
	for rows.Next() {
		var memoryID string
		var buf []byte
		if err := rows.Scan(&memoryID, &buf); err != nil {
			return nil, dmmerrors.WrapStoreErr("scan embedding row", err)
		}
		m, ok := memByID[memoryID]
		if !ok {
			continue
		}
		v := decodeVector(buf)
		score := cosineSimilarity(query, v)
		scored = append(scored, store.ScoredMemory{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, dmmerrors.WrapStoreErr("iterate embedding rows", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
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

func buildInQuery(prefix string, ids []string) string {
	q := prefix
	for i := range ids {
		if i > 0 {
			q += ","
		}
		q += "?"
	}
	return q
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
