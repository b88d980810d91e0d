//go:build cgo

package doltstore

import (
	"context"
	"math"
	"sort"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/store"
)

func (s *DoltStore) PutEmbedding(ctx context.Context, memoryID string, kind store.EmbeddingKind, v embed.Vector) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO embedding (memory_id, kind, vector) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE vector = VALUES(vector)
	`, memoryID, string(kind), encodeVector(v))
	return dmmerrors.WrapStoreErr("put embedding", err)
}

// SearchByEmbedding has no vec0 equivalent on Dolt (no ANN index), so it
// always linear-scans, exactly like sqlitestore's fallback path.
func (s *DoltStore) SearchByEmbedding(ctx context.Context, kind store.EmbeddingKind, query embed.Vector, filter store.MemoryFilter, topK int) ([]store.ScoredMemory, error) {
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

	placeholders := ""
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(kind))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}

	rows, err := s.ex.QueryContext(ctx,
		"SELECT memory_id, vector FROM embedding WHERE kind = ? AND memory_id IN ("+placeholders+")", args...)
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

func encodeVector(v embed.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) embed.Vector {
	v := make(embed.Vector, len(buf)/4)
	for i := range v {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}
