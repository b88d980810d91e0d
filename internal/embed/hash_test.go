package embed_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/embed"
)

func cosine(a, b embed.Vector) float64 {
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

func TestHashEmbedderIsDeterministic(t *testing.T) {
	h := embed.NewHashEmbedder()
	ctx := context.Background()

	a, err := h.Embed(ctx, []string{"prefer explicit error returns"})
	require.NoError(t, err)
	b, err := h.Embed(ctx, []string{"prefer explicit error returns"})
	require.NoError(t, err)

	assert.Equal(t, a[0], b[0])
}

func TestHashEmbedderSimilarTextIsCloserThanUnrelated(t *testing.T) {
	h := embed.NewHashEmbedder()
	ctx := context.Background()

	vecs, err := h.Embed(ctx, []string{
		"prefer explicit error returns over panics",
		"prefer explicit error handling instead of panicking",
		"the store backend defaults to sqlite with a vec0 virtual table",
	})
	require.NoError(t, err)

	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestHashEmbedderDimensionsMatchVectors(t *testing.T) {
	h := embed.NewHashEmbedder()
	vecs, err := h.Embed(context.Background(), []string{"anything"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], h.Dimensions())
}

func TestHashEmbedderEmptyTextIsZeroVector(t *testing.T) {
	h := embed.NewHashEmbedder()
	vecs, err := h.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	for _, x := range vecs[0] {
		assert.Zero(t, x)
	}
}
