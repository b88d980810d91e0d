package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

const hashEmbedderDimensions = 256

// HashEmbedder is a deterministic, dependency-free Embedder: it hashes
// overlapping word shingles into a fixed-width vector, normalizes it, and
// never calls out to a network. It is the default embedder (spec.md §9
// Open Question: ship a usable default rather than requiring an API key
// out of the box) and keeps tests and offline workflows fast and
// reproducible.
type HashEmbedder struct{}

// NewHashEmbedder returns the default embedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Version is stable for the life of this implementation; changing the
// hashing scheme below must bump it so indexer.CheckVersions reports that
// a reindex is needed.
func (h *HashEmbedder) Version() string { return "hash-v1" }

// Dimensions returns the fixed vector width.
func (h *HashEmbedder) Dimensions() int { return hashEmbedderDimensions }

// Embed hashes each text independently; inputs never interact, so this can
// run concurrently per caller without locking.
func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = embedOne(t)
	}
	return out, nil
}

func embedOne(text string) Vector {
	v := make(Vector, hashEmbedderDimensions)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return v
	}

	// Hash unigrams and bigrams so word order contributes some signal
	// beyond a pure bag-of-words.
	for i, w := range words {
		addToken(v, w)
		if i+1 < len(words) {
			addToken(v, w+"_"+words[i+1])
		}
	}

	normalize(v)
	return v
}

func addToken(v Vector, token string) {
	sum := sha256.Sum256([]byte(token))
	idx := binary.BigEndian.Uint32(sum[0:4]) % hashEmbedderDimensions
	sign := float32(1)
	if sum[4]&1 == 1 {
		sign = -1
	}
	v[idx] += sign
}

func normalize(v Vector) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
