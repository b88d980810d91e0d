// Package embed provides the Embedder abstraction described in spec.md §4.2:
// every memory gets a directory_embedding (derived from path, tags, title)
// and a composite_embedding (derived from the body), used by the Retriever's
// two-stage hierarchical search.
package embed

import "context"

// Vector is a dense embedding. Cosine similarity is computed by callers in
// internal/retrieval, not by the Embedder itself, so the Store can cache
// vectors without depending on this package's similarity math.
type Vector []float32

// Embedder turns text into vectors. Implementations must be deterministic
// enough that re-embedding unchanged text under the same Version produces
// directly comparable vectors; they need not be byte-identical across
// process restarts for the hash embedder, but must be for the remote one to
// be reindex-safe (spec.md §9).
type Embedder interface {
	// Embed returns one vector per input string, in order.
	Embed(ctx context.Context, texts []string) ([]Vector, error)

	// Version identifies the embedding space. indexer.CheckVersions
	// compares this against system_meta.embedder_version and reports a
	// mismatch as needing a full reindex (spec.md §9 Open Question,
	// resolved: reindex rather than mix embedding spaces).
	Version() string

	// Dimensions is the vector length this embedder produces.
	Dimensions() int
}

// DirectoryText builds the text embedded into a memory's directory_embedding:
// its path, tags, and title, which is what the Retriever's stage-1 directory
// ranking searches against (spec.md §4.2, §4.4).
func DirectoryText(path string, tags []string, title string) string {
	var b []byte
	b = append(b, path...)
	b = append(b, '\n')
	for _, t := range tags {
		b = append(b, t...)
		b = append(b, ' ')
	}
	b = append(b, '\n')
	b = append(b, title...)
	return string(b)
}
