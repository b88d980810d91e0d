// Package retrieval implements the Retriever and Pack Assembler described
// in spec.md §4.5: a six-step pipeline that turns a query string into a
// token-budgeted MemoryPack, hierarchically narrowing by directory before
// ranking content, the way the teacher's internal/storage.Storage query
// path narrows by index before scanning rows.
package retrieval

import (
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/store"
)

// QueryRequest is the Retriever's input (spec.md §4.5.1).
type QueryRequest struct {
	QueryText        string
	Budget           int
	BaselineBudget   int // default 800 when zero
	Filters          store.MemoryFilter
	BaselineReserved bool
}

// PackEntry is one memory admitted into a MemoryPack, carrying the score it
// was ranked by (zero for baseline entries, which aren't scored).
type PackEntry struct {
	Memory *dmmtypes.Memory
	Score  float64
}

// ExcludedEntry records a candidate that ranked but didn't fit the budget
// (spec.md §4.5.1 step 6: "excluded paths are recorded").
type ExcludedEntry struct {
	Path  string
	Score float64
}

// PackStats is the footer data rendered at the end of a pack (spec.md
// §4.5.2).
type PackStats struct {
	BaselineTokens  int
	RetrievedTokens int
	TotalTokens     int
	Budget          int
	Included        int
	Excluded        int
}

// MemoryPack is the Retriever's raw output; Render turns it into the
// deterministic markdown document callers actually consume.
type MemoryPack struct {
	QueryText     string
	Baseline      []PackEntry
	Retrieved     []PackEntry
	ExcludedPaths []ExcludedEntry
	Stats         PackStats
}
