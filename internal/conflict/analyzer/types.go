// Package analyzer implements the conflict detection analyzers described in
// spec.md §4.9: each one scans a set of memories for a particular kind of
// disagreement and emits candidate pairs for the Merger to collate.
package analyzer

import (
	"context"

	"github.com/dmmcore/dmm/internal/dmmtypes"
)

// Candidate is one analyzer's raw signal that two memories may conflict.
// The Merger (internal/conflict/merge) turns candidates into persisted
// dmmtypes.Conflict records, deduping by pair and combining scores across
// methods.
type Candidate struct {
	MemoryA  string
	MemoryB  string
	Method   dmmtypes.DetectionMethod
	RawScore float64
	Evidence map[string]any
}

// Analyzer scans a corpus of memories and returns conflict candidates.
// focus, when non-nil, restricts emitted candidates to pairs touching at
// least one memory ID in the set — used for the incremental (on-commit) and
// targeted scan types from spec.md §4.9.5. A full scan passes focus as nil.
type Analyzer interface {
	Method() dmmtypes.DetectionMethod
	Scan(ctx context.Context, memories []*dmmtypes.Memory, focus map[string]bool) ([]Candidate, error)
}

func touchesFocus(focus map[string]bool, a, b string) bool {
	return focus == nil || focus[a] || focus[b]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
