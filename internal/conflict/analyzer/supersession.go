package analyzer

import (
	"context"

	"github.com/dmmcore/dmm/internal/dmmtypes"
)

const (
	scoreOrphaned  = 0.9
	scoreIncomplete = 0.72
	scoreContested = 0.85
	scoreCircular  = 0.95
)

// Supersession walks the directed graph formed by each memory's Supersedes
// list (an edge m -> t for every t in m.Supersedes) looking for four
// patterns spec.md §4.9.3 names explicitly: an active memory superseding
// one that is still active (orphaned), a deprecated memory whose target was
// never deprecated
// (incomplete), two active memories both claiming to replace the same one
// (contested), and a cycle (circular).
type Supersession struct {
	MaxChainDepth int
}

// NewSupersession builds the analyzer with maxChainDepth bounding how many
// hops the cycle search follows before giving up (spec.md default 10).
func NewSupersession(maxChainDepth int) *Supersession {
	if maxChainDepth <= 0 {
		maxChainDepth = 10
	}
	return &Supersession{MaxChainDepth: maxChainDepth}
}

func (a *Supersession) Method() dmmtypes.DetectionMethod {
	return dmmtypes.MethodSupersessionChain
}

func (a *Supersession) Scan(ctx context.Context, memories []*dmmtypes.Memory, focus map[string]bool) ([]Candidate, error) {
	byID := make(map[string]*dmmtypes.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	var out []Candidate
	claimants := make(map[string][]string) // target id -> active memories claiming to supersede it

	for _, m := range memories {
		for _, targetID := range m.Supersedes {
			target, ok := byID[targetID]
			if !ok {
				continue
			}
			if !touchesFocus(focus, m.ID, targetID) {
				continue
			}

			switch {
			case m.Status == dmmtypes.StatusActive && target.Status == dmmtypes.StatusActive:
				out = append(out, Candidate{
					MemoryA: m.ID, MemoryB: target.ID, Method: a.Method(), RawScore: scoreOrphaned,
					Evidence: map[string]any{"issue_type": "orphaned"},
				})
			case m.Status == dmmtypes.StatusDeprecated && target.Status == dmmtypes.StatusActive:
				out = append(out, Candidate{
					MemoryA: m.ID, MemoryB: target.ID, Method: a.Method(), RawScore: scoreIncomplete,
					Evidence: map[string]any{"issue_type": "incomplete"},
				})
			}

			if m.Status == dmmtypes.StatusActive {
				claimants[targetID] = append(claimants[targetID], m.ID)
			}
		}
	}

	for targetID, ids := range claimants {
		if len(ids) < 2 {
			continue
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if !touchesFocus(focus, ids[i], ids[j]) {
					continue
				}
				out = append(out, Candidate{
					MemoryA: ids[i], MemoryB: ids[j], Method: a.Method(), RawScore: scoreContested,
					Evidence: map[string]any{"issue_type": "contested", "target": targetID},
				})
			}
		}
	}

	out = append(out, a.findCycles(memories, byID, focus)...)
	return out, nil
}

// findCycles follows Supersedes edges from every memory, up to
// MaxChainDepth hops, and emits one candidate per distinct cycle found,
// between the cycle's first two nodes (spec.md §4.9.3).
func (a *Supersession) findCycles(memories []*dmmtypes.Memory, byID map[string]*dmmtypes.Memory, focus map[string]bool) []Candidate {
	var out []Candidate
	seen := make(map[dmmtypes.PairKey]bool)

	var walk func(start, node string, path []string, depth int)
	walk = func(start, node string, path []string, depth int) {
		if depth > a.MaxChainDepth {
			return
		}
		m, ok := byID[node]
		if !ok {
			return
		}
		for _, next := range m.Supersedes {
			if next == start && len(path) >= 2 {
				if !startsAtSmallest(path) {
					// Every rotation of a cycle closes back on its own start;
					// only the rotation that starts at the smallest id reports it.
					continue
				}
				key := dmmtypes.NewPairKey(path[0], path[1])
				if seen[key] {
					continue
				}
				seen[key] = true
				if touchesFocus(focus, path[0], path[1]) {
					out = append(out, Candidate{
						MemoryA: path[0], MemoryB: path[1], Method: a.Method(), RawScore: scoreCircular,
						Evidence: map[string]any{"issue_type": "circular"},
					})
				}
				continue
			}
			if _, ok := byID[next]; !ok || containsID(path, next) {
				continue
			}
			walk(start, next, append(append([]string{}, path...), next), depth+1)
		}
	}

	for _, m := range memories {
		walk(m.ID, m.ID, []string{m.ID}, 0)
	}
	return out
}

func startsAtSmallest(path []string) bool {
	for _, id := range path[1:] {
		if id < path[0] {
			return false
		}
	}
	return true
}

func containsID(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
