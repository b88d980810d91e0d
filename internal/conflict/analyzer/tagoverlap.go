package analyzer

import (
	"context"

	"github.com/dmmcore/dmm/internal/dmmtypes"
)

const prefixLen = 200

// TagOverlap flags active memories in different scopes that share most of
// their tags but whose bodies actually differ (spec.md §4.9.2) — the
// signature of the same guidance having been written twice under two scope
// folders instead of promoted once.
type TagOverlap struct {
	Threshold float64
}

// NewTagOverlap builds a TagOverlap analyzer. threshold is the minimum
// Jaccard similarity between two memories' tag sets to emit a candidate
// (spec.md default 0.70); a candidate scores "high" severity at or above
// 0.90.
func NewTagOverlap(threshold float64) *TagOverlap {
	return &TagOverlap{Threshold: threshold}
}

func (a *TagOverlap) Method() dmmtypes.DetectionMethod { return dmmtypes.MethodTagOverlap }

func (a *TagOverlap) Scan(ctx context.Context, memories []*dmmtypes.Memory, focus map[string]bool) ([]Candidate, error) {
	var out []Candidate
	for i := 0; i < len(memories); i++ {
		m1 := memories[i]
		if m1.Status != dmmtypes.StatusActive {
			continue
		}
		for j := i + 1; j < len(memories); j++ {
			m2 := memories[j]
			if m2.Status != dmmtypes.StatusActive {
				continue
			}
			if m1.Scope == m2.Scope {
				continue
			}
			if !touchesFocus(focus, m1.ID, m2.ID) {
				continue
			}
			sim := jaccard(m1.Tags, m2.Tags)
			if sim < a.Threshold {
				continue
			}
			if prefix(m1.Body, prefixLen) == prefix(m2.Body, prefixLen) {
				// Same opening text under different scopes is a promotion
				// candidate, not a conflict — there is nothing to reconcile.
				continue
			}
			severity := "medium"
			if sim >= 0.90 {
				severity = "high"
			}
			out = append(out, Candidate{
				MemoryA:  m1.ID,
				MemoryB:  m2.ID,
				Method:   dmmtypes.MethodTagOverlap,
				RawScore: sim,
				Evidence: map[string]any{
					"jaccard":  sim,
					"severity": severity,
				},
			})
		}
	}
	return out, nil
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]int, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	var inter, union int
	for _, mask := range set {
		union++
		if mask == 3 {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
