// Package merge implements the Merger (spec.md §4.9.4): it groups conflict
// candidates from every analyzer by memory pair, computes one confidence
// score per pair, determines the conflict type, and deduplicates against
// already-persisted conflicts before writing new ones.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmmcore/dmm/internal/conflict/analyzer"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/idgen"
	"github.com/dmmcore/dmm/internal/store"
)

const bodySummaryLen = 200

// Merger collates analyzer candidates into persisted dmmtypes.Conflict
// records, grounded on conflicts/merger.py's ConflictMerger.
type Merger struct {
	Store              store.Store
	MultiMethodBoost   float64
	MaxConfidenceBoost float64
}

// New builds a Merger. multiMethodBoost and maxConfidenceBoost mirror
// conflicts/merger.py's CONFLICT_MULTI_METHOD_BOOST/_MAX_BOOST constants
// (spec.md defaults 0.1 and 0.25).
func New(s store.Store, multiMethodBoost, maxConfidenceBoost float64) *Merger {
	return &Merger{Store: s, MultiMethodBoost: multiMethodBoost, MaxConfidenceBoost: maxConfidenceBoost}
}

// Result mirrors merger.py's MergeResult.
type Result struct {
	TotalCandidates   int
	UniquePairs       int
	NewConflicts      int
	ExistingConflicts int
	Conflicts         []*dmmtypes.Conflict
}

// MergeAndPersist groups candidates by pair, skips pairs that already have
// a persisted conflict, and writes the rest as new dmmtypes.Conflict
// records tagged with scanID.
func (m *Merger) MergeAndPersist(ctx context.Context, candidates []analyzer.Candidate, byID map[string]*dmmtypes.Memory, scanID string, now time.Time) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{}, nil
	}

	groups := groupByPair(candidates)
	res := &Result{TotalCandidates: len(candidates), UniquePairs: len(groups)}

	for pair, group := range groups {
		existing, err := m.Store.FindConflictByPair(ctx, pair)
		if err != nil {
			return nil, fmt.Errorf("merge: check existing conflict for %v: %w", pair, err)
		}
		if existing != nil {
			res.ExistingConflicts++
			continue
		}

		m1, ok1 := byID[pair[0]]
		m2, ok2 := byID[pair[1]]
		if !ok1 || !ok2 {
			continue
		}

		conflict := m.createConflict(group, m1, m2, scanID, now)
		if err := m.Store.PutConflict(ctx, conflict); err != nil {
			res.ExistingConflicts++
			continue
		}
		res.NewConflicts++
		res.Conflicts = append(res.Conflicts, conflict)
	}

	return res, nil
}

// Preview merges candidates without checking or writing to the Store, for
// a dry-run view of what a scan would produce.
func (m *Merger) Preview(candidates []analyzer.Candidate, byID map[string]*dmmtypes.Memory, now time.Time) []*dmmtypes.Conflict {
	if len(candidates) == 0 {
		return nil
	}
	groups := groupByPair(candidates)
	out := make([]*dmmtypes.Conflict, 0, len(groups))
	for pair, group := range groups {
		m1, ok1 := byID[pair[0]]
		m2, ok2 := byID[pair[1]]
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, m.createConflict(group, m1, m2, "preview", now))
	}
	return out
}

func groupByPair(candidates []analyzer.Candidate) map[dmmtypes.PairKey][]analyzer.Candidate {
	groups := make(map[dmmtypes.PairKey][]analyzer.Candidate)
	for _, c := range candidates {
		key := dmmtypes.NewPairKey(c.MemoryA, c.MemoryB)
		groups[key] = append(groups[key], c)
	}
	return groups
}

func (m *Merger) createConflict(group []analyzer.Candidate, m1, m2 *dmmtypes.Memory, scanID string, now time.Time) *dmmtypes.Conflict {
	confidence := m.computeConfidence(group)
	conflictType := determineType(group, m1, m2)
	primary := primaryMethod(group)

	return &dmmtypes.Conflict{
		ConflictID: idgen.NewConflictID(now, len(group)),
		DetectedAt: now,
		ScanID:     scanID,
		Memories: [2]dmmtypes.ConflictMemory{
			{MemoryID: m1.ID, Path: m1.Path, Title: m1.Title, Scope: m1.Scope, Priority: m1.Priority, Summary: summary(m1.Body), Role: dmmtypes.RolePrimary},
			{MemoryID: m2.ID, Path: m2.Path, Title: m2.Title, Scope: m2.Scope, Priority: m2.Priority, Summary: summary(m2.Body), Role: dmmtypes.RoleSecondary},
		},
		ConflictType:    conflictType,
		DetectionMethod: primary,
		Confidence:      confidence,
		Description:     describe(m1, m2, group, conflictType),
		Evidence:        combineEvidence(group),
		Status:          dmmtypes.ConflictUnresolved,
	}
}

// computeConfidence takes the strongest single signal and boosts it when
// multiple independent methods agree, capped at MaxConfidenceBoost total
// (merger.py's _compute_confidence).
func (m *Merger) computeConfidence(group []analyzer.Candidate) float64 {
	if len(group) == 0 {
		return 0
	}
	best := group[0].RawScore
	methods := map[dmmtypes.DetectionMethod]bool{}
	for _, c := range group {
		if c.RawScore > best {
			best = c.RawScore
		}
		methods[c.Method] = true
	}
	boost := float64(len(methods)-1) * m.MultiMethodBoost
	if boost > m.MaxConfidenceBoost {
		boost = m.MaxConfidenceBoost
	}
	total := best + boost
	if total > 1 {
		total = 1
	}
	return total
}

// determineType follows merger.py's priority order: a supersession-chain
// candidate always wins, then a near-duplicate semantic-similarity reading,
// then a cross-scope tag overlap, defaulting to contradictory.
func determineType(group []analyzer.Candidate, m1, m2 *dmmtypes.Memory) dmmtypes.ConflictType {
	for _, c := range group {
		if c.Method == dmmtypes.MethodSupersessionChain {
			if issue, _ := c.Evidence["issue_type"].(string); issue != "" {
				return dmmtypes.ConflictSupersession
			}
		}
	}
	for _, c := range group {
		if c.Method == dmmtypes.MethodSemanticSimilarity {
			if sim, ok := c.Evidence["similarity"].(float64); ok && sim > 0.95 {
				return dmmtypes.ConflictDuplicate
			}
		}
	}
	if m1.Scope != m2.Scope && sharedTagCount(m1.Tags, m2.Tags) >= 3 {
		return dmmtypes.ConflictScopeOverlap
	}
	return dmmtypes.ConflictContradictory
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}

func primaryMethod(group []analyzer.Candidate) dmmtypes.DetectionMethod {
	if len(group) == 0 {
		return dmmtypes.MethodManual
	}
	best := group[0]
	for _, c := range group[1:] {
		if c.RawScore > best.RawScore {
			best = c
		}
	}
	return best.Method
}

func combineEvidence(group []analyzer.Candidate) map[string]any {
	methods := make([]string, 0, len(group))
	scores := make([]map[string]any, 0, len(group))
	details := make(map[string]any, len(group))
	for _, c := range group {
		methods = append(methods, string(c.Method))
		scores = append(scores, map[string]any{"method": string(c.Method), "score": c.RawScore})
		details[string(c.Method)] = c.Evidence
	}
	return map[string]any{"methods": methods, "scores": scores, "details": details}
}

var typeDescriptions = map[dmmtypes.ConflictType]string{
	dmmtypes.ConflictContradictory: "contain contradictory information",
	dmmtypes.ConflictDuplicate:     "appear to be duplicates",
	dmmtypes.ConflictSupersession:  "have supersession relationship issues",
	dmmtypes.ConflictScopeOverlap:  "cover the same topic in different scopes",
	dmmtypes.ConflictStale:         "may have stale or outdated information",
}

func describe(m1, m2 *dmmtypes.Memory, group []analyzer.Candidate, conflictType dmmtypes.ConflictType) string {
	desc, ok := typeDescriptions[conflictType]
	if !ok {
		desc = "may conflict"
	}
	seen := map[string]bool{}
	var methods []string
	for _, c := range group {
		if !seen[string(c.Method)] {
			seen[string(c.Method)] = true
			methods = append(methods, string(c.Method))
		}
	}
	return fmt.Sprintf("Memories %q and %q %s. Detected via: %s.", m1.Title, m2.Title, desc, strings.Join(methods, ", "))
}

func summary(body string) string {
	if len(body) <= bodySummaryLen {
		return body
	}
	return body[:bodySummaryLen]
}
