// Package scanner schedules and runs conflict scans (spec.md §4.9.5): a
// full pass at startup and on an interval, a single-memory pass after every
// commit, and an on-demand targeted pass over a caller-chosen memory set.
// Grounded on the teacher's indexer.Watch debounce idiom for the
// should-I-run-yet scheduling check, generalized from a file-change quiet
// period to a wall-clock interval against the last persisted scan record.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/dmmcore/dmm/internal/conflict/analyzer"
	"github.com/dmmcore/dmm/internal/conflict/merge"
	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/idgen"
	"github.com/dmmcore/dmm/internal/store"
)

// Scanner runs the configured analyzers over the corpus and hands their
// candidates to a Merger.
type Scanner struct {
	Store     store.Store
	Analyzers []analyzer.Analyzer
	Merger    *merge.Merger
}

// New builds a Scanner. analyzers is the active set for this deployment.
// The optional rule_extraction step is not an Analyzer and is never part
// of this slice; it refines semantic-similarity candidates separately
// (analyzer.RuleExtraction.Refine).
func New(s store.Store, analyzers []analyzer.Analyzer, merger *merge.Merger) *Scanner {
	return &Scanner{Store: s, Analyzers: analyzers, Merger: merger}
}

// ScanFull runs every analyzer over every memory in the corpus — the
// startup and periodic scan types.
func (sc *Scanner) ScanFull(ctx context.Context, scanType dmmtypes.ScanType, start, finish time.Time) (*dmmtypes.ScanRecord, error) {
	memories, err := sc.Store.ListMemories(ctx, store.MemoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("scanner: list memories: %w", err)
	}
	return sc.run(ctx, memories, nil, scanType, start, finish)
}

// ScanIncremental scans one freshly-committed memory against the rest of
// the corpus (spec.md §4.9.5's "incremental scan on commit").
func (sc *Scanner) ScanIncremental(ctx context.Context, memoryID string, start, finish time.Time) (*dmmtypes.ScanRecord, error) {
	memories, err := sc.Store.ListMemories(ctx, store.MemoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("scanner: list memories: %w", err)
	}
	focus := map[string]bool{memoryID: true}
	return sc.run(ctx, memories, focus, dmmtypes.ScanIncremental, start, finish)
}

// ScanTargeted scans only the given memory ids against the rest of the
// corpus, for an operator-triggered re-check of a specific set.
func (sc *Scanner) ScanTargeted(ctx context.Context, memoryIDs []string, start, finish time.Time) (*dmmtypes.ScanRecord, error) {
	memories, err := sc.Store.ListMemories(ctx, store.MemoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("scanner: list memories: %w", err)
	}
	focus := make(map[string]bool, len(memoryIDs))
	for _, id := range memoryIDs {
		focus[id] = true
	}
	return sc.run(ctx, memories, focus, dmmtypes.ScanTargeted, start, finish)
}

// DuePeriodic reports whether a periodic scan should run now, given the
// last persisted periodic scan record and the configured interval.
func (sc *Scanner) DuePeriodic(ctx context.Context, interval time.Duration, now time.Time) (bool, error) {
	last, err := sc.Store.LastScan(ctx, dmmtypes.ScanPeriodic)
	if dmmerrors.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("scanner: last periodic scan: %w", err)
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(last.CompletedAt) >= interval, nil
}

func (sc *Scanner) run(ctx context.Context, memories []*dmmtypes.Memory, focus map[string]bool, scanType dmmtypes.ScanType, start, finish time.Time) (*dmmtypes.ScanRecord, error) {
	scanID := idgen.NewScanID(start, len(memories))
	byID := make(map[string]*dmmtypes.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	var candidates []analyzer.Candidate
	var methodsUsed []dmmtypes.DetectionMethod
	var errs []string

	for _, a := range sc.Analyzers {
		found, err := a.Scan(ctx, memories, focus)
		if err != nil {
			dmmlog.Warn(dmmlog.CategoryScan, "analyzer %s failed: %v", a.Method(), err)
			errs = append(errs, fmt.Sprintf("%s: %v", a.Method(), err))
			continue
		}
		if len(found) > 0 {
			methodsUsed = append(methodsUsed, a.Method())
		}
		candidates = append(candidates, found...)
	}

	mergeResult, err := sc.Merger.MergeAndPersist(ctx, candidates, byID, scanID, finish)
	if err != nil {
		errs = append(errs, err.Error())
		mergeResult = &merge.Result{}
	}

	record := &dmmtypes.ScanRecord{
		ScanID:          scanID,
		ScanType:        scanType,
		StartedAt:       start,
		CompletedAt:     finish,
		DurationMS:      finish.Sub(start).Milliseconds(),
		MemoriesScanned: len(memories),
		MethodsUsed:     methodsUsed,
		Detected:        len(candidates),
		New:             mergeResult.NewConflicts,
		Existing:        mergeResult.ExistingConflicts,
		Errors:          errs,
	}

	if err := sc.Store.PutScanRecord(ctx, record); err != nil {
		return record, fmt.Errorf("scanner: persist scan record %s: %w", scanID, err)
	}

	dmmlog.Info(dmmlog.CategoryScan, "scan %s (%s): %d memories, %d detected, %d new, %d existing",
		scanID, scanType, record.MemoriesScanned, record.Detected, record.New, record.Existing)

	return record, nil
}
