// Package resolver executes resolution strategies against detected
// conflicts (spec.md §4.10), grounded on conflicts/resolver.py's
// ConflictResolver. Every mutating action runs through the same
// proposal-queue/commit-engine pipeline as an agent-submitted write, so a
// conflict resolution never bypasses the review/rollback guarantees
// internal/commit already provides.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/dmmcore/dmm/internal/commit"
	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/memfile"
	"github.com/dmmcore/dmm/internal/proposal"
	"github.com/dmmcore/dmm/internal/store"
)

// Action is a resolution strategy (spec.md §4.10).
type Action string

const (
	ActionDeprecate Action = "deprecate"
	ActionMerge     Action = "merge"
	ActionClarify   Action = "clarify"
	ActionDismiss   Action = "dismiss"
	ActionDefer     Action = "defer"
)

// Request describes one resolution attempt.
type Request struct {
	ConflictID string
	Action     Action

	// TargetMemoryID is required for ActionDeprecate: which of the
	// conflict's two memories to deprecate.
	TargetMemoryID string

	// MergedContent/MergedPath are required for ActionMerge: the full
	// markdown (frontmatter + body) of the new memory and the scope-rooted
	// path to write it at.
	MergedContent []byte
	MergedPath    string

	// Clarification is required for ActionClarify: free-text notes on how
	// the two memories' scopes/conditions were distinguished. Applying it
	// to the memories themselves is left to a follow-up UPDATE proposal;
	// the resolver only records the text as the conflict's resolution
	// reason.
	Clarification string

	DismissReason string
	Reason        string
	ResolvedBy    string
}

// Result mirrors resolver.py's ResolutionResult.
type Result struct {
	Success             bool
	ConflictID          string
	ActionTaken         Action
	MemoriesModified    []string
	MemoriesDeprecated  []string
	MemoriesCreated     []string
	Error               string
}

// Resolver executes resolution requests against persisted conflicts.
type Resolver struct {
	Store     store.Store
	Proposals *proposal.Queue
	Commit    *commit.Engine
}

// New builds a Resolver.
func New(s store.Store, proposals *proposal.Queue, commitEngine *commit.Engine) *Resolver {
	return &Resolver{Store: s, Proposals: proposals, Commit: commitEngine}
}

// Resolve executes request.Action against the conflict, moving it through
// unresolved -> in_progress -> resolved|dismissed, or reverting it to
// unresolved if the action fails (spec.md §4.10).
func (r *Resolver) Resolve(ctx context.Context, req *Request, now time.Time) (*Result, error) {
	conflict, err := r.Store.GetConflict(ctx, req.ConflictID)
	if err != nil {
		if dmmerrors.IsNotFound(err) {
			return nil, &dmmerrors.ConflictNotFoundError{ConflictID: req.ConflictID}
		}
		return nil, fmt.Errorf("resolver: load conflict %s: %w", req.ConflictID, err)
	}

	if conflict.Status == dmmtypes.ConflictResolved || conflict.Status == dmmtypes.ConflictDismissed {
		return &Result{
			Success: false, ConflictID: req.ConflictID, ActionTaken: req.Action,
			Error: fmt.Sprintf("conflict already resolved with action: %s", conflict.ResolutionAction),
		}, nil
	}

	conflict.Status = dmmtypes.ConflictInProgress
	if err := r.Store.PutConflict(ctx, conflict); err != nil {
		return nil, fmt.Errorf("resolver: mark in progress %s: %w", req.ConflictID, err)
	}

	var res *Result
	var actionErr error
	switch req.Action {
	case ActionDeprecate:
		res, actionErr = r.resolveDeprecate(ctx, conflict, req, now)
	case ActionMerge:
		res, actionErr = r.resolveMerge(ctx, conflict, req, now)
	case ActionClarify:
		res, actionErr = r.resolveClarify(ctx, conflict, req, now)
	case ActionDismiss:
		res, actionErr = r.resolveDismiss(ctx, conflict, req, now)
	case ActionDefer:
		res, actionErr = r.resolveDefer(ctx, conflict, req, now)
	default:
		actionErr = fmt.Errorf("unknown resolution action %q", req.Action)
	}

	if actionErr != nil {
		conflict.Status = dmmtypes.ConflictUnresolved
		_ = r.Store.PutConflict(ctx, conflict)
		return nil, &dmmerrors.ConflictResolutionError{ConflictID: req.ConflictID, Action: string(req.Action), Err: actionErr}
	}

	// A handler can also report failure without returning a Go error (a
	// missing required field, an already-deprecated target); spec.md §4.10
	// reverts to unresolved on any failure, not only a hard error.
	if res != nil && !res.Success {
		conflict.Status = dmmtypes.ConflictUnresolved
		_ = r.Store.PutConflict(ctx, conflict)
		return res, nil
	}

	dmmlog.Info(dmmlog.CategoryCommit, "resolved conflict %s via %s", req.ConflictID, req.Action)
	return res, nil
}

func (r *Resolver) resolveDeprecate(ctx context.Context, conflict *dmmtypes.Conflict, req *Request, now time.Time) (*Result, error) {
	if req.TargetMemoryID == "" {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionDeprecate, Error: "target_memory_id is required for deprecate action"}, nil
	}

	var target, other *dmmtypes.ConflictMemory
	for i := range conflict.Memories {
		if conflict.Memories[i].MemoryID == req.TargetMemoryID {
			target = &conflict.Memories[i]
		} else {
			other = &conflict.Memories[i]
		}
	}
	if target == nil {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionDeprecate, Error: fmt.Sprintf("memory %s not found in conflict", req.TargetMemoryID)}, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = "conflict resolution: superseded by another memory"
		if other != nil {
			reason = fmt.Sprintf("conflict resolution: superseded by %s", other.MemoryID)
		}
	}

	if err := r.deprecateMemory(ctx, target.MemoryID, reason, now); err != nil {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionDeprecate, Error: err.Error()}, nil
	}

	r.markResolved(conflict, ActionDeprecate, req, now)
	if err := r.Store.PutConflict(ctx, conflict); err != nil {
		return nil, err
	}

	var modified []string
	if other != nil {
		modified = []string{other.MemoryID}
	}
	return &Result{
		Success: true, ConflictID: conflict.ConflictID, ActionTaken: ActionDeprecate,
		MemoriesDeprecated: []string{target.MemoryID}, MemoriesModified: modified,
	}, nil
}

func (r *Resolver) resolveMerge(ctx context.Context, conflict *dmmtypes.Conflict, req *Request, now time.Time) (*Result, error) {
	if len(req.MergedContent) == 0 {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionMerge, Error: "merged content is required for merge action"}, nil
	}
	if req.MergedPath == "" {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionMerge, Error: "merged path is required for merge action"}, nil
	}

	parsed, err := memfile.Parse(req.MergedPath, req.MergedContent)
	if err != nil {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionMerge, Error: fmt.Sprintf("merged content does not parse: %v", err)}, nil
	}

	createProposal := &dmmtypes.WriteProposal{
		ProposedBy: "conflict_resolver",
		Type:       dmmtypes.ProposalCreate,
		TargetPath: req.MergedPath,
		Content:    req.MergedContent,
		Reason:     "merge resolution for conflict " + conflict.ConflictID,
	}
	if err := r.runProposal(ctx, createProposal, now); err != nil {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionMerge, Error: err.Error()}, nil
	}

	var deprecated []string
	for _, cm := range conflict.Memories {
		if err := r.deprecateMemory(ctx, cm.MemoryID, "merged into new memory as part of conflict resolution", now); err != nil {
			dmmlog.Warn(dmmlog.CategoryCommit, "merge resolution: could not deprecate %s: %v", cm.MemoryID, err)
			continue
		}
		deprecated = append(deprecated, cm.MemoryID)
	}

	r.markResolved(conflict, ActionMerge, req, now)
	if err := r.Store.PutConflict(ctx, conflict); err != nil {
		return nil, err
	}

	return &Result{
		Success: true, ConflictID: conflict.ConflictID, ActionTaken: ActionMerge,
		MemoriesDeprecated: deprecated, MemoriesCreated: []string{parsed.Memory.ID},
	}, nil
}

func (r *Resolver) resolveClarify(ctx context.Context, conflict *dmmtypes.Conflict, req *Request, now time.Time) (*Result, error) {
	if req.Clarification == "" {
		return &Result{Success: false, ConflictID: conflict.ConflictID, ActionTaken: ActionClarify, Error: "clarification is required for clarify action"}, nil
	}

	r.markResolved(conflict, ActionClarify, req, now)
	conflict.ResolutionReason = req.Clarification
	if req.Reason != "" {
		conflict.ResolutionReason = req.Reason + ": " + req.Clarification
	}
	if err := r.Store.PutConflict(ctx, conflict); err != nil {
		return nil, err
	}

	modified := make([]string, len(conflict.Memories))
	for i, cm := range conflict.Memories {
		modified[i] = cm.MemoryID
	}
	return &Result{Success: true, ConflictID: conflict.ConflictID, ActionTaken: ActionClarify, MemoriesModified: modified}, nil
}

func (r *Resolver) resolveDismiss(ctx context.Context, conflict *dmmtypes.Conflict, req *Request, now time.Time) (*Result, error) {
	reason := req.DismissReason
	if reason == "" {
		reason = req.Reason
	}
	if reason == "" {
		reason = "marked as false positive"
	}

	conflict.Status = dmmtypes.ConflictDismissed
	conflict.ResolvedAt = &now
	conflict.ResolutionAction = string(ActionDismiss)
	conflict.ResolutionReason = reason
	conflict.ResolvedBy = req.ResolvedBy
	if err := r.Store.PutConflict(ctx, conflict); err != nil {
		return nil, err
	}

	return &Result{Success: true, ConflictID: conflict.ConflictID, ActionTaken: ActionDismiss}, nil
}

func (r *Resolver) resolveDefer(ctx context.Context, conflict *dmmtypes.Conflict, req *Request, now time.Time) (*Result, error) {
	conflict.Status = dmmtypes.ConflictUnresolved
	if err := r.Store.PutConflict(ctx, conflict); err != nil {
		return nil, err
	}
	return &Result{Success: true, ConflictID: conflict.ConflictID, ActionTaken: ActionDefer}, nil
}

func (r *Resolver) markResolved(conflict *dmmtypes.Conflict, action Action, req *Request, now time.Time) {
	conflict.Status = dmmtypes.ConflictResolved
	conflict.ResolvedAt = &now
	conflict.ResolutionAction = string(action)
	conflict.ResolutionTarget = req.TargetMemoryID
	conflict.ResolutionReason = req.Reason
	conflict.ResolvedBy = req.ResolvedBy
}

// deprecateMemory runs a DEPRECATE proposal through the full
// enqueue/approve/commit pipeline. A memory that is missing or already
// deprecated is treated as a no-op success, matching resolver.py's
// idempotent _deprecate_memory.
func (r *Resolver) deprecateMemory(ctx context.Context, memoryID, reason string, now time.Time) error {
	mem, err := r.Store.GetMemory(ctx, memoryID)
	if err != nil {
		if dmmerrors.IsNotFound(err) {
			dmmlog.Warn(dmmlog.CategoryCommit, "memory not found for deprecation: %s", memoryID)
			return nil
		}
		return err
	}
	if mem.Status == dmmtypes.StatusDeprecated {
		return nil
	}

	p := &dmmtypes.WriteProposal{
		ProposedBy:        "conflict_resolver",
		Type:              dmmtypes.ProposalDeprecate,
		TargetPath:        mem.Path,
		MemoryID:          mem.ID,
		DeprecationReason: reason,
	}
	return r.runProposal(ctx, p, now)
}

// runProposal enqueues p, advances it straight through review to approved
// (a conflict resolution is itself a human- or system-authorized action,
// so it does not re-enter the Reviewer's quality/duplicate gate), then
// commits it.
func (r *Resolver) runProposal(ctx context.Context, p *dmmtypes.WriteProposal, now time.Time) error {
	if _, err := r.Proposals.Enqueue(ctx, p, now); err != nil {
		return err
	}
	if _, err := r.Proposals.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusInReview, "conflict_resolver", "", now); err != nil {
		return err
	}
	if _, err := r.Proposals.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusApproved, "conflict_resolver", "", now); err != nil {
		return err
	}
	res, err := r.Commit.Commit(ctx, p.ProposalID, now)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("commit failed: %s", res.Error)
	}
	return nil
}
