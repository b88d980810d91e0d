// Package proposal implements the durable write-proposal queue described in
// spec.md §4.6: a transactional, append-only history sits atop the Store's
// raw persistence methods, enforcing the status-transition table so a
// proposal can never skip states (e.g. PENDING straight to COMMITTED).
package proposal

import (
	"context"
	"fmt"
	"time"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/idgen"
	"github.com/dmmcore/dmm/internal/store"
)

// Queue is a thin business-logic layer over store.Store's proposal methods.
type Queue struct {
	Store store.Store
}

// New constructs a Queue backed by s.
func New(s store.Store) *Queue {
	return &Queue{Store: s}
}

// Enqueue assigns a new proposal id, stamps it PENDING, persists it, and
// appends the opening history entry (spec.md §4.6 enqueue).
func (q *Queue) Enqueue(ctx context.Context, p *dmmtypes.WriteProposal, now time.Time) (*dmmtypes.WriteProposal, error) {
	if p.ProposalID == "" {
		p.ProposalID = idgen.NewProposalID(p.ProposedBy, p.TargetPath, 0)
	}
	p.CreatedAt = now.UTC()
	p.Status = dmmtypes.StatusPending

	if err := q.Store.PutProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("proposal: enqueue %s: %w", p.ProposalID, err)
	}
	if err := q.Store.AppendProposalHistory(ctx, &dmmtypes.HistoryEntry{
		ProposalID: p.ProposalID,
		FromStatus: "",
		ToStatus:   dmmtypes.StatusPending,
		Action:     "enqueue",
		Timestamp:  now.UTC(),
	}); err != nil {
		return nil, fmt.Errorf("proposal: record enqueue history %s: %w", p.ProposalID, err)
	}

	dmmlog.Info(dmmlog.CategoryQueue, "enqueued proposal %s (%s %s)", p.ProposalID, p.Type, p.TargetPath)
	return p, nil
}

// Get returns one proposal by id.
func (q *Queue) Get(ctx context.Context, id string) (*dmmtypes.WriteProposal, error) {
	return q.Store.GetProposal(ctx, id)
}

// GetPending returns up to limit PENDING proposals (0 means unbounded).
func (q *Queue) GetPending(ctx context.Context, limit int) ([]*dmmtypes.WriteProposal, error) {
	return q.GetByStatus(ctx, dmmtypes.StatusPending, limit)
}

// GetByStatus returns up to limit proposals in the given status.
func (q *Queue) GetByStatus(ctx context.Context, status dmmtypes.ProposalStatus, limit int) ([]*dmmtypes.WriteProposal, error) {
	all, err := q.Store.ListProposals(ctx, status)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// HasPendingForPath reports whether an un-terminal proposal already targets
// path, used by the Reviewer to avoid racing proposals for the same file
// (spec.md §4.7).
func (q *Queue) HasPendingForPath(ctx context.Context, path string) (bool, error) {
	return q.Store.HasPendingForPath(ctx, path)
}

// UpdateStatus validates the transition against the state machine in
// spec.md §4.6, persists the new status, and appends a history entry
// atomically from the caller's point of view (both writes succeed or the
// caller sees an error and nothing changed).
func (q *Queue) UpdateStatus(ctx context.Context, id string, newStatus dmmtypes.ProposalStatus, action, notes string, now time.Time) (*dmmtypes.WriteProposal, error) {
	p, err := q.Store.GetProposal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("proposal: update status %s: %w", id, err)
	}

	if !dmmtypes.CanTransition(p.Status, newStatus) {
		return nil, &dmmerrors.ProposalError{
			Reason:  "invalid status transition",
			Details: fmt.Sprintf("%s -> %s not allowed for proposal %s", p.Status, newStatus, id),
		}
	}

	from := p.Status
	p.Status = newStatus
	if notes != "" {
		p.ReviewNotes = notes
	}

	tx, err := q.Store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("proposal: begin status update %s: %w", id, err)
	}
	if err := tx.PutProposal(ctx, p); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("proposal: persist status %s: %w", id, err)
	}
	if err := tx.AppendProposalHistory(ctx, &dmmtypes.HistoryEntry{
		ProposalID: id,
		FromStatus: from,
		ToStatus:   newStatus,
		Action:     action,
		Notes:      notes,
		Timestamp:  now.UTC(),
	}); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("proposal: record status history %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("proposal: commit status update %s: %w", id, err)
	}

	dmmlog.Info(dmmlog.CategoryQueue, "proposal %s: %s -> %s (%s)", id, from, newStatus, action)
	return p, nil
}

// SetCommitError records a commit failure message without forcing a status
// transition, matching spec.md §4.6's set_commit_error (the proposal stays
// wherever the Commit Engine left it, typically APPROVED/MODIFIED, and a
// caller later retries by driving it back to PENDING).
func (q *Queue) SetCommitError(ctx context.Context, id, message string) error {
	p, err := q.Store.GetProposal(ctx, id)
	if err != nil {
		return fmt.Errorf("proposal: set commit error %s: %w", id, err)
	}
	p.CommitError = message
	if err := q.Store.PutProposal(ctx, p); err != nil {
		return fmt.Errorf("proposal: persist commit error %s: %w", id, err)
	}
	dmmlog.Warn(dmmlog.CategoryQueue, "proposal %s commit error: %s", id, message)
	return nil
}

// GetHistory returns the full append-only transition log for one proposal.
func (q *Queue) GetHistory(ctx context.Context, id string) ([]*dmmtypes.HistoryEntry, error) {
	return q.Store.GetProposalHistory(ctx, id)
}

// GetStats returns queue totals and per-status/per-type counts (spec.md
// §4.6 get_stats).
func (q *Queue) GetStats(ctx context.Context) (*dmmtypes.QueueStats, error) {
	return q.Store.QueueStats(ctx)
}
