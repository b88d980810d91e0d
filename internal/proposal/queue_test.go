package proposal_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/proposal"
	"github.com/dmmcore/dmm/internal/store/sqlitestore"
)

func newTestQueue(t *testing.T) *proposal.Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmm.db")
	s, err := sqlitestore.Open(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return proposal.New(s)
}

func sampleProposal() *dmmtypes.WriteProposal {
	return &dmmtypes.WriteProposal{
		ProposedBy: "agent-1",
		Type:       dmmtypes.ProposalCreate,
		TargetPath: "project/new_rule.md",
		Content:    []byte("---\nid: mem_x\n---\n\nbody\n"),
		Reason:     "learned a new convention",
	}
}

func TestEnqueueSetsPendingAndHistory(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p, err := q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusPending, p.Status)
	assert.NotEmpty(t, p.ProposalID)

	hist, err := q.GetHistory(ctx, p.ProposalID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, dmmtypes.StatusPending, hist[0].ToStatus)
}

func TestGetPendingReturnsOnlyPendingProposals(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p1, err := q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)
	p2 := sampleProposal()
	p2.TargetPath = "project/other.md"
	p2, err = q.Enqueue(ctx, p2, now)
	require.NoError(t, err)

	_, err = q.UpdateStatus(ctx, p2.ProposalID, dmmtypes.StatusInReview, "review", "", now)
	require.NoError(t, err)

	pending, err := q.GetPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, p1.ProposalID, pending[0].ProposalID)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p, err := q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)

	_, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusCommitted, "skip review", "", now)
	require.Error(t, err)
}

func TestUpdateStatusFollowsFullLifecycle(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p, err := q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)

	p, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusInReview, "review", "looks fine", now)
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusInReview, p.Status)

	p, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusApproved, "approve", "", now)
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusApproved, p.Status)

	p, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusCommitted, "commit", "", now)
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusCommitted, p.Status)

	hist, err := q.GetHistory(ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Len(t, hist, 4)
}

func TestHasPendingForPathReflectsQueueState(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	has, err := q.HasPendingForPath(ctx, "project/new_rule.md")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)

	has, err = q.HasPendingForPath(ctx, "project/new_rule.md")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSetCommitErrorRecordsMessageWithoutChangingStatus(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	p, err := q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)
	p, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusInReview, "review", "", now)
	require.NoError(t, err)
	p, err = q.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusApproved, "approve", "", now)
	require.NoError(t, err)

	require.NoError(t, q.SetCommitError(ctx, p.ProposalID, "disk full"))

	got, err := q.Get(ctx, p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, dmmtypes.StatusApproved, got.Status)
	assert.Equal(t, "disk full", got.CommitError)
}

func TestGetStatsCountsByStatusAndType(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	_, err := q.Enqueue(ctx, sampleProposal(), now)
	require.NoError(t, err)
	p2 := sampleProposal()
	p2.TargetPath = "project/other.md"
	p2.Type = dmmtypes.ProposalUpdate
	_, err = q.Enqueue(ctx, p2, now)
	require.NoError(t, err)

	stats, err := q.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[dmmtypes.StatusPending])
	assert.Equal(t, 1, stats.ByType[dmmtypes.ProposalCreate])
	assert.Equal(t, 1, stats.ByType[dmmtypes.ProposalUpdate])
}
