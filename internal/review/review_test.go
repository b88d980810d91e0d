package review_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/review"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/sqlitestore"
)

func newTestStore(t *testing.T) *sqlitestore.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmm.db")
	s, err := sqlitestore.Open(context.Background(), path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putIndexedMemory(t *testing.T, ctx context.Context, s store.Store, embedder embed.Embedder, m *dmmtypes.Memory) {
	t.Helper()
	require.NoError(t, s.PutMemory(ctx, m))
	vecs, err := embedder.Embed(ctx, []string{m.Body})
	require.NoError(t, err)
	require.NoError(t, s.PutEmbedding(ctx, m.ID, store.EmbeddingComposite, vecs[0]))
}

func newReviewer(t *testing.T, s store.Store) *review.Reviewer {
	embedder := embed.NewHashEmbedder()
	quality := review.NewQualityChecker(1200)
	dup := review.NewDuplicateDetector(s, embedder, 0.95, 0.85)
	decision := review.NewDecisionEngine(0.9, true)
	return review.New(s, quality, dup, decision)
}

const wellFormedBody = `This describes why we return errors explicitly instead of panicking
across package boundaries. The reason is that panics cross API
boundaries in ways callers cannot recover from cleanly, so library
code that other packages rely on for control flow should always
prefer an explicit error return. Because callers need to decide how
to react to a failure, hiding it behind a panic takes that choice
away from them and makes every call site a potential crash site.

In practice this means every exported function that can fail returns an
error as its last result, and wraps lower-level failures with enough
context for the caller to tell which operation went wrong. Callers can
then retry, fall back to a default, report the problem to a user, or
pass it further up the stack, and each of those choices stays visible in
the code at the call site. A reviewer reading the function signature
knows immediately that failure is possible and can check that every
caller handles it, which is much harder when a panic can surface from
any nested call without warning. The same rule applies to constructors
and to methods on long-lived objects.

## Rationale

This is because a panic unwinds through goroutines the caller does
not control, and because library code typically has no context about
whether a crash is acceptable for the embedding application.

Panics remain appropriate for programmer errors that indicate a broken
invariant inside a single package, such as an impossible switch case or
a nil map that the package itself failed to initialize. Those are bugs
to be fixed rather than conditions for a caller to handle, and a panic
makes them loud during development. Even then, a package that recovers
from its own panics at the boundary should convert them back into an
ordinary error before returning, so that nothing outside the package
ever needs a deferred recover to stay alive. Tests for such packages
should exercise the error paths directly instead of relying on
recovered panics.
`

func wellFormedMemory(id, path string) *dmmtypes.Memory {
	return &dmmtypes.Memory{
		ID: id, Path: path, Title: "Prefer Explicit Error Returns",
		Body: wellFormedBody, TokenCount: 320,
		Tags: []string{"go", "errors"}, Scope: dmmtypes.ScopeProject, Priority: 0.8,
		Confidence: dmmtypes.ConfidenceStable, Status: dmmtypes.StatusActive,
	}
}

func proposalFor(mem *dmmtypes.Memory) *dmmtypes.WriteProposal {
	content := "---\nid: " + mem.ID + "\ntitle: " + mem.Title + "\nscope: " + string(mem.Scope) +
		"\npriority: 0.8\nconfidence: stable\nstatus: active\ntags: [go, errors]\n---\n\n" + mem.Body
	return &dmmtypes.WriteProposal{
		ProposalID: "prop_1", ProposedBy: "agent-1", Type: dmmtypes.ProposalCreate,
		TargetPath: mem.Path, Content: []byte(content), Reason: "new convention",
	}
}

func TestQualityCheckerFlagsVagueTitleAndFewTags(t *testing.T) {
	mem := &dmmtypes.Memory{
		Title: "Notes", Body: "short body", Tags: []string{"misc"}, TokenCount: 50,
	}
	qc := review.NewQualityChecker(1200)
	issues := qc.Check(mem)

	codes := make(map[string]bool)
	for _, i := range issues {
		codes[i.Code] = true
	}
	assert.True(t, codes["vague_title"])
	assert.True(t, codes["too_few_tags"])
	assert.True(t, codes["vague_tag"])
	assert.True(t, codes["token_count_low"])
	assert.True(t, codes["missing_rationale"])
}

func TestQualityCheckerPassesWellFormedMemory(t *testing.T) {
	qc := review.NewQualityChecker(1200)
	issues := qc.Check(wellFormedMemory("mem_1", "project/errors.md"))
	for _, i := range issues {
		assert.NotEqual(t, review.SeverityError, i.Severity, "unexpected error issue: %+v", i)
	}
}

func TestDuplicateDetectorFindsHardDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	putIndexedMemory(t, ctx, s, embedder, wellFormedMemory("mem_existing", "project/errors.md"))

	det := review.NewDuplicateDetector(s, embedder, 0.95, 0.85)
	matches, hardDup, _, err := det.Check(ctx, wellFormedBody, "")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.True(t, hardDup)
	assert.Equal(t, "mem_existing", matches[0].MemoryID)
}

func TestDuplicateDetectorExcludesTargetID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	putIndexedMemory(t, ctx, s, embedder, wellFormedMemory("mem_existing", "project/errors.md"))

	det := review.NewDuplicateDetector(s, embedder, 0.95, 0.85)
	matches, hardDup, nearDup, err := det.Check(ctx, wellFormedBody, "mem_existing")
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.False(t, hardDup)
	assert.False(t, nearDup)
}

func TestDecisionEngineRejectsOnHardDuplicate(t *testing.T) {
	mem := wellFormedMemory("mem_new", "project/errors2.md")
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecideCreate(mem, nil, nil, []review.DuplicateMatch{{MemoryID: "mem_existing", Score: 0.99}}, true, false)
	assert.Equal(t, review.DecisionReject, res.Decision)
}

func TestDecisionEngineDefersBaselineScope(t *testing.T) {
	mem := wellFormedMemory("mem_new", "baseline/rule.md")
	mem.Scope = dmmtypes.ScopeBaseline
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecideCreate(mem, nil, nil, nil, false, false)
	assert.Equal(t, review.DecisionDefer, res.Decision)
}

func TestDecisionEngineApprovesCleanProposal(t *testing.T) {
	mem := wellFormedMemory("mem_new", "project/errors2.md")
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecideCreate(mem, nil, nil, nil, false, false)
	assert.Equal(t, review.DecisionApprove, res.Decision)
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
}

func TestDecisionEngineDeprecateRejectsShortReason(t *testing.T) {
	target := wellFormedMemory("mem_existing", "project/errors.md")
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecideDeprecate(target, "too short")
	assert.Equal(t, review.DecisionReject, res.Decision)
}

func TestDecisionEngineDeprecateApprovesProjectScope(t *testing.T) {
	target := wellFormedMemory("mem_existing", "project/errors.md")
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecideDeprecate(target, "superseded by a clearer guideline written last week")
	assert.Equal(t, review.DecisionApprove, res.Decision)
}

func TestDecisionEnginePromoteDefersDemotion(t *testing.T) {
	target := wellFormedMemory("mem_existing", "global/rule.md")
	target.Scope = dmmtypes.ScopeGlobal
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecidePromote(target, dmmtypes.ScopeProject)
	assert.Equal(t, review.DecisionDefer, res.Decision)
}

func TestDecisionEnginePromoteApprovesUpgrade(t *testing.T) {
	target := wellFormedMemory("mem_existing", "project/rule.md")
	eng := review.NewDecisionEngine(0.9, true)
	res := eng.DecidePromote(target, dmmtypes.ScopeGlobal)
	assert.Equal(t, review.DecisionApprove, res.Decision)
}

func TestReviewerApprovesCleanCreateProposal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReviewer(t, s)

	mem := wellFormedMemory("mem_new", "project/errors2.md")
	res, err := r.Review(ctx, proposalFor(mem))
	require.NoError(t, err)
	assert.Equal(t, review.DecisionApprove, res.Decision)
	assert.Equal(t, "prop_1", res.ProposalID)
}

func TestReviewerRejectsMalformedContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReviewer(t, s)

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_bad", Type: dmmtypes.ProposalCreate,
		TargetPath: "project/broken.md", Content: []byte("---\ntitle: no id\n---\n\nbody\n"),
	}
	res, err := r.Review(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, review.DecisionReject, res.Decision)
	assert.False(t, res.SchemaValid)
}

func TestReviewerDeprecateRejectsMissingTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := newReviewer(t, s)

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_dep", Type: dmmtypes.ProposalDeprecate,
		MemoryID: "mem_missing", DeprecationReason: "no longer applies to this project",
	}
	res, err := r.Review(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, review.DecisionReject, res.Decision)
}

func TestReviewerDeprecateApprovesExistingTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	mem := wellFormedMemory("mem_old", "project/old.md")
	putIndexedMemory(t, ctx, s, embedder, mem)
	r := newReviewer(t, s)

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_dep2", Type: dmmtypes.ProposalDeprecate,
		MemoryID: "mem_old", DeprecationReason: "replaced by a newer convention doc",
	}
	res, err := r.Review(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, review.DecisionApprove, res.Decision)
}

func TestReviewerPromoteValidatesNewScope(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewHashEmbedder()
	mem := wellFormedMemory("mem_proj", "project/rule.md")
	putIndexedMemory(t, ctx, s, embedder, mem)
	r := newReviewer(t, s)

	p := &dmmtypes.WriteProposal{
		ProposalID: "prop_promote", Type: dmmtypes.ProposalPromote,
		MemoryID: "mem_proj", NewScope: dmmtypes.Scope("not-a-scope"),
	}
	res, err := r.Review(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, review.DecisionReject, res.Decision)
}
