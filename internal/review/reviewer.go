package review

import (
	"context"
	"fmt"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/memfile"
	"github.com/dmmcore/dmm/internal/store"
)

// Reviewer evaluates one WriteProposal at a time, mirroring the Python
// ReviewerAgent.review()'s dispatch-by-type shape
// (original_source/src/dmm/reviewer/agent.py): schema, then quality, then
// duplicate detection, then a DecisionEngine collates the findings.
type Reviewer struct {
	Store     store.Store
	Quality   *QualityChecker
	Duplicate *DuplicateDetector
	Decision  *DecisionEngine
}

// New constructs a Reviewer from its three collaborators.
func New(s store.Store, quality *QualityChecker, duplicate *DuplicateDetector, decision *DecisionEngine) *Reviewer {
	return &Reviewer{Store: s, Quality: quality, Duplicate: duplicate, Decision: decision}
}

// Review dispatches to the type-specific review method and stamps the
// proposal id onto whatever Result comes back.
func (r *Reviewer) Review(ctx context.Context, p *dmmtypes.WriteProposal) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch p.Type {
	case dmmtypes.ProposalCreate:
		res, err = r.reviewCreate(ctx, p)
	case dmmtypes.ProposalUpdate:
		res, err = r.reviewUpdate(ctx, p)
	case dmmtypes.ProposalDeprecate:
		res, err = r.reviewDeprecate(ctx, p)
	case dmmtypes.ProposalPromote:
		res, err = r.reviewPromote(ctx, p)
	default:
		return nil, &dmmerrors.ReviewError{ProposalID: p.ProposalID, Err: fmt.Errorf("unknown proposal type %q", p.Type)}
	}
	if err != nil {
		return nil, &dmmerrors.ReviewError{ProposalID: p.ProposalID, Err: err}
	}
	res.ProposalID = p.ProposalID
	dmmlog.Info(dmmlog.CategoryReview, "proposal %s (%s): %s (confidence %.2f)", p.ProposalID, p.Type, res.Decision, res.Confidence)
	return res, nil
}

// reviewCreate parses and schema-validates the proposed content; a schema
// error rejects the proposal at once, with no quality or duplicate checks
// (spec.md §4.7 step 1). Otherwise it runs the quality checks and the
// duplicate search and collates them.
func (r *Reviewer) reviewCreate(ctx context.Context, p *dmmtypes.WriteProposal) (*Result, error) {
	parsed, err := memfile.Parse(p.TargetPath, p.Content)
	if err != nil {
		return rejectResultDetail(false, nil, nil, schemaFailureNote(err)), nil
	}
	mem := parsed.Memory

	issues := r.Quality.Check(mem)
	matches, hardDup, nearDup, err := r.Duplicate.Check(ctx, mem.Body, "")
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	return r.Decision.DecideCreate(mem, nil, issues, matches, hardDup, nearDup), nil
}

// reviewUpdate is reviewCreate's twin, with the target memory's own id
// excluded from the duplicate search (spec.md §4.7 step 4 note) so an
// update restating its own prior content is never flagged as a duplicate of
// itself.
func (r *Reviewer) reviewUpdate(ctx context.Context, p *dmmtypes.WriteProposal) (*Result, error) {
	if p.MemoryID == "" {
		return rejectResult(nil, nil, "update proposal missing target memory id"), nil
	}
	existing, err := r.Store.GetMemory(ctx, p.MemoryID)
	if err != nil {
		if dmmerrors.IsNotFound(err) {
			return rejectResult(nil, nil, "update target does not exist"), nil
		}
		return nil, fmt.Errorf("load update target: %w", err)
	}

	parsed, err := memfile.Parse(p.TargetPath, p.Content)
	if err != nil {
		return rejectResultDetail(false, nil, nil, schemaFailureNote(err)), nil
	}
	mem := parsed.Memory

	issues := r.Quality.Check(mem)
	matches, hardDup, nearDup, err := r.Duplicate.Check(ctx, mem.Body, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	return r.Decision.DecideUpdate(mem, nil, issues, matches, hardDup, nearDup), nil
}

// reviewDeprecate loads the target by id and defers the rest to the
// DecisionEngine's rules.
func (r *Reviewer) reviewDeprecate(ctx context.Context, p *dmmtypes.WriteProposal) (*Result, error) {
	target, err := r.lookupTarget(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.Decision.DecideDeprecate(target, p.DeprecationReason), nil
}

// reviewPromote loads the target by id and defers the rest to the
// DecisionEngine's rules.
func (r *Reviewer) reviewPromote(ctx context.Context, p *dmmtypes.WriteProposal) (*Result, error) {
	target, err := r.lookupTarget(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.Decision.DecidePromote(target, p.NewScope), nil
}

// lookupTarget resolves a non-CREATE proposal's target memory, tolerating a
// missing memory as a nil target (the DecisionEngine turns that into a
// REJECT) rather than surfacing a lookup error for the common case.
func (r *Reviewer) lookupTarget(ctx context.Context, p *dmmtypes.WriteProposal) (*dmmtypes.Memory, error) {
	if p.MemoryID == "" {
		return nil, nil
	}
	target, err := r.Store.GetMemory(ctx, p.MemoryID)
	if err != nil {
		if dmmerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load target %s: %w", p.MemoryID, err)
	}
	return target, nil
}

func schemaFailureNote(err error) string {
	return "schema validation failed: " + err.Error()
}
