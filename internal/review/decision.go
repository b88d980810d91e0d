package review

import "github.com/dmmcore/dmm/internal/dmmtypes"

// Confidence penalties. spec.md §4.7 step 5 requires comparing an "overall
// confidence" against auto_approve_threshold but, unlike the Merger's
// explicit formula in §4.9.4, leaves the confidence computation itself
// unspecified. We start every proposal at 1.0 and subtract a penalty per
// quality issue (scaled by severity) and per duplicate match (scaled by how
// close it is to the hard-duplicate line), mirroring the Merger's instinct
// that confidence degrades from a ceiling as distinct problems accumulate.
const (
	errorPenalty   = 0.5
	warningPenalty = 0.15
	infoPenalty    = 0.03

	minDeprecationReasonLen = 10
)

// DecisionEngine collates a QualityChecker's issues and a DuplicateDetector's
// matches into the APPROVE/DEFER/REJECT verdict spec.md §4.7 describes, one
// method per proposal type since each type's rules differ.
type DecisionEngine struct {
	AutoApproveThreshold float64
	AutoApproveCreate    bool
}

// NewDecisionEngine returns an engine using cfg's recipe thresholds.
func NewDecisionEngine(autoApproveThreshold float64, autoApproveCreate bool) *DecisionEngine {
	return &DecisionEngine{AutoApproveThreshold: autoApproveThreshold, AutoApproveCreate: autoApproveCreate}
}

// confidence folds issues and duplicate matches into a single [0, 1] score.
func confidence(issues []QualityIssue, matches []DuplicateMatch) float64 {
	c := 1.0
	for _, i := range issues {
		switch i.Severity {
		case SeverityError:
			c -= errorPenalty
		case SeverityWarning:
			c -= warningPenalty
		case SeverityInfo:
			c -= infoPenalty
		}
	}
	for _, m := range matches {
		c -= m.Score * warningPenalty
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// DecideCreate implements spec.md §4.7's CREATE rules: a schema error or
// hard duplicate is a REJECT, a baseline target or near duplicate or any
// quality warning defers to a human, and anything else auto-approves once
// confidence clears the threshold.
func (e *DecisionEngine) DecideCreate(mem *dmmtypes.Memory, schemaErr error, issues []QualityIssue, matches []DuplicateMatch, hardDup, nearDup bool) *Result {
	if schemaErr != nil {
		return rejectResultDetail(false, issues, matches, "schema validation failed: "+schemaErr.Error())
	}
	if hardDup {
		return rejectResultDetail(true, issues, matches, "near-identical memory already exists")
	}
	if hasErrors(issues) {
		return rejectResultDetail(true, issues, matches, "quality check found blocking issues")
	}

	c := confidence(issues, matches)

	if mem.Scope == dmmtypes.ScopeBaseline {
		return deferResult(c, issues, matches, "baseline-scope proposals always require human review")
	}
	if nearDup {
		return deferResult(c, issues, matches, "similar existing memory found, needs human judgment")
	}
	if hasWarnings(issues) {
		return deferResult(c, issues, matches, "quality warnings present")
	}
	if e.AutoApproveCreate && c >= e.AutoApproveThreshold {
		return approveResult(c, issues, matches, "")
	}
	return deferResult(c, issues, matches, "below auto-approve confidence threshold")
}

// DecideUpdate implements spec.md §4.7's UPDATE rules, the same shape as
// CREATE but checked against the updated memory's own prior composite
// embedding (the DuplicateDetector excludes the target id) so an update
// that merely restates the existing memory reads as zero-drift, not a
// duplicate of itself.
func (e *DecisionEngine) DecideUpdate(mem *dmmtypes.Memory, schemaErr error, issues []QualityIssue, matches []DuplicateMatch, hardDup, nearDup bool) *Result {
	return e.DecideCreate(mem, schemaErr, issues, matches, hardDup, nearDup)
}

// DecideDeprecate implements spec.md §4.7's DEPRECATE rules: the target
// must exist and not already be deprecated, the reason must clear a minimum
// length, and baseline targets always defer to a human regardless of reason
// quality.
func (e *DecisionEngine) DecideDeprecate(target *dmmtypes.Memory, reason string) *Result {
	if target == nil {
		return rejectResult(nil, nil, "deprecation target does not exist")
	}
	if target.Status == dmmtypes.StatusDeprecated {
		return rejectResult(nil, nil, "target is already deprecated")
	}
	if len(reason) < minDeprecationReasonLen {
		return rejectResult(nil, nil, "deprecation reason too short to justify the change")
	}
	if target.Scope == dmmtypes.ScopeBaseline {
		return deferResult(0.8, nil, nil, "baseline-scope deprecations always require human review")
	}
	return approveResult(0.9, nil, nil, "")
}

// DecidePromote implements spec.md §4.7's PROMOTE rules: the target must
// exist, the new scope must be a valid, different scope, a promotion *to*
// baseline always defers, a promotion *out of* baseline always defers, and a
// demotion (new scope ranks lower than the current one) also defers since it
// is effectively a trust downgrade.
func (e *DecisionEngine) DecidePromote(target *dmmtypes.Memory, newScope dmmtypes.Scope) *Result {
	if target == nil {
		return rejectResult(nil, nil, "promotion target does not exist")
	}
	if !newScope.Valid() {
		return rejectResult(nil, nil, "new scope is not a recognized scope")
	}
	if newScope == target.Scope {
		return rejectResult(nil, nil, "new scope matches the current scope")
	}
	if newScope == dmmtypes.ScopeBaseline {
		return deferResult(0.7, nil, nil, "promoting to baseline always requires human review")
	}
	if target.Scope == dmmtypes.ScopeBaseline {
		return deferResult(0.7, nil, nil, "demoting a baseline memory always requires human review")
	}
	if newScope.Rank() < target.Scope.Rank() {
		return deferResult(0.7, nil, nil, "scope change is a demotion, requires human review")
	}
	return approveResult(0.9, nil, nil, "")
}

// rejectResult builds a REJECT result for cases that never touched schema
// validation (deprecate/promote target checks, quality/duplicate rejects).
func rejectResult(issues []QualityIssue, matches []DuplicateMatch, notes string) *Result {
	return rejectResultDetail(true, issues, matches, notes)
}

// rejectResultDetail is rejectResult with an explicit schemaValid flag, used
// when the reject itself is the schema failure.
func rejectResultDetail(schemaValid bool, issues []QualityIssue, matches []DuplicateMatch, notes string) *Result {
	return &Result{
		Decision:     DecisionReject,
		Confidence:   0,
		SchemaValid:  schemaValid,
		QualityValid: schemaValid && !hasErrors(issues),
		Issues:       issues,
		Duplicates:   matches,
		Notes:        notes,
	}
}

func deferResult(c float64, issues []QualityIssue, matches []DuplicateMatch, notes string) *Result {
	return &Result{
		Decision:     DecisionDefer,
		Confidence:   c,
		SchemaValid:  true,
		QualityValid: !hasErrors(issues),
		Issues:       issues,
		Duplicates:   matches,
		Notes:        notes,
	}
}

func approveResult(c float64, issues []QualityIssue, matches []DuplicateMatch, notes string) *Result {
	return &Result{
		Decision:             DecisionApprove,
		Confidence:           c,
		SchemaValid:          true,
		QualityValid:         true,
		DuplicateCheckPassed: true,
		Issues:               issues,
		Duplicates:           matches,
		Notes:                notes,
	}
}
