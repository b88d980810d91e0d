// Package review implements the Reviewer described in spec.md §4.7: a pure
// function over a proposal and a store snapshot that decides APPROVE,
// DEFER, or REJECT, backed by a schema check (the Parser's own rules), a
// Quality Checker, a Duplicate Detector, and a DecisionEngine that collates
// their output, mirroring the original Python reviewer's agent/validators
// split (original_source/src/dmm/reviewer).
package review

// Decision is the Reviewer's verdict on a proposal.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDefer   Decision = "DEFER"
	DecisionReject  Decision = "REJECT"
)

// IssueSeverity classifies a QualityIssue's weight in the decision.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityInfo    IssueSeverity = "info"
)

// QualityIssue is one finding from the Quality Checker (spec.md §4.7 step
// 3): token count, structure, title, body, tag, or coherence problems.
type QualityIssue struct {
	Code       string
	Message    string
	Severity   IssueSeverity
	Field      string
	Suggestion string
}

// DuplicateMatch is one existing memory whose composite embedding is
// similar enough to the proposed content to matter (spec.md §4.7 step 4).
type DuplicateMatch struct {
	MemoryID string
	Path     string
	Score    float64
}

// Result is the Reviewer's full output (spec.md §4.7).
type Result struct {
	ProposalID           string
	Decision             Decision
	Confidence           float64
	SchemaValid          bool
	QualityValid         bool
	DuplicateCheckPassed bool
	Issues               []QualityIssue
	Duplicates           []DuplicateMatch
	Notes                string
}

// hasErrors reports whether any issue in issues is severity error.
func hasErrors(issues []QualityIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// hasWarnings reports whether any issue in issues is severity warning (or
// worse).
func hasWarnings(issues []QualityIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityWarning || i.Severity == SeverityError {
			return true
		}
	}
	return false
}
