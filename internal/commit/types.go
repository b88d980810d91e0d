package commit

// Result is the Commit Engine's outcome for one proposal (spec.md §4.8).
type Result struct {
	ProposalID       string
	Success          bool
	NewPath          string
	RollbackPerformed bool
	RollbackSuccess  bool
	Error            string
}
