package dmmtypes

import "time"

// ProposalType is the kind of mutation an agent is requesting.
type ProposalType string

const (
	ProposalCreate    ProposalType = "CREATE"
	ProposalUpdate    ProposalType = "UPDATE"
	ProposalDeprecate ProposalType = "DEPRECATE"
	ProposalPromote   ProposalType = "PROMOTE"
)

// ProposalStatus is a WriteProposal's position in the review/commit state
// machine (spec.md §4.6).
type ProposalStatus string

const (
	StatusPending    ProposalStatus = "PENDING"
	StatusInReview   ProposalStatus = "IN_REVIEW"
	StatusApproved   ProposalStatus = "APPROVED"
	StatusModified   ProposalStatus = "MODIFIED"
	StatusRejected   ProposalStatus = "REJECTED"
	StatusDeferred   ProposalStatus = "DEFERRED"
	StatusCommitted  ProposalStatus = "COMMITTED"
)

// allowedTransitions enumerates the status graph from spec.md §4.6. A
// transition not present here is rejected by the queue.
var allowedTransitions = map[ProposalStatus]map[ProposalStatus]bool{
	StatusPending: {
		StatusInReview: true,
		StatusRejected: true,
		StatusDeferred: true,
	},
	StatusInReview: {
		StatusApproved: true,
		StatusModified: true,
		StatusRejected: true,
		StatusDeferred: true,
		StatusPending:  true,
	},
	StatusApproved: {
		StatusCommitted: true,
		StatusPending:   true,
	},
	StatusModified: {
		StatusCommitted: true,
		StatusPending:   true,
	},
	StatusDeferred: {
		StatusApproved: true,
		StatusRejected: true,
	},
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s ProposalStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusCommitted
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the proposal state machine.
func CanTransition(from, to ProposalStatus) bool {
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// WriteProposal is a durable record of an agent's request to mutate the
// corpus (spec.md §3.3).
type WriteProposal struct {
	ProposalID string
	CreatedAt  time.Time
	ProposedBy string

	Type       ProposalType
	TargetPath string
	MemoryID   string // required for non-CREATE
	Content    []byte // required for CREATE/UPDATE
	Reason     string

	DeprecationReason string
	NewScope          Scope
	SourceScope       Scope

	Status      ProposalStatus
	ReviewNotes string
	CommitError string
}

// HistoryEntry is one append-only record of a proposal's status transition
// (spec.md §4.6).
type HistoryEntry struct {
	ProposalID string
	FromStatus ProposalStatus
	ToStatus   ProposalStatus
	Action     string
	Notes      string
	Timestamp  time.Time
}

// QueueStats summarizes the queue's contents for spec.md §4.6's get_stats.
type QueueStats struct {
	Total      int
	ByStatus   map[ProposalStatus]int
	ByType     map[ProposalType]int
}
