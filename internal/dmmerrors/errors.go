// Package dmmerrors declares the typed error taxonomy described in
// spec.md §6.6/§7. Each type satisfies the standard error interface and
// supports errors.As for callers that need to branch on error kind; the
// wrap/sentinel shape mirrors the teacher's internal/storage/sqlite
// wrapDBError idiom (sql.ErrNoRows -> ErrNotFound wrapped with context)
// generalized from one backend's sentinel to a small typed hierarchy.
package dmmerrors

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel wrapped by store lookups that miss.
var ErrNotFound = errors.New("not found")

// ParseError is raised by the Parser for I/O or YAML-shape failures that
// are not schema-level (spec.md §4.1).
type ParseError struct {
	Path      string
	ErrorType string // "io", "yaml", "content"
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s [%s]: %v", e.Path, e.ErrorType, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaValidationError is raised when required frontmatter fields are
// missing, enum values are invalid, priority is out of range, or the token
// count exceeds the hard ceiling (spec.md §4.1).
type SchemaValidationError struct {
	Path   string
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation %s: field %q: %s", e.Path, e.Field, e.Reason)
}

// ProposalError is raised by the queue when a status transition is not
// allowed, and by the Commit Engine when a proposal is not APPROVED or
// MODIFIED (spec.md §6.6).
type ProposalError struct {
	Reason  string
	Details string
}

func (e *ProposalError) Error() string {
	if e.Details == "" {
		return "proposal: " + e.Reason
	}
	return fmt.Sprintf("proposal: %s: %s", e.Reason, e.Details)
}

// ReviewError is raised when the reviewer cannot complete its evaluation
// (e.g. store lookup failure), distinct from a REJECT decision.
type ReviewError struct {
	ProposalID string
	Err        error
}

func (e *ReviewError) Error() string {
	return fmt.Sprintf("review %s: %v", e.ProposalID, e.Err)
}

func (e *ReviewError) Unwrap() error { return e.Err }

// CommitError is fatal: it is raised only when a commit fails AND the
// rollback also fails, leaving the filesystem and store potentially out of
// sync (spec.md §4.8 step 5, §7 item 4).
type CommitError struct {
	ProposalID     string
	Path           string
	RollbackSuccess bool
	Err            error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s (%s): rollback_success=%v: %v",
		e.ProposalID, e.Path, e.RollbackSuccess, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// ConflictNotFoundError is raised by the resolver when a conflict id is
// unknown.
type ConflictNotFoundError struct {
	ConflictID string
}

func (e *ConflictNotFoundError) Error() string {
	return fmt.Sprintf("conflict not found: %s", e.ConflictID)
}

// ConflictResolutionError is raised when a resolution action fails to
// apply; the conflict reverts to unresolved (spec.md §4.10).
type ConflictResolutionError struct {
	ConflictID string
	Action     string
	Err        error
}

func (e *ConflictResolutionError) Error() string {
	return fmt.Sprintf("resolve conflict %s action %s: %v", e.ConflictID, e.Action, e.Err)
}

func (e *ConflictResolutionError) Unwrap() error { return e.Err }

// ScanError is raised when a conflict scan cannot complete; partial scan
// records are still persisted by the caller (spec.md §5, §6.6).
type ScanError struct {
	ScanID string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.ScanID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// WrapStoreErr converts sql.ErrNoRows-shaped misses into ErrNotFound
// wrapped with operation context, the same shape the teacher's
// wrapDBError/wrapDBErrorf produce.
func WrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
