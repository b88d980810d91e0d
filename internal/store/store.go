// Package store defines the persistence contract described in spec.md §4.3:
// a Store holds memories, their embeddings, the proposal queue, detected
// conflicts, and scan history behind one interface, with a concrete backend
// selected at startup (sqlitestore by default, doltstore for operators who
// want branch-based rollback). The interface and the backend registry
// mirror the teacher's internal/storage.Storage + internal/storage/factory
// split: callers depend only on this package, never on a concrete backend.
package store

import (
	"context"
	"time"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
)

// MemoryFilter narrows ListMemories/SearchMemories results. Zero values mean
// "no constraint" for that field.
type MemoryFilter struct {
	Scope    dmmtypes.Scope
	Status   dmmtypes.Status
	Tags     []string
	PathGlob string
}

// ScoredMemory pairs a memory with a similarity score from a vector search.
type ScoredMemory struct {
	Memory *dmmtypes.Memory
	Score  float64
}

// EmbeddingKind distinguishes the two embeddings every memory carries
// (spec.md §4.2): Directory is derived from path/tags/title, Composite
// from the body.
type EmbeddingKind string

const (
	EmbeddingDirectory EmbeddingKind = "directory"
	EmbeddingComposite EmbeddingKind = "composite"
)

// Store is the persistence contract every backend must satisfy.
type Store interface {
	// Memories

	PutMemory(ctx context.Context, m *dmmtypes.Memory) error
	GetMemory(ctx context.Context, id string) (*dmmtypes.Memory, error)
	GetMemoryByPath(ctx context.Context, path string) (*dmmtypes.Memory, error)
	DeleteMemory(ctx context.Context, id string) error
	ListMemories(ctx context.Context, filter MemoryFilter) ([]*dmmtypes.Memory, error)

	// Embeddings

	PutEmbedding(ctx context.Context, memoryID string, kind EmbeddingKind, v embed.Vector) error
	SearchByEmbedding(ctx context.Context, kind EmbeddingKind, query embed.Vector, filter MemoryFilter, topK int) ([]ScoredMemory, error)

	// System metadata (tokenizer_version, embedder_version — spec.md §9)

	GetSystemMeta(ctx context.Context, key string) (string, bool, error)
	SetSystemMeta(ctx context.Context, key, value string) error

	// Proposal queue (spec.md §4.6)

	PutProposal(ctx context.Context, p *dmmtypes.WriteProposal) error
	GetProposal(ctx context.Context, id string) (*dmmtypes.WriteProposal, error)
	ListProposals(ctx context.Context, status dmmtypes.ProposalStatus) ([]*dmmtypes.WriteProposal, error)
	HasPendingForPath(ctx context.Context, path string) (bool, error)
	AppendProposalHistory(ctx context.Context, entry *dmmtypes.HistoryEntry) error
	GetProposalHistory(ctx context.Context, proposalID string) ([]*dmmtypes.HistoryEntry, error)
	QueueStats(ctx context.Context) (*dmmtypes.QueueStats, error)

	// Conflicts (spec.md §3.4, §4.9-4.10)

	PutConflict(ctx context.Context, c *dmmtypes.Conflict) error
	GetConflict(ctx context.Context, id string) (*dmmtypes.Conflict, error)
	ListConflicts(ctx context.Context, status dmmtypes.ConflictStatus) ([]*dmmtypes.Conflict, error)
	FindConflictByPair(ctx context.Context, pair dmmtypes.PairKey) (*dmmtypes.Conflict, error)

	// Scan history (spec.md §4.9.5)

	PutScanRecord(ctx context.Context, r *dmmtypes.ScanRecord) error
	LastScan(ctx context.Context, scanType dmmtypes.ScanType) (*dmmtypes.ScanRecord, error)

	// Transaction and rollback support for the Commit Engine (spec.md §4.8).
	// Begin starts a write transaction whose Commit/Rollback are driven by
	// the commit package; RollbackStrategy returns the backend-specific
	// strategy (byte-backup for sqlitestore, branch commit/reset for
	// doltstore) it should use around filesystem mutations.
	Begin(ctx context.Context) (Tx, error)
	RollbackStrategy() RollbackStrategy

	Close() error
}

// Tx is a Store-scoped write transaction. All Store methods are also
// callable through a Tx via the embedding backend's internal plumbing; Tx
// itself only exposes the commit/rollback boundary the Commit Engine needs.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// RollbackStrategy captures how a backend can undo a failed commit: the
// sqlitestore makes a byte-for-byte copy of the database file before
// mutating it, while doltstore commits the working set at each checkpoint
// and can hard-reset back to that commit hash (SPEC_FULL.md §4, §9).
type RollbackStrategy interface {
	// Checkpoint records enough state to later undo mutations made after
	// this call returns.
	Checkpoint(ctx context.Context) (CheckpointToken, error)
	// RollbackTo undoes everything mutated since token was created.
	RollbackTo(ctx context.Context, token CheckpointToken) error
	// Name identifies the strategy for logging ("byte-backup", "dolt-branch").
	Name() string
}

// CheckpointToken is an opaque backend-specific rollback handle (a file
// path for sqlitestore, a commit hash for doltstore).
type CheckpointToken string

// GCBackups removes byte-backup checkpoints older than retention, shared by
// whichever backend keeps filesystem-based backups. Backends without
// filesystem backups (doltstore) implement this as a no-op.
type BackupGC interface {
	GCBackups(ctx context.Context, retention time.Duration) (removed int, err error)
}
