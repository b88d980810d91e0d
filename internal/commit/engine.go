// Package commit implements the Commit Engine described in spec.md §4.8:
// synchronous, all-or-nothing application of an APPROVED/MODIFIED proposal
// to both the memory filesystem and the indexed store, with a backup/
// rollback path for every failure mode.
package commit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/indexer"
	"github.com/dmmcore/dmm/internal/memfile"
	"github.com/dmmcore/dmm/internal/proposal"
	"github.com/dmmcore/dmm/internal/store"
)

// DefaultBackupRetention is how long an orphaned file backup is kept before
// GCBackups may remove it (spec.md §4.8 backup retention).
const DefaultBackupRetention = 24 * time.Hour

const backupDirName = "backups"
const deprecatedDir = "deprecated"

// Engine applies one proposal's mutation to Root's filesystem and to Store,
// holding the store's RollbackStrategy checkpoint for the duration so a
// failure partway through can restore both to their pre-commit state.
type Engine struct {
	Root      string
	Store     store.Store
	Indexer   *indexer.Indexer
	Proposals *proposal.Queue
}

// New constructs a commit Engine.
func New(root string, s store.Store, idx *indexer.Indexer, proposals *proposal.Queue) *Engine {
	return &Engine{Root: root, Store: s, Indexer: idx, Proposals: proposals}
}

// Commit applies proposalID's mutation (spec.md §4.8 steps 1-5). The
// proposal must already be APPROVED or MODIFIED; Commit does not invoke the
// Reviewer.
func (e *Engine) Commit(ctx context.Context, proposalID string, now time.Time) (*Result, error) {
	p, err := e.Proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("commit: load proposal %s: %w", proposalID, err)
	}
	if p.Status != dmmtypes.StatusApproved && p.Status != dmmtypes.StatusModified {
		return nil, &dmmerrors.ProposalError{
			Reason:  "proposal is not approved",
			Details: fmt.Sprintf("proposal %s has status %s", proposalID, p.Status),
		}
	}

	strategy := e.Store.RollbackStrategy()

	var fileBackup string
	if p.Type != dmmtypes.ProposalCreate {
		backup, err := e.backupFile(p, now)
		if err != nil {
			return nil, fmt.Errorf("commit: backup %s: %w", p.TargetPath, err)
		}
		fileBackup = backup
	}

	token, err := strategy.Checkpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("commit: checkpoint store: %w", err)
	}

	newPath, mutateErr := e.mutate(ctx, p, now)
	if mutateErr == nil {
		mutateErr = e.reindex(ctx, p, newPath)
	}
	if mutateErr != nil {
		return e.rollback(ctx, p, now, fileBackup, token, strategy, mutateErr)
	}

	if fileBackup != "" {
		_ = os.Remove(fileBackup)
	}
	if _, err := e.Proposals.UpdateStatus(ctx, proposalID, dmmtypes.StatusCommitted, "commit", "", now); err != nil {
		return nil, fmt.Errorf("commit: mark committed %s: %w", proposalID, err)
	}

	dmmlog.Info(dmmlog.CategoryCommit, "committed proposal %s (%s -> %s)", proposalID, p.Type, newPath)
	return &Result{ProposalID: proposalID, Success: true, NewPath: newPath}, nil
}

// rollback restores the file backup and the store checkpoint after a failed
// mutation or reindex (spec.md §4.8 step 5). A rollback failure is fatal and
// is surfaced as a CommitError rather than a Result, since the caller's
// supervisor needs to alert on it rather than silently retry.
func (e *Engine) rollback(ctx context.Context, p *dmmtypes.WriteProposal, now time.Time, fileBackup string, token store.CheckpointToken, strategy store.RollbackStrategy, mutateErr error) (*Result, error) {
	rollbackSuccess := true

	if fileBackup != "" {
		if err := restoreFile(fileBackup, filepath.Join(e.Root, filepath.FromSlash(p.TargetPath))); err != nil {
			rollbackSuccess = false
			dmmlog.Error(dmmlog.CategoryCommit, "commit %s: file rollback failed: %v", p.ProposalID, err)
		}
	}
	if err := strategy.RollbackTo(ctx, token); err != nil {
		rollbackSuccess = false
		dmmlog.Error(dmmlog.CategoryCommit, "commit %s: store rollback failed: %v", p.ProposalID, err)
	}

	if !rollbackSuccess {
		return nil, &dmmerrors.CommitError{ProposalID: p.ProposalID, Path: p.TargetPath, RollbackSuccess: false, Err: mutateErr}
	}

	if err := e.Proposals.SetCommitError(ctx, p.ProposalID, mutateErr.Error()); err != nil {
		dmmlog.Warn(dmmlog.CategoryCommit, "commit %s: could not record commit error: %v", p.ProposalID, err)
	}
	if _, err := e.Proposals.UpdateStatus(ctx, p.ProposalID, dmmtypes.StatusPending, "commit_failed", mutateErr.Error(), now); err != nil {
		dmmlog.Warn(dmmlog.CategoryCommit, "commit %s: could not revert to pending: %v", p.ProposalID, err)
	}

	dmmlog.Warn(dmmlog.CategoryCommit, "rolled back proposal %s: %v", p.ProposalID, mutateErr)
	return &Result{
		ProposalID:        p.ProposalID,
		Success:           false,
		RollbackPerformed: true,
		RollbackSuccess:   true,
		Error:             mutateErr.Error(),
	}, nil
}

// mutate applies the type-specific filesystem change and returns the
// resulting file's path relative to Root (spec.md §4.8 step 2).
func (e *Engine) mutate(ctx context.Context, p *dmmtypes.WriteProposal, now time.Time) (string, error) {
	switch p.Type {
	case dmmtypes.ProposalCreate:
		return e.mutateCreate(p)
	case dmmtypes.ProposalUpdate:
		return e.mutateUpdate(p)
	case dmmtypes.ProposalDeprecate:
		return e.mutateDeprecate(ctx, p, now)
	case dmmtypes.ProposalPromote:
		return e.mutatePromote(ctx, p, now)
	default:
		return "", fmt.Errorf("commit: unknown proposal type %q", p.Type)
	}
}

func (e *Engine) mutateCreate(p *dmmtypes.WriteProposal) (string, error) {
	abs := filepath.Join(e.Root, filepath.FromSlash(p.TargetPath))
	if _, err := os.Stat(abs); err == nil {
		return "", fmt.Errorf("create target %s already exists", p.TargetPath)
	} else if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, p.Content, 0o644); err != nil { // #nosec G306 - memory files are not secrets
		return "", err
	}
	return p.TargetPath, nil
}

func (e *Engine) mutateUpdate(p *dmmtypes.WriteProposal) (string, error) {
	abs := filepath.Join(e.Root, filepath.FromSlash(p.TargetPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, p.Content, 0o644); err != nil { // #nosec G306
		return "", err
	}
	return p.TargetPath, nil
}

// mutateDeprecate rewrites the target's frontmatter to mark it deprecated
// and moves it under deprecated/, using a collision-avoiding rename (spec.md
// §4.8 step 2).
func (e *Engine) mutateDeprecate(ctx context.Context, p *dmmtypes.WriteProposal, now time.Time) (string, error) {
	mem, err := e.Store.GetMemory(ctx, p.MemoryID)
	if err != nil {
		return "", fmt.Errorf("load deprecation target %s: %w", p.MemoryID, err)
	}
	srcAbs := filepath.Join(e.Root, filepath.FromSlash(mem.Path))

	mem.Status = dmmtypes.StatusDeprecated
	mem.Confidence = dmmtypes.ConfidenceDeprecated
	mem.DeprecatedAt = &now
	mem.DeprecationReason = p.DeprecationReason

	destRel, destAbs, err := e.collisionAvoidingDest(deprecatedDir, filepath.Base(mem.Path))
	if err != nil {
		return "", err
	}
	mem.Path = destRel

	if err := writeMemoryFile(destAbs, mem); err != nil {
		return "", err
	}
	if err := os.Remove(srcAbs); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove original %s: %w", srcAbs, err)
	}
	return destRel, nil
}

// mutatePromote rewrites the target's frontmatter with its new scope and
// moves it into the new scope's folder, using a collision-avoiding rename
// (spec.md §4.8 step 2).
func (e *Engine) mutatePromote(ctx context.Context, p *dmmtypes.WriteProposal, now time.Time) (string, error) {
	mem, err := e.Store.GetMemory(ctx, p.MemoryID)
	if err != nil {
		return "", fmt.Errorf("load promotion target %s: %w", p.MemoryID, err)
	}
	srcAbs := filepath.Join(e.Root, filepath.FromSlash(mem.Path))

	mem.PromotedAt = &now
	mem.PromotedFrom = mem.Scope
	mem.Scope = p.NewScope

	destRel, destAbs, err := e.collisionAvoidingDest(string(p.NewScope), filepath.Base(mem.Path))
	if err != nil {
		return "", err
	}
	mem.Path = destRel

	if err := writeMemoryFile(destAbs, mem); err != nil {
		return "", err
	}
	if err := os.Remove(srcAbs); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove original %s: %w", srcAbs, err)
	}
	return destRel, nil
}

// reindex drives the post-mutation store update (spec.md §4.8 step 3):
// DEPRECATE removes the memory from the index entirely (deprecated content
// is never retrievable); CREATE/UPDATE/PROMOTE parse, embed, and upsert the
// resulting file at its new path.
func (e *Engine) reindex(ctx context.Context, p *dmmtypes.WriteProposal, newPath string) error {
	if p.Type == dmmtypes.ProposalDeprecate {
		return e.Store.DeleteMemory(ctx, p.MemoryID)
	}
	return e.Indexer.IncrementalReindexPath(ctx, newPath)
}

// backupFile copies the proposal's current target file to
// backups/<stem>_<ts>.md.bak, byte for byte (spec.md §4.8 step 1).
func (e *Engine) backupFile(p *dmmtypes.WriteProposal, now time.Time) (string, error) {
	dir := filepath.Join(e.Root, backupDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	abs := filepath.Join(e.Root, filepath.FromSlash(p.TargetPath))
	base := filepath.Base(p.TargetPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dst := filepath.Join(dir, fmt.Sprintf("%s_%d%s.bak", stem, now.UnixNano(), ext))

	data, err := os.ReadFile(abs) // #nosec G304 - path is the proposal's own declared target under Root
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", err
	}
	return dst, nil
}

func restoreFile(backupPath, destPath string) error {
	data, err := os.ReadFile(backupPath) // #nosec G304 - path produced by backupFile under our control
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644) // #nosec G306
}

// collisionAvoidingDest finds the first unused "<stem>[_N]<ext>" name under
// dir, relative to Root, matching spec.md §4.8's collision-avoiding rename.
func (e *Engine) collisionAvoidingDest(dir, base string) (relPath, absPath string, err error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 0; ; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i+1, ext)
		}
		rel := filepath.ToSlash(filepath.Join(dir, candidate))
		abs := filepath.Join(e.Root, filepath.FromSlash(rel))
		if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
			return rel, abs, nil
		} else if statErr != nil {
			return "", "", statErr
		}
	}
}

func writeMemoryFile(absPath string, mem *dmmtypes.Memory) error {
	data, err := memfile.Serialize(mem)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", mem.Path, err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(absPath, data, 0o644) // #nosec G306
}

// GCBackups removes orphaned commit backups older than retention, for
// backends that keep filesystem-based checkpoints (spec.md §4.8's backup
// retention note).
func (e *Engine) GCBackups(ctx context.Context, retention time.Duration) (int, error) {
	gc, ok := e.Store.RollbackStrategy().(store.BackupGC)
	if !ok {
		return 0, nil
	}
	return gc.GCBackups(ctx, retention)
}
