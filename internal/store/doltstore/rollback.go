//go:build cgo

package doltstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmmcore/dmm/internal/store"
)

// branchRollbackStrategy is doltstore's RollbackStrategy: Checkpoint commits
// the working set and records the resulting commit hash; RollbackTo hard
// resets back to it (spec.md §4.8, grounded on the teacher's
// internal/storage/dolt Commit/DOLT_HASHOF/DOLT_RESET usage).
type branchRollbackStrategy struct {
	db             *sql.DB
	committerName  string
	committerEmail string
}

func newBranchRollbackStrategy(db *sql.DB, name, email string) *branchRollbackStrategy {
	return &branchRollbackStrategy{db: db, committerName: name, committerEmail: email}
}

func (b *branchRollbackStrategy) Name() string { return "dolt-branch" }

func (b *branchRollbackStrategy) commitAuthor() string {
	return fmt.Sprintf("%s <%s>", b.committerName, b.committerEmail)
}

func (b *branchRollbackStrategy) Checkpoint(ctx context.Context) (store.CheckpointToken, error) {
	// CALL DOLT_COMMIT is a no-op error ("nothing to commit") when the
	// working set is already clean; that's fine, HASHOF('HEAD') below still
	// resolves to the last real commit.
	_, _ = b.db.ExecContext(ctx, "CALL DOLT_COMMIT('-Am', ?, '--author', ?)",
		"dmm: checkpoint before write", b.commitAuthor())

	var hash string
	if err := b.db.QueryRowContext(ctx, "SELECT DOLT_HASHOF('HEAD')").Scan(&hash); err != nil {
		return "", fmt.Errorf("doltstore: checkpoint: resolve HEAD hash: %w", err)
	}
	return store.CheckpointToken(hash), nil
}

func (b *branchRollbackStrategy) RollbackTo(ctx context.Context, token store.CheckpointToken) error {
	hash := string(token)
	if hash == "" {
		return fmt.Errorf("doltstore: empty checkpoint token")
	}
	if _, err := b.db.ExecContext(ctx, "CALL DOLT_RESET('--hard', ?)", hash); err != nil {
		return fmt.Errorf("doltstore: rollback to %s: %w", hash, err)
	}
	return nil
}

// GCBackups is a no-op for doltstore: commit history is never pruned by the
// Commit Engine's periodic cleanup (spec.md §4.8 BackupRetentionHours
// applies only to sqlitestore's filesystem copies; Dolt history retention
// is an operator decision made with `dolt gc`, outside DMM's scope).
func (b *branchRollbackStrategy) GCBackups(ctx context.Context, retention time.Duration) (int, error) {
	return 0, nil
}
