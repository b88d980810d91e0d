package sqlitestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmmcore/dmm/internal/store"
)

// byteBackupStrategy is sqlitestore's RollbackStrategy: Checkpoint copies
// the database file bytewise to a timestamped sibling, and RollbackTo
// restores it. This is the Commit Engine's C2/C3 invariant mechanism for
// the sqlite backend (spec.md §4.8): no WAL/journal trick substitutes for
// it because a failed commit may have already run DDL-adjacent statements
// (e.g. altering the conflict table) that a transaction rollback alone
// might not cleanly undo if paired with a filesystem write that partially
// landed.
type byteBackupStrategy struct {
	dbPath string
}

func newByteBackupStrategy(dbPath string) *byteBackupStrategy {
	return &byteBackupStrategy{dbPath: dbPath}
}

func (b *byteBackupStrategy) Name() string { return "byte-backup" }

func (b *byteBackupStrategy) backupDir() string {
	return filepath.Join(filepath.Dir(b.dbPath), ".dmm-backups")
}

func (b *byteBackupStrategy) Checkpoint(ctx context.Context) (store.CheckpointToken, error) {
	dir := b.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("byte-backup: mkdir %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s.%d.bak", filepath.Base(b.dbPath), time.Now().UnixNano())
	dst := filepath.Join(dir, name)

	if err := copyFile(b.dbPath, dst); err != nil {
		return "", fmt.Errorf("byte-backup: checkpoint: %w", err)
	}
	return store.CheckpointToken(dst), nil
}

func (b *byteBackupStrategy) RollbackTo(ctx context.Context, token store.CheckpointToken) error {
	src := string(token)
	if src == "" {
		return fmt.Errorf("byte-backup: empty checkpoint token")
	}
	if err := copyFile(src, b.dbPath); err != nil {
		return fmt.Errorf("byte-backup: rollback: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths are constructed from the store's own db path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// GCBackups removes byte-backup checkpoints older than retention, satisfying
// store.BackupGC.
func (b *byteBackupStrategy) GCBackups(ctx context.Context, retention time.Duration) (int, error) {
	dir := b.backupDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("byte-backup: gc: read %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := backupTimestamp(e.Name())
		if !ok || ts.After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func backupTimestamp(name string) (time.Time, bool) {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if nanos, err := strconv.ParseInt(p, 10, 64); err == nil && len(p) >= 15 {
			return time.Unix(0, nanos), true
		}
	}
	return time.Time{}, false
}
