//go:build cgo

// Package doltstore is the branch-based Store backend (spec.md §4.3,
// SPEC_FULL.md §4, §9): every mutation lands on a Dolt database through the
// embedded github.com/dolthub/driver connector, and RollbackStrategy
// resets to the last Dolt commit hash instead of sqlitestore's byte-backup
// copy. This gives operators who want full commit history and branch/merge
// semantics over their memory corpus (SPEC_FULL.md's Dolt domain-stack
// wiring) an alternative to the default sqlite backend without the Store
// interface or callers changing.
//
// Connection handling follows the teacher's cmd/bd/doctor/dolt.go
// embedded-mode pattern: a file:// DSN against a local Dolt database
// directory, opened through the blank-imported "dolt" database/sql driver.
package doltstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/dolthub/driver"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/factory"
)

func init() {
	factory.RegisterBackend("dolt", func(ctx context.Context, path string, opts factory.Options) (store.Store, error) {
		return Open(ctx, path, opts.ReadOnly)
	})
}

const defaultDatabase = "dmm"

// execer abstracts over *sql.DB and *sql.Tx, mirroring sqlitestore's
// execer so the same CRUD methods run unchanged inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DoltStore implements store.Store over an embedded Dolt database.
type DoltStore struct {
	db      *sql.DB
	ex      execer
	dbPath  string
	writeMu *sync.Mutex

	committerName  string
	committerEmail string
}

// Open creates or opens the Dolt database directory at path, applying
// schema and switching into the dmm database.
func Open(ctx context.Context, path string, readOnly bool) (*DoltStore, error) {
	connStr := fmt.Sprintf("file://%s?commitname=dmm&commitemail=dmm@local", path)
	db, err := sql.Open("dolt", connStr)
	if err != nil {
		return nil, fmt.Errorf("doltstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", defaultDatabase)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("doltstore: create database: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("USE `%s`", defaultDatabase)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("doltstore: use database: %w", err)
	}

	s := &DoltStore{
		db:             db,
		ex:             db,
		dbPath:         path,
		writeMu:        &sync.Mutex{},
		committerName:  "dmm",
		committerEmail: "dmm@local",
	}

	if !readOnly {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("doltstore: apply schema: %w", err)
		}
	}

	return s, nil
}

func (s *DoltStore) Close() error {
	return s.db.Close()
}

// RollbackStrategy returns the Dolt branch commit/reset mechanism: Checkpoint
// records the current commit hash via DOLT_HASHOF('HEAD'), and RollbackTo
// hard-resets the working set back to it (SPEC_FULL.md §4.8's alternative
// to sqlitestore's file-copy approach).
func (s *DoltStore) RollbackStrategy() store.RollbackStrategy {
	return newBranchRollbackStrategy(s.db, s.committerName, s.committerEmail)
}

// Begin starts a write transaction. As in sqlitestore, the returned Tx
// wraps a *DoltStore whose ex is the *sql.Tx so every CRUD method below
// runs against the transaction without duplicated logic.
func (s *DoltStore) Begin(ctx context.Context) (store.Tx, error) {
	s.writeMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, dmmerrors.WrapStoreErr("begin tx", err)
	}
	txStore := &DoltStore{
		db: s.db, ex: tx, dbPath: s.dbPath, writeMu: s.writeMu,
		committerName: s.committerName, committerEmail: s.committerEmail,
	}
	return &doltTx{DoltStore: txStore, tx: tx, unlock: s.writeMu.Unlock}, nil
}

type doltTx struct {
	*DoltStore
	tx     *sql.Tx
	unlock func()
}

func (t *doltTx) Commit() error {
	defer t.unlock()
	return t.tx.Commit()
}

func (t *doltTx) Rollback() error {
	defer t.unlock()
	return t.tx.Rollback()
}
