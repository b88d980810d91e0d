// Package sqlitestore is the default Store backend (spec.md §4.3,
// SPEC_FULL.md §4): a single SQLite file holding memories, embeddings, the
// proposal queue, conflicts, and scan history. It opens the database the
// same way the teacher's cmd/bd/doctor package does — the pure-Go
// ncruces/go-sqlite3 driver plus its bundled wasm engine, registered under
// the "sqlite3" database/sql driver name via blank imports.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmlog"
	"github.com/dmmcore/dmm/internal/embed"
	"github.com/dmmcore/dmm/internal/store"
	"github.com/dmmcore/dmm/internal/store/factory"
)

func init() {
	factory.RegisterBackend("sqlite", func(ctx context.Context, path string, opts factory.Options) (store.Store, error) {
		return Open(ctx, path, opts.ReadOnly)
	})
}

// execer abstracts over *sql.DB and *sql.Tx so every query method below
// works identically whether called directly on the store or within a
// Begin/Commit pair.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements store.Store over a single database/sql handle.
// Every query method reads and writes through ex rather than db directly,
// so sqliteTx can swap in a *sql.Tx without duplicating query logic.
// Transactions from Begin hold writeMu until Commit or Rollback, the same
// way the teacher guards its embedded SQLite connection against
// concurrent-writer busy errors; single calls made outside a transaction
// do not take writeMu.
type SQLiteStore struct {
	db       *sql.DB
	ex       execer
	path     string
	writeMu  *sync.Mutex
	vecReady bool
}

// Open creates or opens the database at path, applying schema and
// attempting to create the sqlite-vec virtual table. vecReady records
// whether that worked, and only decides whether PutEmbedding also writes
// vectors into vec_embedding; SearchByEmbedding always ranks by a linear
// scan over the embedding table (spec.md §4.2 allows either
// implementation as long as cosine similarity ranking is correct).
func Open(ctx context.Context, path string, readOnly bool) (*SQLiteStore, error) {
	dsn := connString(path, readOnly)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer at a time; matches the teacher's embedded-SQLite posture

	s := &SQLiteStore{db: db, ex: db, path: path, writeMu: &sync.Mutex{}}

	if !readOnly {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
		}
		s.vecReady = s.tryInitVec(ctx)
	}

	return s, nil
}

func connString(path string, readOnly bool) string {
	if readOnly {
		return "file:" + path + "?mode=ro&_pragma=busy_timeout(30000)"
	}
	return "file:" + path + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)"
}

func (s *SQLiteStore) tryInitVec(ctx context.Context) bool {
	const dims = 256 // matches embed.HashEmbedder.Dimensions()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(vecSchema, dims))
	if err != nil {
		dmmlog.Warn(dmmlog.CategoryStore, "sqlite-vec virtual table unavailable, falling back to linear scan: %v", err)
		return false
	}
	return true
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RollbackStrategy() store.RollbackStrategy {
	return newByteBackupStrategy(s.path)
}

// Begin starts a write transaction. The returned Tx is a *SQLiteStore
// whose ex is the *sql.Tx instead of *sql.DB, so every CRUD method defined
// below runs against the transaction without a parallel implementation.
func (s *SQLiteStore) Begin(ctx context.Context) (store.Tx, error) {
	s.writeMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, dmmerrors.WrapStoreErr("begin tx", err)
	}
	txStore := &SQLiteStore{db: s.db, ex: tx, path: s.path, writeMu: s.writeMu, vecReady: s.vecReady}
	return &sqliteTx{SQLiteStore: txStore, tx: tx, unlock: s.writeMu.Unlock}, nil
}

// sqliteTx adds Commit/Rollback to an embedded *SQLiteStore that already
// routes every query through the transaction (see Begin above).
type sqliteTx struct {
	*SQLiteStore
	tx     *sql.Tx
	unlock func()
}

func (t *sqliteTx) Commit() error {
	defer t.unlock()
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	defer t.unlock()
	return t.tx.Rollback()
}

// vector helpers shared by the embedding/search queries.

func encodeVector(v embed.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) embed.Vector {
	v := make(embed.Vector, len(buf)/4)
	for i := range v {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}
