// Package sqlitegraph implements storage.GraphAdapter and storage.MemoryStore
// on top of a pure-Go SQLite driver. The pool holds a single connection
// that reads and writes share, so in-process reads and writes are
// serialized; the database file is opened in WAL mode.
package sqlitegraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/kuzumemory/kuzu-memory/internal/storage"
)

// sqliteHandle is the concrete type behind storage.Handle for this adapter.
// Query/Exec/Transaction type-assert their Handle argument back to this.
type sqliteHandle struct {
	db       dbTx
	readOnly bool
}

// dbTx is satisfied by both *sql.DB and *sql.Tx so Transaction can hand the
// caller a handle wrapping either.
type dbTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Pool manages the single writer connection to one SQLite database file and
// implements storage.GraphAdapter. It folds together what a separate
// connection-manager package would otherwise track, since this engine works
// against exactly one project database at a time.
type Pool struct {
	db         *sql.DB
	path       string
	mu         sync.Mutex // serializes writer access beyond what SetMaxOpenConns(1) alone buys us for transactions
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
}

// Config tunes the breaker guarding writes against a failing disk/lock.
type Config struct {
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	BusyTimeout        time.Duration
	// MaxRetries bounds how many times a single Exec/Transaction call
	// retries transient lock contention (SQLITE_BUSY/SQLITE_LOCKED) before
	// giving up and surfacing storage.ErrStoreUnavailable (spec §7).
	MaxRetries int
}

// DefaultConfig returns conservative defaults suitable for an embedded,
// single-process store.
func DefaultConfig() Config {
	return Config{
		BreakerMaxFailures: 5,
		BreakerTimeout:     10 * time.Second,
		BusyTimeout:        5 * time.Second,
		MaxRetries:         3,
	}
}

// Open creates (or reopens) the database at path, enabling WAL mode and a
// single-writer connection pool, and applies the schema.
func Open(path string, cfg Config) (*Pool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitegraph: open %s: %w", path, err)
	}

	// SQLite permits exactly one writer at a time; pinning the pool to a
	// single connection serializes writes in-process and avoids spurious
	// SQLITE_BUSY errors under concurrent goroutine load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitegraph: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitegraph: apply schema: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        "sqlitegraph-writer",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Pool{
		db:         db,
		path:       path,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: maxRetries,
	}, nil
}

var _ storage.GraphAdapter = (*Pool)(nil)

// Open satisfies storage.GraphAdapter.Open; the pool already owns a live
// connection, so this just wraps it in a scoped Handle.
func (p *Pool) Open(_ context.Context, _ string, readOnly bool) (storage.Handle, error) {
	return &sqliteHandle{db: p.db, readOnly: readOnly}, nil
}

// Close satisfies storage.GraphAdapter.Close. Individual handles share the
// pool's single connection, so releasing one is a no-op; the pool itself is
// closed via Pool.CloseDB.
func (p *Pool) Close(storage.Handle) error { return nil }

// WithHandle acquires a handle, runs fn, and always releases it, mirroring
// the teacher's context-manager-for-DB-handles idiom.
func (p *Pool) WithHandle(ctx context.Context, path string, readOnly bool, fn func(storage.Handle) error) (err error) {
	h, openErr := p.Open(ctx, path, readOnly)
	if openErr != nil {
		return openErr
	}
	defer func() {
		if closeErr := p.Close(h); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(h)
}

// Query satisfies storage.GraphAdapter.Query.
func (p *Pool) Query(ctx context.Context, h storage.Handle, statement string, params ...any) (storage.Rows, error) {
	sh, ok := h.(*sqliteHandle)
	if !ok {
		return nil, fmt.Errorf("%w: invalid handle type", storage.ErrQueryError)
	}
	rows, err := sh.db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, classifyErr(err)
	}
	return &sqlRows{rows: rows}, nil
}

// Exec satisfies storage.GraphAdapter.Exec. Writes go through the circuit
// breaker: repeated failures (disk full, corrupted file) trip it so callers
// fail fast instead of retrying into an unavailable store.
func (p *Pool) Exec(ctx context.Context, h storage.Handle, statement string, params ...any) (int64, error) {
	sh, ok := h.(*sqliteHandle)
	if !ok {
		return 0, fmt.Errorf("%w: invalid handle type", storage.ErrQueryError)
	}
	if sh.readOnly {
		return 0, fmt.Errorf("%w: handle opened read-only", storage.ErrQueryError)
	}

	// A handle wrapping *sql.Tx is already running inside Transaction, which
	// holds p.mu for the whole callback; taking it again here would deadlock.
	if _, inTx := sh.db.(*sql.Tx); !inTx {
		p.mu.Lock()
		defer p.mu.Unlock()
	}

	result, err := p.executeWithRetry(func() (any, error) {
		res, err := sh.db.ExecContext(ctx, statement, params...)
		if err != nil {
			return nil, classifyErr(err)
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return 0, storage.ErrStoreUnavailable
		}
		return 0, err
	}

	n, err := result.(sql.Result).RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlitegraph: rows affected: %w", err)
	}
	return n, nil
}

// Transaction satisfies storage.GraphAdapter.Transaction.
func (p *Pool) Transaction(ctx context.Context, h storage.Handle, fn func(tx storage.Handle) error) error {
	sh, ok := h.(*sqliteHandle)
	if !ok {
		return fmt.Errorf("%w: invalid handle type", storage.ErrQueryError)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.executeWithRetry(func() (any, error) {
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, classifyErr(err)
		}

		txHandle := &sqliteHandle{db: tx, readOnly: sh.readOnly}
		if err := fn(txHandle); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("sqlitegraph: commit: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return storage.ErrStoreUnavailable
		}
		return err
	}
	return nil
}

// executeWithRetry runs op through the circuit breaker, retrying a bounded
// number of times with exponential backoff when op fails on transient lock
// contention (spec §7). A breaker already open, or an error that isn't
// transient, returns immediately without consuming a retry.
func (p *Pool) executeWithRetry(op func() (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * 100 * time.Millisecond)
		}

		result, err := p.breaker.Execute(op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, err
		}
		if !isTransientLockErr(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// isTransientLockErr reports whether err looks like SQLITE_BUSY/SQLITE_LOCKED
// lock contention worth retrying, rather than a durable failure (disk full,
// corruption) the breaker should see immediately.
func isTransientLockErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy")
}

// CloseDB closes the underlying *sql.DB. Not part of storage.GraphAdapter;
// callers that own the Pool (MemoryStore.Close) invoke it at shutdown.
func (p *Pool) CloseDB() error {
	return p.db.Close()
}

// sqlRows adapts *sql.Rows to storage.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool           { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Close() error         { return r.rows.Close() }
func (r *sqlRows) Err() error           { return r.rows.Err() }

// classifyErr maps a raw sqlite driver error onto our sentinel taxonomy so
// callers above this package never need to inspect driver-specific types.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
}
