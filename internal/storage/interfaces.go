// Package storage defines the abstract graph adapter and memory store
// contracts the core engine depends on. Following the teacher's composable
// small-interface style (Interface Segregation Principle), each concern gets
// its own narrow interface so a concrete backend can implement only what it
// needs to.
package storage

import (
	"context"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// Handle is an opaque, backend-owned connection handle returned by
// GraphAdapter.Open. Concrete adapters type-assert it back to their own
// connection type.
type Handle interface{}

// GraphAdapter is the abstract CRUD + indexed-query contract over the
// embedded graph database (spec §4.1). It is the only component that speaks
// the underlying graph query language; every other component passes
// structured parameters through MemoryStore instead.
type GraphAdapter interface {
	// Open acquires a handle to the database at path. readOnly hints that
	// the caller will not write through this handle.
	Open(ctx context.Context, path string, readOnly bool) (Handle, error)

	// Close releases a handle acquired via Open.
	Close(h Handle) error

	// WithHandle acquires a handle, invokes fn, and guarantees the handle is
	// released on every exit path — including a panic inside fn — mirroring
	// the teacher's "context manager for DB handles" idiom (§9 Design Notes).
	WithHandle(ctx context.Context, path string, readOnly bool, fn func(Handle) error) error

	// Query runs a read statement and returns structured rows.
	Query(ctx context.Context, h Handle, statement string, params ...any) (Rows, error)

	// Exec runs a write statement and returns the number of affected rows.
	Exec(ctx context.Context, h Handle, statement string, params ...any) (int64, error)

	// Transaction runs fn atomically against h. On any error returned by fn,
	// the transaction is rolled back.
	Transaction(ctx context.Context, h Handle, fn func(tx Handle) error) error
}

// Rows is a minimal cursor abstraction over a query result set.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// MemoryStore persists/expires memory records and their entity links, and
// enforces the data-model invariants in spec §3 (C2).
type MemoryStore interface {
	// Put computes the normalized content hash and either inserts a new
	// memory row (resolving/creating Entity rows and EntityMention edges)
	// or, if a non-expired memory already has the same hash, reports
	// PutDuplicate without writing (I1). Atomic.
	Put(ctx context.Context, memory *types.Memory, entityNames []string) (PutResult, error)

	// GetRecent returns memories newest valid_from first, excluding
	// expired ones, subject to the given filters.
	GetRecent(ctx context.Context, limit int, filters Filters) ([]*types.Memory, error)

	// SearchByKeywords returns memories matching any of tokens, scored by
	// summed per-token weight, tiebroken by importance then created_at desc.
	SearchByKeywords(ctx context.Context, tokens []string, limit int, filters Filters) ([]Scored, error)

	// SearchByEntities returns memories mentioning any of entityNames,
	// scored by matched-entity count plus importance.
	SearchByEntities(ctx context.Context, entityNames []string, limit int, filters Filters) ([]Scored, error)

	// SearchByTime returns memories within window, scored by exponential
	// recency decay.
	SearchByTime(ctx context.Context, window TimeWindow, limit int, filters Filters) ([]Scored, error)

	// Count returns the number of non-expired memories matching filters.
	Count(ctx context.Context, filters Filters) (int, error)

	// SizeBytes estimates the on-disk size of the store.
	SizeBytes(ctx context.Context) (int64, error)

	// Expire drops memories whose valid_to is in the past and returns the
	// count removed. Idempotent.
	Expire(ctx context.Context) (int, error)

	// Prune removes memories/entities per strategy (compaction) and reports
	// what was removed. Like Expire, it deletes the EntityMention edges of
	// the memories it removes in the same transaction.
	Prune(ctx context.Context, strategy PruneStrategy) (PruneReport, error)

	// Stats reports store-level counters for the facade's Stats() operation.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources (pooled connections) held by the store.
	Close() error
}
