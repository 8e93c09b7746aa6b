package storage

import "errors"

// Sentinel errors returned by the Graph Adapter and Memory Store, per the
// error taxonomy in spec §4.1/§7.
var (
	// ErrStoreUnavailable indicates an I/O failure, lock-acquisition
	// failure, or disk-full condition.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCorruption indicates an on-disk schema/integrity violation that is
	// not recoverable without operator intervention.
	ErrCorruption = errors.New("store corrupted")

	// ErrQueryError indicates a malformed statement or parameter set.
	ErrQueryError = errors.New("query error")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
)
