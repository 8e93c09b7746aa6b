package engine

import "errors"

// Sentinel errors surfaced directly by the facade (spec §7). Strategy
// failures never reach the caller: the recall coordinator logs them and
// treats them as empty contributions. An extractor error in Remember is
// returned wrapped, without one of these sentinels. Field-limit violations surface as
// the shared types.ErrInvalidInput (see pkg/types/validation.go) rather than
// a facade-local duplicate.
var (
	ErrInvalidInput     = errors.New("engine: invalid input")
	ErrStoreUnavailable = errors.New("engine: store unavailable")
	ErrDeadlineExceeded = errors.New("engine: deadline exceeded")
	ErrNotStarted       = errors.New("engine: not started")
	ErrAlreadyStarted   = errors.New("engine: already started")
)
