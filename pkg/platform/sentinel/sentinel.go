package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors:
// - ErrNotFound: row does not exist
// - ErrConflict: row exists and belongs to someone else
// - ErrStale: a compare-and-swap lost to a concurrent writer
// - ErrInvalidState: row is in the wrong state for the requested change
// - ErrUnavailable: database or broker temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStale        = errors.New("stale")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
