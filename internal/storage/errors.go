package storage

import "errors"

var (
	// ErrConsistency is returned when a caller violates a store
	// precondition, e.g. mixing note ids in one replace call. This is a
	// programming error and callers should fail fast.
	ErrConsistency = errors.New("store consistency violation")
	// ErrUnavailable is returned when the store file cannot be opened or
	// written. Surfaced to the user; no partial writes are assumed.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNoModel is returned when a write is attempted before the open-time
	// rebuild/keep decision has registered a current model row.
	ErrNoModel = errors.New("no current model record")
)
