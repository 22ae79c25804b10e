package freetext

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a write or search is issued against an
	// engine that is not in the Ready state.
	ErrNotReady = errors.New("freetext: engine not ready")

	// ErrSnapshotReleased is returned when a snapshot is released without a
	// matching acquire. This is a programming-contract violation, not an I/O
	// condition.
	ErrSnapshotReleased = errors.New("freetext: snapshot released without matching acquire")

	// ErrIndexLocked is returned when the index directory is exclusively
	// locked by another live process.
	ErrIndexLocked = errors.New("freetext: index locked by another process")
)

// WriteError indicates a mutation batch failed. The generation was not
// advanced and the engine remains usable for subsequent writes.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("freetext: error while building index: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SearchError indicates the caller-supplied search function failed against an
// acquired snapshot. The result is not trustworthy.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("freetext: error searching index: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// ReleaseError indicates a snapshot could not be returned to the pool. It is
// reported separately from SearchError so callers can tell an untrustworthy
// result from suspect resource accounting.
type ReleaseError struct {
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("freetext: error releasing searcher: %v", e.Err)
}

func (e *ReleaseError) Unwrap() error { return e.Err }
