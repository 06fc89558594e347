package domain

import "errors"

var (
	// ErrInvalidInput indicates a malformed or empty required field. Callers should not retry.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtractionFailed indicates the metadata extractor was unreachable, timed out or
	// returned a non-success status. Nothing was persisted; callers may retry.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrStoreUnavailable indicates the relational transaction could not complete.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrProjectionFailed indicates the graph store rejected a projection. It is logged,
	// never returned from pipeline operations.
	ErrProjectionFailed = errors.New("projection failed")
	// ErrNotFound indicates the referenced item does not exist.
	ErrNotFound = errors.New("not found")
)
