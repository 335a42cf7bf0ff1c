package store

import "errors"

var (
	// ErrStorageUnavailable means the backend could not be opened at all.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRecordNotFound     = errors.New("record not found")
	// ErrMalformedEmbeddedData marks an embedded JSON field that failed to
	// decode. Reads log it and fall back to the empty value.
	ErrMalformedEmbeddedData = errors.New("malformed embedded data")
	ErrInvariantViolation    = errors.New("invariant violation")
	ErrDuplicateCharacter    = errors.New("duplicate character name")
)
