package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned by a Backend when a key has never been written.
	ErrNotFound = errors.New("record not found")
)
