package store

import "errors"

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when creating a document that already
	// exists, or on a unique index conflict.
	ErrAlreadyExists = errors.New("document already exists")
)
