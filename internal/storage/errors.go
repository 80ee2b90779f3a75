package storage

import "errors"

var (
	// ErrDuplicatePhoto means the (collection_id, content_hash) uniqueness
	// constraint fired. It is a terminal success state for ingestion, not
	// a failure.
	ErrDuplicatePhoto = errors.New("duplicate photo in collection")

	// ErrNotFound is returned by delete operations targeting a missing row.
	ErrNotFound = errors.New("not found")
)
