package domain

import "errors"

// Sentinel errors for collaborator failures.
var (
	// ErrSourceUnavailable means the record backend could not be reached.
	// Fatal to a rebuild; the index keeps serving its last corpus.
	ErrSourceUnavailable = errors.New("record source unavailable")

	// ErrEmbedderUnavailable means the embedding capability failed.
	// Fatal to search and rebuild, propagated as-is.
	ErrEmbedderUnavailable = errors.New("embedding capability unavailable")
)
