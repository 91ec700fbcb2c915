// Package errs defines the sentinel errors shared across kessa's
// components, one per error kind.
package errs

import "errors"

// ErrValidation means caller input failed a structural or enum check.
var ErrValidation = errors.New("kessa: validation failed")

// ErrNotFound means the requested entity does not exist.
var ErrNotFound = errors.New("kessa: not found")

// ErrAlreadyActive means a new GHAP entry was requested while one is
// already open for the session.
var ErrAlreadyActive = errors.New("kessa: a GHAP entry is already active")

// ErrJournalCorrupted means an on-disk journal file could not be read
// or written.
var ErrJournalCorrupted = errors.New("kessa: journal file corrupted")

// ErrCollectionNotFound means a vector store collection has not been
// created yet.
var ErrCollectionNotFound = errors.New("kessa: collection not found")

// ErrEmbeddingFailure means the embedding provider could not produce
// a vector for the given text.
var ErrEmbeddingFailure = errors.New("kessa: embedding failure")

// ErrInsufficientData means an operation (e.g. clustering) was asked
// to run over fewer inputs than it requires to produce a result.
var ErrInsufficientData = errors.New("kessa: insufficient data")

// ErrInternal covers failures that are not caller-correctable.
var ErrInternal = errors.New("kessa: internal error")

// Kind maps err to its error-kind name (§7), walking the wrapped
// chain. Returns "internal" for anything not one of the sentinels
// above.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrAlreadyActive):
		return "already-active"
	case errors.Is(err, ErrJournalCorrupted):
		return "journal-corrupted"
	case errors.Is(err, ErrCollectionNotFound):
		return "collection-not-found"
	case errors.Is(err, ErrEmbeddingFailure):
		return "embedding-failure"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient-data"
	default:
		return "internal"
	}
}
