package domain

import "errors"

// Index build failures.
var (
	ErrEmptyCorpus          = errors.New("empty corpus")
	ErrInvalidDocument      = errors.New("invalid document")
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")
	ErrPersistFailure       = errors.New("index persist failure")
)

// Index load failures. Both require an explicit rebuild.
var (
	ErrIndexNotFound = errors.New("index not found")
	ErrStaleIndex    = errors.New("index fingerprint mismatch")
)

// Search failures, fatal to the individual call only.
var (
	ErrIndexNotLoaded = errors.New("index not loaded")
	ErrEmptyQuery     = errors.New("empty query")
)

// External capability failures. Sessions retry these within a turn.
var (
	ErrServiceError      = errors.New("external service error")
	ErrActorTimeout      = errors.New("actor timeout")
	ErrGenerationTimeout = errors.New("generation timeout")
)
