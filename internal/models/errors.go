package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the retrieval and chat services.
var (
	// ErrNotFound maps to 404: missing video, transcript, or turn.
	ErrNotFound = errors.New("not found")

	// ErrGenerationTimeout marks a provider call that exceeded its deadline,
	// distinct from a broken provider.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// InvalidRequestError is a malformed caller input; maps to 400 and is never
// retried.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return e.Message
}

// NewInvalidRequest builds an InvalidRequestError.
func NewInvalidRequest(format string, args ...interface{}) *InvalidRequestError {
	return &InvalidRequestError{Message: fmt.Sprintf(format, args...)}
}

// IsInvalidRequest reports whether err is an InvalidRequestError.
func IsInvalidRequest(err error) bool {
	var ir *InvalidRequestError
	return errors.As(err, &ir)
}

// EmbeddingUnavailableError means no embedding provider could be constructed
// or reached. Callers degrade to keyword-only retrieval; it is surfaced as a
// warning field, never as a request failure.
type EmbeddingUnavailableError struct {
	Reason string
}

func (e *EmbeddingUnavailableError) Error() string {
	return "embeddings unavailable: " + e.Reason
}

// EmbeddingDimensionMismatchError means the provider returned a vector whose
// length disagrees with its declared dimensionality. This indicates
// index/provider drift and must never be silently truncated.
type EmbeddingDimensionMismatchError struct {
	Want int
	Got  int
}

func (e *EmbeddingDimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d dims, got %d", e.Want, e.Got)
}

// GenerationFailedError is a terminal provider failure for the current turn.
type GenerationFailedError struct {
	Provider string
	Err      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed (provider %s): %v", e.Provider, e.Err)
}

func (e *GenerationFailedError) Unwrap() error {
	return e.Err
}
