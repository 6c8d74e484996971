package cast

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across subsystems. Stage failures are wrapped with
// these so the orchestrator can log them distinctly while recording a single
// human-readable error string on the item.
var (
	// ErrFetch marks a network or HTTP level failure reaching the source URL.
	ErrFetch = errors.New("fetch failed")

	// ErrNoContent marks an exhausted extraction cascade: the page was
	// fetched but no strategy produced usable text.
	ErrNoContent = errors.New("no usable content found")

	// ErrNotFound is returned by stores for unknown ids or URLs.
	ErrNotFound = errors.New("not found")

	// ErrInvalidURL rejects malformed or non-http submissions up front.
	ErrInvalidURL = errors.New("invalid url")

	// ErrDuplicateContent is returned by stores when a fingerprint is
	// already claimed by a different item.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrEmptyChunks is returned when synthesis is asked to convert nothing.
	ErrEmptyChunks = errors.New("no text chunks to synthesize")
)

// SynthesisError reports a failed chunk conversion. A single failed chunk
// aborts the whole item; no partial audio is ever persisted as success.
type SynthesisError struct {
	Chunk int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed for chunk %d: %v", e.Chunk, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
