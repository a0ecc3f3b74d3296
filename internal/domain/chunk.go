package domain

import (
	"fmt"
	"time"
)

// Chunk represents a contiguous slice of a document's text. Chunk
// indices for a document form a dense 0..N-1 sequence in document
// order; a chunk batch is replaced wholesale on reprocessing, never
// patched.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Heading    string
	Text       string
	TokenCount int

	// Source location, when the parser can provide one. Zero pointers
	// mean unknown (e.g. plaintext files have no pages).
	SourcePageStart   *int
	SourcePageEnd     *int
	SourceOffsetStart *int
	SourceOffsetEnd   *int

	CreatedAt time.Time
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.Index < 0 {
		return fmt.Errorf("chunk Index cannot be negative")
	}

	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}

	if c.TokenCount < 0 {
		return fmt.Errorf("chunk TokenCount cannot be negative")
	}

	return nil
}
