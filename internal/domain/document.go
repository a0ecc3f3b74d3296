package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the processing status of a document
type DocumentStatus string

// MaxProcessingErrorLen bounds the stored processing error message.
const MaxProcessingErrorLen = 2000

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an uploaded document belonging to a project.
// Its processing fields are mutated only by the processing pipeline.
type Document struct {
	ID               string
	ProjectID        string
	Filename         string
	MimeType         string
	SizeBytes        int64
	Status           DocumentStatus
	ProcessingError  string
	TokenCount       *int // set once chunking completes, survives embedding failure
	ParserType       string
	ChunkingStrategy string
	EmbeddingModel   string
	UploadedAt       time.Time
	ProcessedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewDocument creates a new Document in the uploaded state
func NewDocument(id, projectID, filename, mimeType string, sizeBytes int64, now time.Time) *Document {
	return &Document{
		ID:         id,
		ProjectID:  projectID,
		Filename:   filename,
		MimeType:   mimeType,
		SizeBytes:  sizeBytes,
		Status:     DocumentStatusUploaded,
		UploadedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanTransition reports whether a document status transition is legal.
// uploaded -> processing -> ready|failed is the normal machine; a
// reprocess restarts ready or failed documents from processing.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case DocumentStatusUploaded:
		return to == DocumentStatusProcessing
	case DocumentStatusProcessing:
		return to == DocumentStatusReady || to == DocumentStatusFailed
	case DocumentStatusReady, DocumentStatusFailed:
		return to == DocumentStatusProcessing
	}
	return false
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.ProjectID == "" {
		return fmt.Errorf("document ProjectID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing,
		DocumentStatusReady, DocumentStatusFailed:
		return true
	}
	return false
}
