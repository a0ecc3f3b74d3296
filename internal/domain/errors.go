package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"

	// Processing pipeline error codes
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodeChunking          = "CHUNKING_ERROR"
	ErrCodeEmbeddingProvider = "EMBEDDING_PROVIDER_ERROR"
	ErrCodeIndexWrite        = "INDEX_WRITE_ERROR"
	ErrCodeIndexUnavailable  = "INDEX_UNAVAILABLE"
	ErrCodeUnavailable       = "UNAVAILABLE"
)

// Validation errors
var (
	ErrInvalidDocumentStatus  = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrUnsupportedFileType    = NewDomainError(ErrCodeParse, "unsupported file type")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidStateTransition = NewDomainError(ErrCodeInvalidOperation, "invalid document state transition")
)

// Not found errors
var (
	ErrDocumentNotFound      = NewDomainError(ErrCodeNotFound, "document not found")
	ErrChunkNotFound         = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrProjectNotFound       = NewDomainError(ErrCodeNotFound, "project not found")
	ErrAPIKeyNotFound        = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrProcessingJobNotFound = NewDomainError(ErrCodeNotFound, "processing job not found")
	ErrBlobNotFound          = NewDomainError(ErrCodeNotFound, "document source not found")
)

// Already exists errors
var (
	ErrProjectAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "project already exists")
	ErrAPIKeyAlreadyExists  = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Operation errors
var (
	ErrDocumentAlreadyProcessing = NewDomainError(ErrCodeInvalidOperation, "document is already being processed")
)

// Search errors
var (
	// ErrSearchUnavailable is returned when neither search backend can
	// answer; distinguishable from an empty result set.
	ErrSearchUnavailable = NewDomainError(ErrCodeUnavailable, "search unavailable")
)
