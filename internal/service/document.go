package service

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/textmill/textmill/internal/domain"
	"github.com/textmill/textmill/internal/pagination"
	"github.com/textmill/textmill/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByProjectWithCursor(ctx context.Context, projectID string, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
	ClaimForProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, processedAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, processedAt time.Time) error
	SetTokenCount(ctx context.Context, id string, tokenCount int) error
	SetProcessingMeta(ctx context.Context, id, parserType, chunkingStrategy, embeddingModel string) error
	Delete(ctx context.Context, id string) error
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// ProcessingJobRepositoryInterface defines the repository interface for processing job persistence
type ProcessingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.ProcessingJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
	RequeueForRetry(ctx context.Context, id, errMsg string) error
}

// ProjectRepositoryInterface is the slice of project persistence the
// document service needs.
type ProjectRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Project, error)
}

// BlobStore persists raw uploaded bytes, keyed by document ID.
type BlobStore interface {
	Put(ctx context.Context, documentID string, data []byte) error
	Get(ctx context.Context, documentID string) ([]byte, error)
	Delete(ctx context.Context, documentID string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// DocumentService handles document lifecycle outside of processing:
// upload, listing, reprocess requests and deletion.
type DocumentService struct {
	docs     DocumentRepositoryInterface
	projects ProjectRepositoryInterface
	chunks   ChunkRepositoryInterface
	vectors  VectorRepositoryInterface
	jobs     ProcessingJobRepositoryInterface
	blobs    BlobStore
	uuidGen  UUIDGenerator
}

func NewDocumentService(
	docs DocumentRepositoryInterface,
	projects ProjectRepositoryInterface,
	chunks ChunkRepositoryInterface,
	vectors VectorRepositoryInterface,
	jobs ProcessingJobRepositoryInterface,
	blobs BlobStore,
) *DocumentService {
	return &DocumentService{
		docs:     docs,
		projects: projects,
		chunks:   chunks,
		vectors:  vectors,
		jobs:     jobs,
		blobs:    blobs,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// NewDocumentServiceWithUUIDGen creates a DocumentService with a custom UUID generator (for testing)
func NewDocumentServiceWithUUIDGen(
	docs DocumentRepositoryInterface,
	projects ProjectRepositoryInterface,
	chunks ChunkRepositoryInterface,
	vectors VectorRepositoryInterface,
	jobs ProcessingJobRepositoryInterface,
	blobs BlobStore,
	uuidGen UUIDGenerator,
) *DocumentService {
	svc := NewDocumentService(docs, projects, chunks, vectors, jobs, blobs)
	svc.uuidGen = uuidGen
	return svc
}

// UploadInput represents the input for uploading a document
type UploadInput struct {
	ProjectID string
	Filename  string
	MimeType  string
	Data      []byte
}

type ListDocumentsInput struct {
	ProjectID string
	Cursor    string
	Limit     int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// Upload validates and stores a new document, then queues a
// processing job. Unsupported file types are rejected before any
// document row exists.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Upload", telemetry.SpanAttributes{
		ProjectID: input.ProjectID,
		Operation: "upload",
	})
	defer span.End()

	if input.Filename == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename is required")
	}
	if len(input.Data) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "file is empty")
	}
	if ParserTypeFor(input.Filename) == "" {
		return nil, domain.ErrUnsupportedFileType
	}

	if _, err := s.projects.GetByID(ctx, input.ProjectID); err != nil {
		span.SetError(err)
		return nil, err
	}

	now := time.Now().UTC()
	doc := domain.NewDocument(s.uuidGen.NewString(), input.ProjectID, input.Filename, input.MimeType, int64(len(input.Data)), now)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := s.blobs.Put(ctx, doc.ID, input.Data); err != nil {
		span.SetError(err)
		return nil, err
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), doc.ID, now)
	if err := s.jobs.Create(ctx, job); err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetStatus(sentry.SpanStatusOK)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.List", telemetry.SpanAttributes{
		ProjectID: input.ProjectID,
		Operation: "list",
	})
	defer span.End()

	var cursor *pagination.Cursor
	if input.Cursor != "" {
		decoded, err := pagination.DecodeCursor(input.Cursor)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
		}
		cursor = decoded
	}

	page, err := s.docs.ListByProjectWithCursor(ctx, input.ProjectID, cursor, input.Limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// ListChunks returns a document's chunks in index order.
func (s *DocumentService) ListChunks(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.chunks.ListByDocument(ctx, documentID)
}

// Reprocess queues a document for another processing run. Documents
// currently processing cannot be requeued.
func (s *DocumentService) Reprocess(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Reprocess", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "reprocess",
	})
	defer span.End()

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == domain.DocumentStatusProcessing {
		return domain.ErrDocumentAlreadyProcessing
	}

	job := domain.NewProcessingJob(s.uuidGen.NewString(), doc.ID, time.Now().UTC())
	if err := s.jobs.Create(ctx, job); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

// Delete removes a document and everything derived from it: chunks,
// vectors and the stored source bytes.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "delete",
	})
	defer span.End()

	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return err
	}

	if err := s.vectors.DeleteByDocument(ctx, documentID); err != nil {
		span.SetError(err)
		return err
	}
	if err := s.chunks.DeleteByDocument(ctx, documentID); err != nil {
		span.SetError(err)
		return err
	}
	if err := s.blobs.Delete(ctx, documentID); err != nil {
		span.SetError(err)
		return err
	}
	if err := s.docs.Delete(ctx, documentID); err != nil {
		span.SetError(err)
		return err
	}

	span.SetStatus(sentry.SpanStatusOK)
	return nil
}
