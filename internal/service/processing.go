package service

import (
	"context"
	"fmt"
	"time"

	"github.com/textmill/textmill/internal/domain"
)

// ChunkRepositoryInterface defines chunk persistence used by the
// processing pipeline and search hydration.
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	LexicalSearch(ctx context.Context, projectID, documentID, query string, limit int) ([]domain.SearchHit, error)
}

// VectorRepositoryInterface defines embedding persistence.
type VectorRepositoryInterface interface {
	ReplaceVectors(ctx context.Context, projectID, documentID string, chunks []domain.Chunk, embeddings [][]float32) error
	DeleteByDocument(ctx context.Context, documentID string) error
	SemanticSearch(ctx context.Context, projectID, documentID string, embedding []float32, limit int) ([]domain.SearchHit, error)
}

// BatchEmbedder generates embeddings for a batch of texts in input
// order, all-or-nothing.
type BatchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// SectionExtractor parses raw bytes into sections. Declared as a
// function type so tests can substitute parsers.
type SectionExtractor func(filename string, data []byte) ([]Section, error)

// ProcessingService drives a document through the processing state
// machine: claim, extract, chunk, persist, embed, index.
type ProcessingService struct {
	docs      DocumentRepositoryInterface
	vectors   VectorRepositoryInterface
	blobs     BlobStore
	embedder  BatchEmbedder
	txRunner  TxRunner
	tokenizer Tokenizer
	extract   SectionExtractor

	chunkCfg       ChunkConfig
	embeddingModel string
	batchSize      int
	uuidGen        UUIDGenerator
	now            func() time.Time
}

type ProcessingConfig struct {
	ChunkConfig    ChunkConfig
	EmbeddingModel string
	BatchSize      int
}

func NewProcessingService(
	docs DocumentRepositoryInterface,
	vectors VectorRepositoryInterface,
	blobs BlobStore,
	embedder BatchEmbedder,
	txRunner TxRunner,
	tokenizer Tokenizer,
	cfg ProcessingConfig,
) *ProcessingService {
	if cfg.ChunkConfig.TargetTokens <= 0 {
		cfg.ChunkConfig = DefaultChunkConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 96
	}
	return &ProcessingService{
		docs:           docs,
		vectors:        vectors,
		blobs:          blobs,
		embedder:       embedder,
		txRunner:       txRunner,
		tokenizer:      tokenizer,
		extract:        ExtractSections,
		chunkCfg:       cfg.ChunkConfig,
		embeddingModel: cfg.EmbeddingModel,
		batchSize:      cfg.BatchSize,
		uuidGen:        &DefaultUUIDGenerator{},
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDocument runs the full pipeline for one document. The claim
// is a conditional status update, so two workers racing on the same
// document resolve to a single winner; the loser gets
// ErrDocumentAlreadyProcessing.
//
// Chunks and the document token count commit in one transaction
// before embedding starts, so a later embedding failure leaves the
// chunk set and token count intact.
func (s *ProcessingService) ProcessDocument(ctx context.Context, documentID string) error {
	if err := s.docs.ClaimForProcessing(ctx, documentID); err != nil {
		return err
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	data, err := s.blobs.Get(ctx, documentID)
	if err != nil {
		return s.fail(ctx, documentID, fmt.Errorf("load source: %w", err))
	}

	sections, err := s.extract(doc.Filename, data)
	if err != nil {
		return s.fail(ctx, documentID, fmt.Errorf("extract: %w", err))
	}

	chunks := ChunkSections(sections, s.chunkCfg, s.tokenizer)
	totalTokens := 0
	for i := range chunks {
		chunks[i].ID = s.uuidGen.NewString()
		chunks[i].DocumentID = documentID
		chunks[i].CreatedAt = s.now()
		totalTokens += chunks[i].TokenCount
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().ReplaceChunks(ctx, documentID, chunks); err != nil {
			return err
		}
		if err := repos.Documents().SetTokenCount(ctx, documentID, totalTokens); err != nil {
			return err
		}
		return repos.Documents().SetProcessingMeta(ctx, documentID, ParserTypeFor(doc.Filename), "sections", s.embeddingModel)
	})
	if err != nil {
		return s.fail(ctx, documentID, fmt.Errorf("persist chunks: %w", err))
	}

	// A document that parses to nothing is legal: it becomes ready
	// with zero chunks and never surfaces in search.
	if len(chunks) > 0 {
		embeddings, err := s.embedChunks(ctx, chunks)
		if err != nil {
			return s.fail(ctx, documentID, fmt.Errorf("embed: %w", err))
		}
		if err := s.vectors.ReplaceVectors(ctx, doc.ProjectID, documentID, chunks, embeddings); err != nil {
			return s.fail(ctx, documentID, fmt.Errorf("index vectors: %w", err))
		}
	} else {
		if err := s.vectors.DeleteByDocument(ctx, documentID); err != nil {
			return s.fail(ctx, documentID, fmt.Errorf("clear vectors: %w", err))
		}
	}

	return s.docs.MarkReady(ctx, documentID, s.now())
}

// embedChunks embeds chunk bodies in batches, preserving chunk order.
func (s *ProcessingService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

// fail transitions the document to failed, keeping the pipeline error
// as the primary result even if recording it also fails.
func (s *ProcessingService) fail(ctx context.Context, documentID string, cause error) error {
	if err := s.docs.MarkFailed(ctx, documentID, cause.Error(), s.now()); err != nil {
		return fmt.Errorf("%w (additionally failed to record: %v)", cause, err)
	}
	return cause
}
