package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/textmill/textmill/internal/domain"
	"github.com/textmill/textmill/internal/pagination"
	"github.com/textmill/textmill/internal/service"
)

const documentColumns = `id, project_id, filename, mime_type, size_bytes, status, processing_error,
	token_count, parser_type, chunking_strategy, embedding_model, uploaded_at, processed_at, created_at, updated_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.ProjectID, d.Filename, d.MimeType, d.SizeBytes, d.Status, nullableString(d.ProcessingError),
		d.TokenCount, nullableString(d.ParserType), nullableString(d.ChunkingStrategy), nullableString(d.EmbeddingModel),
		d.UploadedAt, d.ProcessedAt, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *DocumentRepository) ListByProjectWithCursor(ctx context.Context, projectID string, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE project_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			projectID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE project_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			projectID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	var nextCursor string
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.DocumentPageResult{
		Items:      docs,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ClaimForProcessing moves a document into the processing state only
// if it is currently claimable. Returns ErrDocumentAlreadyProcessing
// when another worker holds the claim and ErrDocumentNotFound when
// the document does not exist.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, processing_error = NULL, updated_at = $2
		 WHERE id = $3 AND status IN ($4, $5, $6)`,
		domain.DocumentStatusProcessing, time.Now().UTC(), id,
		domain.DocumentStatusUploaded, domain.DocumentStatusReady, domain.DocumentStatusFailed,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrDocumentAlreadyProcessing
	}
	return nil
}

// MarkReady completes processing, recording the total token count.
func (r *DocumentRepository) MarkReady(ctx context.Context, id string, processedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, processing_error = NULL, processed_at = $2, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		domain.DocumentStatusReady, processedAt, id, domain.DocumentStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// MarkFailed records a processing failure. The error message is
// truncated to fit the column.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, errMsg string, processedAt time.Time) error {
	if len(errMsg) > domain.MaxProcessingErrorLen {
		errMsg = errMsg[:domain.MaxProcessingErrorLen]
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, processing_error = $2, processed_at = $3, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		domain.DocumentStatusFailed, errMsg, processedAt, id, domain.DocumentStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// SetTokenCount persists the document's total token count. This lands
// before embedding so the count survives a later embedding failure.
func (r *DocumentRepository) SetTokenCount(ctx context.Context, id string, tokenCount int) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET token_count = $1, updated_at = $2 WHERE id = $3`,
		tokenCount, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// SetProcessingMeta records which parser, chunking strategy and
// embedding model produced the current chunks.
func (r *DocumentRepository) SetProcessingMeta(ctx context.Context, id, parserType, chunkingStrategy, embeddingModel string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET parser_type = $1, chunking_strategy = $2, embedding_model = $3, updated_at = $4
		 WHERE id = $5`,
		nullableString(parserType), nullableString(chunkingStrategy), nullableString(embeddingModel),
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var processingError, parserType, chunkingStrategy, embeddingModel pgtype.Text
	err := row.Scan(
		&d.ID, &d.ProjectID, &d.Filename, &d.MimeType, &d.SizeBytes, &d.Status, &processingError,
		&d.TokenCount, &parserType, &chunkingStrategy, &embeddingModel,
		&d.UploadedAt, &d.ProcessedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if processingError.Valid {
		d.ProcessingError = processingError.String
	}
	if parserType.Valid {
		d.ParserType = parserType.String
	}
	if chunkingStrategy.Valid {
		d.ChunkingStrategy = chunkingStrategy.String
	}
	if embeddingModel.Valid {
		d.EmbeddingModel = embeddingModel.String
	}
	return &d, nil
}
