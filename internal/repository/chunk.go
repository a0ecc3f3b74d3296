package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/textmill/textmill/internal/domain"
)

const chunkColumns = `id, document_id, chunk_index, heading, body, token_count,
	source_page_start, source_page_end, source_offset_start, source_offset_end, created_at`

// ChunkRepository persists chunks and serves the lexical side of
// hybrid search via Postgres full-text search.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts
// new ones. The search_vector column is computed at insert time with
// the heading weighted above the body.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks
				(id, document_id, chunk_index, heading, body, token_count,
				 source_page_start, source_page_end, source_offset_start, source_offset_end,
				 created_at, search_vector)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				 setweight(to_tsvector('english', coalesce($4, '')), 'A') ||
				 setweight(to_tsvector('english', $5), 'B'))`,
			c.ID,
			c.DocumentID,
			c.Index,
			c.Heading,
			c.Text,
			c.TokenCount,
			c.SourcePageStart,
			c.SourcePageEnd,
			c.SourceOffsetStart,
			c.SourceOffsetEnd,
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM chunks
		 WHERE document_id = $1
		 ORDER BY chunk_index ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// GetByIDs hydrates chunks after fusion. Missing IDs are silently
// absent from the result; callers resolve ordering themselves.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error) {
	if len(ids) == 0 {
		return map[string]*domain.Chunk{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks, err := scanChunkRows(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return byID, nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

// LexicalSearch ranks chunks in a project against a websearch-style
// query. Chunks of failed documents are excluded so stale content
// from a failed reprocess never surfaces. An empty documentID searches
// the whole project.
func (r *ChunkRepository) LexicalSearch(ctx context.Context, projectID, documentID, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id,
		        ts_rank(c.search_vector, websearch_to_tsquery('english', $2)) AS rank
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.project_id = $1
		   AND d.status != $3
		   AND c.search_vector @@ websearch_to_tsquery('english', $2)
		   AND ($5 = '' OR c.document_id = $5)
		 ORDER BY rank DESC, c.id ASC
		 LIMIT $4`,
		projectID, query, domain.DocumentStatusFailed, limit, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var chunks []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.Index, &c.Heading, &c.Text, &c.TokenCount,
			&c.SourcePageStart, &c.SourcePageEnd, &c.SourceOffsetStart, &c.SourceOffsetEnd,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
