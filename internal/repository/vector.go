package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/textmill/textmill/internal/domain"
)

// VectorRepository persists chunk embeddings and serves the semantic
// side of hybrid search via pgvector cosine distance.
type VectorRepository struct {
	db dbtx
}

func NewVectorRepository(pool *pgxpool.Pool) *VectorRepository {
	return &VectorRepository{db: pool}
}

func NewVectorRepositoryWithTx(tx pgx.Tx) *VectorRepository {
	return &VectorRepository{db: tx}
}

// ReplaceVectors deletes a document's vectors and inserts the new
// batch. chunks and embeddings are parallel slices.
func (r *VectorRepository) ReplaceVectors(ctx context.Context, projectID, documentID string, chunks []domain.Chunk, embeddings [][]float32) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for i, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunk_vectors (chunk_id, document_id, project_id, chunk_index, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, documentID, projectID, c.Index, pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *VectorRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	return err
}

// SemanticSearch ranks a project's chunks by cosine similarity to the
// query embedding. An empty documentID searches the whole project.
func (r *VectorRepository) SemanticSearch(ctx context.Context, projectID, documentID string, embedding []float32, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT v.chunk_id, v.document_id,
		        1 - (v.embedding <=> $2) AS similarity
		 FROM chunk_vectors v
		 JOIN documents d ON d.id = v.document_id
		 WHERE v.project_id = $1
		   AND d.status != $3
		   AND ($5 = '' OR v.document_id = $5)
		 ORDER BY v.embedding <=> $2 ASC, v.chunk_id ASC
		 LIMIT $4`,
		projectID, pgvector.NewVector(embedding), domain.DocumentStatusFailed, limit, documentID,
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
