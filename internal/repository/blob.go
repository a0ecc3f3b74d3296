package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/textmill/textmill/internal/domain"
)

// BlobRepository stores raw document bytes in Postgres. It backs the
// blob store when no object storage is configured.
type BlobRepository struct {
	db dbtx
}

func NewBlobRepository(pool *pgxpool.Pool) *BlobRepository {
	return &BlobRepository{db: pool}
}

func (r *BlobRepository) Put(ctx context.Context, documentID string, data []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO document_blobs (document_id, data)
		 VALUES ($1, $2)
		 ON CONFLICT (document_id) DO UPDATE SET data = EXCLUDED.data`,
		documentID, data,
	)
	return err
}

func (r *BlobRepository) Get(ctx context.Context, documentID string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT data FROM document_blobs WHERE document_id = $1`,
		documentID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *BlobRepository) Delete(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_blobs WHERE document_id = $1`, documentID)
	return err
}
