package acl

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatekeep/gatekeep/internal/shared"
)

// PGDatasetRepository persists imported datasets in PostgreSQL.
type PGDatasetRepository struct {
	pool *pgxpool.Pool
}

// NewDatasetRepository constructs a repository.
func NewDatasetRepository(pool *pgxpool.Pool) *PGDatasetRepository {
	return &PGDatasetRepository{pool: pool}
}

// SaveDataset stores the raw payload as the newest dataset.
func (r *PGDatasetRepository) SaveDataset(ctx context.Context, payload []byte, source string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO acl_datasets (payload, source, imported_at) VALUES ($1, $2, now())`,
		payload, source)
	return err
}

// LatestDataset returns the most recently imported dataset.
func (r *PGDatasetRepository) LatestDataset(ctx context.Context) ([]byte, string, error) {
	var payload []byte
	var source string
	err := r.pool.QueryRow(ctx,
		`SELECT payload, source FROM acl_datasets ORDER BY imported_at DESC, id DESC LIMIT 1`).
		Scan(&payload, &source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", shared.ErrNotFound
		}
		return nil, "", err
	}
	return payload, source, nil
}

var _ DatasetRepository = (*PGDatasetRepository)(nil)
