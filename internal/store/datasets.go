package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"recap/internal/domain"
	"recap/internal/pkg/errors"
)

// PGDatasetStore implements DatasetStore on a pgx pool.
type PGDatasetStore struct {
	pool *pgxpool.Pool
}

func NewPGDatasetStore(pool *pgxpool.Pool) *PGDatasetStore {
	return &PGDatasetStore{pool: pool}
}

// Get scopes the lookup by organization so a dataset id from another tenant
// reads the same as a missing one.
func (s *PGDatasetStore) Get(ctx context.Context, orgID, datasetID string) (*domain.Dataset, error) {
	var (
		d        domain.Dataset
		category string
		parsed   string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, category, parsed_data, created_at
		 FROM datasets WHERE id=$1 AND organization_id=$2`,
		datasetID, orgID,
	).Scan(&d.ID, &d.OrganizationID, &d.Name, &category, &parsed, &d.CreatedAt)
	if isNoRows(err) {
		return nil, errors.NotFound("dataset", datasetID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store.datasets.get", "query dataset")
	}
	d.Category = domain.Category(category)
	d.ParsedData = []byte(parsed)
	return &d, nil
}
