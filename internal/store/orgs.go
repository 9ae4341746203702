package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"recap/internal/domain"
	"recap/internal/pkg/errors"
)

// PGOrganizationStore implements OrganizationStore on a pgx pool.
type PGOrganizationStore struct {
	pool *pgxpool.Pool
}

func NewPGOrganizationStore(pool *pgxpool.Pool) *PGOrganizationStore {
	return &PGOrganizationStore{pool: pool}
}

// Branding returns the organization's branding snapshot. Organizations that
// never configured branding get the zero value, not an error.
func (s *PGOrganizationStore) Branding(ctx context.Context, orgID string) (domain.Branding, error) {
	var raw *string
	err := s.pool.QueryRow(ctx,
		`SELECT branding FROM organizations WHERE id=$1`,
		orgID,
	).Scan(&raw)
	if isNoRows(err) {
		return domain.Branding{}, errors.NotFound("organization", orgID)
	}
	if err != nil {
		return domain.Branding{}, errors.Wrap(err, "store.orgs.branding", "query organization")
	}
	if raw == nil || *raw == "" {
		return domain.Branding{}, nil
	}

	var b domain.Branding
	if err := json.Unmarshal([]byte(*raw), &b); err != nil {
		return domain.Branding{}, errors.Wrap(err, "store.orgs.branding", "decode branding")
	}
	return b, nil
}
