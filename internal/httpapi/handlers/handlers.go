// Package handlers implements the render pipeline's HTTP endpoints.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"recap/internal/httpkit"
	"recap/internal/pkg/errors"
	"recap/internal/pkg/logger"
	"recap/internal/queue"
	"recap/internal/signing"
	"recap/internal/storage"
	"recap/internal/store"
)

// OrganizationHeader scopes every tenant-facing request. Authentication
// happens upstream; this service trusts the header.
const OrganizationHeader = "X-Organization-ID"

type orgIDKey struct{}

type Deps struct {
	Jobs     store.JobStore
	Datasets store.DatasetStore
	Orgs     store.OrganizationStore
	Queue    queue.Queue
	Storage  storage.Provider
	Signer   *signing.Signer
	Log      *logger.Logger

	// Pool and RDB back the deep health check only.
	Pool *pgxpool.Pool
	RDB  *redis.Client
}

type Handler struct {
	d        Deps
	validate *validator.Validate
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	return &Handler{
		d:        d,
		validate: validator.New(),
	}
}

// RequireOrganization rejects requests without an organization header and
// stashes the id in the context for the handlers.
func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(OrganizationHeader)
		if id == "" {
			httpkit.WriteErr(w, http.StatusUnauthorized,
				string(errors.CodeUnauthorized),
				"missing "+OrganizationHeader+" header", nil)
			return
		}
		ctx := context.WithValue(r.Context(), orgIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func orgID(ctx context.Context) string {
	id, _ := ctx.Value(orgIDKey{}).(string)
	return id
}
