// Package store persists render jobs and the submission-time reads
// (datasets, organization branding) in PostgreSQL.
package store

import (
	"context"
	"time"

	"recap/internal/domain"
)

// JobFilter narrows a listing. Zero values mean "no filter".
type JobFilter struct {
	Status    domain.Status
	DatasetID string
	// Limit is clamped to [1,200]; zero means the default of 50.
	Limit int
}

// JobStore is the single source of truth for render-job state. Submission
// writes identity and request fields once; the worker owns the lifecycle
// fields. Reads are organization-scoped except the worker's own lookup.
type JobStore interface {
	Create(ctx context.Context, job *domain.RenderJob) error
	SetQueueMessageID(ctx context.Context, jobID, messageID string) error

	Get(ctx context.Context, orgID, jobID string) (*domain.RenderJob, error)
	List(ctx context.Context, orgID string, f JobFilter) ([]*domain.RenderJob, error)
	// Delete removes a terminal job. It fails with a failed-precondition
	// error while the job is RENDERING.
	Delete(ctx context.Context, orgID, jobID string) error

	// GetByID is the worker-side lookup; the worker holds no organization
	// context, message scoping already happened at submission.
	GetByID(ctx context.Context, jobID string) (*domain.RenderJob, error)
	// MarkRendering starts an attempt: progress resets to 0, the error
	// text clears, started-at is stamped.
	MarkRendering(ctx context.Context, jobID string, attempt int, startedAt time.Time) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	// Complete finalizes a successful render: progress 100, artifact key,
	// duration and completion time set together.
	Complete(ctx context.Context, jobID, artifactKey string, durationSeconds int, completedAt time.Time) error
	Fail(ctx context.Context, jobID, errorText string) error
}

// DatasetStore is the submission-time boundary to the dataset table.
type DatasetStore interface {
	// Get returns the dataset only when it belongs to the organization.
	Get(ctx context.Context, orgID, datasetID string) (*domain.Dataset, error)
}

// OrganizationStore exposes the branding snapshot read.
type OrganizationStore interface {
	Branding(ctx context.Context, orgID string) (domain.Branding, error)
}
