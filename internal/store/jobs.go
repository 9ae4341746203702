package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"recap/internal/domain"
	"recap/internal/pkg/errors"
)

const jobColumns = `id, organization_id, dataset_id, template_id, aspect_ratio,
	input_props, status, progress, attempt, COALESCE(queue_message_id,''),
	COALESCE(artifact_key,''), duration_seconds, COALESCE(error_text,''),
	created_at, started_at, completed_at`

// PGJobStore implements JobStore on a pgx pool.
type PGJobStore struct {
	pool *pgxpool.Pool
}

func NewPGJobStore(pool *pgxpool.Pool) *PGJobStore {
	return &PGJobStore{pool: pool}
}

func (s *PGJobStore) Create(ctx context.Context, job *domain.RenderJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO render_jobs
		   (id, organization_id, dataset_id, template_id, aspect_ratio,
		    input_props, status, progress, attempt, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,0,0,$8)`,
		job.ID, job.OrganizationID, job.DatasetID, job.TemplateID,
		string(job.AspectRatio), string(job.InputProps), string(job.Status),
		job.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.CodeConflict, "render job already exists").WithField("job_id", job.ID)
		}
		return errors.Wrap(err, "store.jobs.create", "insert render job")
	}
	return nil
}

func (s *PGJobStore) SetQueueMessageID(ctx context.Context, jobID, messageID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE render_jobs SET queue_message_id=$2 WHERE id=$1`,
		jobID, messageID,
	)
	if err != nil {
		return errors.Wrap(err, "store.jobs.message_id", "record queue message id")
	}
	return nil
}

func (s *PGJobStore) Get(ctx context.Context, orgID, jobID string) (*domain.RenderJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM render_jobs WHERE id=$1 AND organization_id=$2`,
		jobID, orgID,
	)
	return scanJob(row, jobID)
}

func (s *PGJobStore) GetByID(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM render_jobs WHERE id=$1`,
		jobID,
	)
	return scanJob(row, jobID)
}

func (s *PGJobStore) List(ctx context.Context, orgID string, f JobFilter) ([]*domain.RenderJob, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE organization_id=$1`
	args := []any{orgID}

	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status=$2`
	}
	if f.DatasetID != "" {
		args = append(args, f.DatasetID)
		if f.Status != "" {
			query += ` AND dataset_id=$3`
		} else {
			query += ` AND dataset_id=$2`
		}
	}
	args = append(args, limit)
	switch len(args) {
	case 2:
		query += ` ORDER BY created_at DESC LIMIT $2`
	case 3:
		query += ` ORDER BY created_at DESC LIMIT $3`
	default:
		query += ` ORDER BY created_at DESC LIMIT $4`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "store.jobs.list", "query render jobs")
	}
	defer rows.Close()

	var out []*domain.RenderJob
	for rows.Next() {
		job, err := scanJob(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store.jobs.list", "iterate render jobs")
	}
	return out, nil
}

func (s *PGJobStore) Delete(ctx context.Context, orgID, jobID string) error {
	// The status guard lives in the statement so a job that starts
	// rendering between read and delete is still protected.
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM render_jobs
		 WHERE id=$1 AND organization_id=$2 AND status IN ('COMPLETED','FAILED')`,
		jobID, orgID,
	)
	if err != nil {
		return errors.Wrap(err, "store.jobs.delete", "delete render job")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	job, err := s.Get(ctx, orgID, jobID)
	if err != nil {
		return err
	}
	return errors.InvalidState("job is " + string(job.Status) + ", only finished jobs can be deleted").
		WithField("job_id", jobID).
		WithField("status", string(job.Status))
}

// MarkRendering claims the job for a new attempt. The status guard lives in
// the UPDATE so a delayed redelivery racing a completing worker cannot drag a
// COMPLETED row back to RENDERING; FAILED is a legal source because that is
// how a retried job re-enters the pipeline.
func (s *PGJobStore) MarkRendering(ctx context.Context, jobID string, attempt int, startedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE render_jobs
		 SET status='RENDERING', progress=0, attempt=$2, started_at=$3,
		     completed_at=NULL, error_text=NULL
		 WHERE id=$1 AND status <> 'COMPLETED'`,
		jobID, attempt, startedAt,
	)
	if err != nil {
		return errors.Wrap(err, "store.jobs.rendering", "mark job rendering")
	}
	if tag.RowsAffected() == 0 {
		return errors.InvalidState("job is completed or gone, not restarting").
			WithField("job_id", jobID)
	}
	return nil
}

func (s *PGJobStore) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE render_jobs SET progress=$2 WHERE id=$1 AND status='RENDERING'`,
		jobID, progress,
	)
	if err != nil {
		return errors.Wrap(err, "store.jobs.progress", "update progress")
	}
	return nil
}

func (s *PGJobStore) Complete(ctx context.Context, jobID, artifactKey string, durationSeconds int, completedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE render_jobs
		 SET status='COMPLETED', progress=100, artifact_key=$2,
		     duration_seconds=$3, completed_at=$4
		 WHERE id=$1`,
		jobID, artifactKey, durationSeconds, completedAt,
	)
	if err != nil {
		return errors.Wrap(err, "store.jobs.complete", "finalize job")
	}
	return nil
}

func (s *PGJobStore) Fail(ctx context.Context, jobID, errorText string) error {
	if len(errorText) > 2000 {
		errorText = errorText[:2000]
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE render_jobs
		 SET status='FAILED', error_text=$2, completed_at=$3
		 WHERE id=$1`,
		jobID, errorText, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "store.jobs.fail", "record job failure")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, jobID string) (*domain.RenderJob, error) {
	var (
		j                 domain.RenderJob
		aspect, status    string
		inputProps        string
		startedAt, doneAt *time.Time
	)
	err := row.Scan(
		&j.ID, &j.OrganizationID, &j.DatasetID, &j.TemplateID, &aspect,
		&inputProps, &status, &j.Progress, &j.Attempt, &j.QueueMessageID,
		&j.ArtifactKey, &j.DurationSeconds, &j.ErrorText,
		&j.CreatedAt, &startedAt, &doneAt,
	)
	if isNoRows(err) {
		return nil, errors.NotFound("render job", jobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "store.jobs.scan", "scan render job")
	}
	j.AspectRatio = domain.AspectRatio(aspect)
	j.Status = domain.Status(status)
	j.InputProps = []byte(inputProps)
	j.StartedAt = startedAt
	j.CompletedAt = doneAt
	return &j, nil
}
