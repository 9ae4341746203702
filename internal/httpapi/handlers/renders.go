package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"recap/internal/domain"
	"recap/internal/httpkit"
	"recap/internal/pkg/errors"
	"recap/internal/queue"
	"recap/internal/store"
)

type createRenderRequest struct {
	DatasetID   string `json:"datasetId" validate:"required"`
	TemplateID  string `json:"templateId" validate:"required"`
	AspectRatio string `json:"aspectRatio" validate:"omitempty,oneof=LANDSCAPE PORTRAIT SQUARE"`
	// Data, when present, replaces the dataset's parsed payload for this
	// job only. The dataset must still belong to the caller.
	Data json.RawMessage `json:"data,omitempty"`
}

type renderResponse struct {
	ID              string  `json:"id"`
	DatasetID       string  `json:"datasetId"`
	TemplateID      string  `json:"templateId"`
	AspectRatio     string  `json:"aspectRatio"`
	Status          string  `json:"status"`
	Progress        int     `json:"progress"`
	Attempt         int     `json:"attempt"`
	DurationSeconds *int    `json:"durationSeconds,omitempty"`
	Error           string  `json:"error,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	StartedAt       *string `json:"startedAt,omitempty"`
	CompletedAt     *string `json:"completedAt,omitempty"`
}

type downloadResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
	ExpiresIn int    `json:"expiresIn"`
}

func toRenderResponse(j *domain.RenderJob) renderResponse {
	resp := renderResponse{
		ID:          j.ID,
		DatasetID:   j.DatasetID,
		TemplateID:  j.TemplateID,
		AspectRatio: string(j.AspectRatio),
		Status:      string(j.Status),
		Progress:    j.Progress,
		Attempt:     j.Attempt,
		Error:       j.ErrorText,
		CreatedAt:   j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.Status == domain.StatusCompleted {
		d := j.DurationSeconds
		resp.DurationSeconds = &d
	}
	if j.StartedAt != nil {
		s := j.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// CreateRender accepts a submission, persists the job in QUEUED and makes
// it available to the workers. The job row is committed before the message
// is published; if publishing fails the row is marked FAILED so no QUEUED
// row lingers without a message behind it.
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	org := orgID(ctx)

	var req createRenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.WrapWithCode(err, errors.CodeBadRequest, "api.renders.create", "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "api.renders.create", "invalid submission")
	}

	if _, ok := domain.LookupTemplate(req.TemplateID); !ok {
		return errors.Validationf("unknown template: %s", req.TemplateID).
			WithField("field", "templateId")
	}
	aspect, err := domain.ParseAspectRatio(req.AspectRatio)
	if err != nil {
		return errors.Validation(err.Error()).WithField("field", "aspectRatio")
	}

	ds, err := h.d.Datasets.Get(ctx, org, req.DatasetID)
	if err != nil {
		return err
	}
	branding, err := h.d.Orgs.Branding(ctx, org)
	if err != nil {
		return err
	}

	data := ds.ParsedData
	if len(req.Data) > 0 {
		data = req.Data
	}
	props, err := json.Marshal(domain.InputProps{Branding: branding, Data: data})
	if err != nil {
		return errors.Wrap(err, "api.renders.create", "encode input props")
	}

	job := &domain.RenderJob{
		ID:             uuid.NewString(),
		OrganizationID: org,
		DatasetID:      ds.ID,
		TemplateID:     req.TemplateID,
		AspectRatio:    aspect,
		InputProps:     props,
		Status:         domain.StatusQueued,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.d.Jobs.Create(ctx, job); err != nil {
		return err
	}

	msg := queue.Message{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		TemplateID: job.TemplateID,
		Aspect:     job.AspectRatio,
		Attempt:    1,
	}
	if err := h.d.Queue.Enqueue(ctx, msg); err != nil {
		// The row exists but no worker will ever see it; fail it
		// explicitly rather than leave a zombie in QUEUED.
		if failErr := h.d.Jobs.Fail(ctx, job.ID, "could not enqueue render message"); failErr != nil {
			h.d.Log.FromContext(ctx).Error("could not fail unenqueued job",
				"job_id", job.ID, "error", failErr.Error())
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "api.renders.create", "queue unavailable")
	}
	if err := h.d.Jobs.SetQueueMessageID(ctx, job.ID, msg.ID); err != nil {
		// Bookkeeping only; the job still renders.
		h.d.Log.FromContext(ctx).Warn("could not record queue message id",
			"job_id", job.ID, "error", err.Error())
	}
	job.QueueMessageID = msg.ID

	httpkit.WriteJSON(w, http.StatusAccepted, toRenderResponse(job))
	return nil
}

func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) error {
	job, err := h.d.Jobs.Get(r.Context(), orgID(r.Context()), chi.URLParam(r, "jobID"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, toRenderResponse(job))
	return nil
}

func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	var f store.JobFilter
	if raw := q.Get("status"); raw != "" {
		s := domain.Status(raw)
		if !s.Valid() {
			return errors.Validationf("unknown status: %s", raw).WithField("field", "status")
		}
		f.Status = s
	}
	f.DatasetID = q.Get("datasetId")
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errors.Validation("limit must be a positive integer").WithField("field", "limit")
		}
		f.Limit = n
	}

	jobs, err := h.d.Jobs.List(r.Context(), orgID(r.Context()), f)
	if err != nil {
		return err
	}

	out := make([]renderResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toRenderResponse(j))
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"renders": out})
	return nil
}

func (h *Handler) DeleteRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	org := orgID(ctx)
	jobID := chi.URLParam(r, "jobID")

	job, err := h.d.Jobs.Get(ctx, org, jobID)
	if err != nil {
		return err
	}
	if err := h.d.Jobs.Delete(ctx, org, jobID); err != nil {
		return err
	}

	// The artifact goes too; a dangling record is worse than a dangling
	// file, so the object delete is best effort.
	if job.ArtifactKey != "" {
		if err := h.d.Storage.DeleteObject(ctx, job.ArtifactKey); err != nil {
			h.d.Log.FromContext(ctx).Warn("artifact cleanup failed",
				"job_id", jobID, "artifact_key", job.ArtifactKey, "error", err.Error())
		}
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// DownloadRender issues a short-lived signed URL for a finished render.
func (h *Handler) DownloadRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	job, err := h.d.Jobs.Get(ctx, orgID(ctx), chi.URLParam(r, "jobID"))
	if err != nil {
		return err
	}
	if job.Status != domain.StatusCompleted || job.ArtifactKey == "" {
		return errors.NotFound("render artifact", job.ID).
			WithField("status", string(job.Status))
	}

	signed, err := h.d.Storage.GetSignedURL(ctx, job.ArtifactKey, h.d.Signer.TTL())
	if err != nil {
		return errors.Wrap(err, "api.renders.download", "sign download url")
	}

	httpkit.WriteJSON(w, http.StatusOK, downloadResponse{
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresIn: int(time.Until(signed.ExpiresAt).Seconds()),
	})
	return nil
}
