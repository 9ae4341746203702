// Package worker consumes render messages and drives each job from
// RENDERING to a terminal state.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"recap/internal/domain"
	"recap/internal/pkg/errors"
	"recap/internal/pkg/logger"
	"recap/internal/queue"
	"recap/internal/render"
	"recap/internal/store"
	"recap/internal/storage"
)

// ProcessorDeps wires the processor to its collaborators.
type ProcessorDeps struct {
	Jobs    store.JobStore
	Engine  render.Engine
	Storage storage.Provider
	Log     *logger.Logger

	// ScratchDir is where the engine writes videos before upload.
	ScratchDir string
	// RenderTimeout bounds one engine call. Zero means unbounded, the
	// queue's delivery deadline is then the only protection.
	RenderTimeout time.Duration
}

// Processor executes one delivery end to end. A nil return means the
// message must be acknowledged; an error hands the retry decision to the
// queue's backoff policy.
type Processor struct {
	d ProcessorDeps
}

func NewProcessor(d ProcessorDeps) *Processor {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	return &Processor{d: d}
}

func (p *Processor) Process(ctx context.Context, del *queue.Delivery) (err error) {
	log := p.d.Log.WithJobID(del.JobID).WithFields(map[string]any{
		"attempt":  del.Attempt,
		"template": del.TemplateID,
	})

	// A panic anywhere below must settle like a failed attempt, never
	// kill the worker slot.
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.CodeInternal, "render panicked: %v", r)
			log.Error("panic while processing job", "panic", fmt.Sprint(r))
			p.markFailed(del.JobID, err, log)
		}
	}()

	job, err := p.d.Jobs.GetByID(ctx, del.JobID)
	if err != nil {
		if errors.IsNotFound(err) {
			// Record deleted after enqueue; nothing left to render.
			log.Warn("job record gone, discarding message")
			return nil
		}
		return err
	}
	if job.Status == domain.StatusCompleted {
		// Redelivery of an already-completed job, e.g. an ack lost to a
		// worker crash. A FAILED job is not discarded here: redelivery
		// within the retry budget is exactly how it gets another attempt.
		log.Info("job already completed, discarding message")
		return nil
	}

	if err := p.d.Jobs.MarkRendering(ctx, job.ID, del.Attempt, time.Now().UTC()); err != nil {
		if errors.IsInvalidState(err) {
			// Lost the claim race to a completing worker.
			log.Info("job settled while claiming, discarding message")
			return nil
		}
		return err
	}

	result, outPath, err := p.renderJob(ctx, job, log)
	if err != nil {
		p.markFailed(job.ID, err, log)
		return err
	}
	defer p.cleanupScratch(outPath, log)

	key, err := p.uploadArtifact(ctx, job, outPath)
	if err != nil {
		p.markFailed(job.ID, err, log)
		return err
	}

	duration := result.DurationSeconds()
	if err := p.d.Jobs.Complete(ctx, job.ID, key, duration, time.Now().UTC()); err != nil {
		p.markFailed(job.ID, err, log)
		return err
	}

	log.Info("job completed",
		"artifact_key", key,
		"duration_seconds", duration,
	)
	return nil
}

// renderJob invokes the engine with progress persistence at ten-point steps.
func (p *Processor) renderJob(ctx context.Context, job *domain.RenderJob, log *logger.Logger) (*render.Result, string, error) {
	renderCtx := ctx
	if p.d.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, p.d.RenderTimeout)
		defer cancel()
	}

	width, height := job.AspectRatio.Dimensions()
	outPath := filepath.Join(p.d.ScratchDir, fmt.Sprintf("%s_%s.mp4", job.ID, job.AspectRatio))

	tracker := newProgressTracker()
	result, err := p.d.Engine.Render(renderCtx, render.Spec{
		JobID:      job.ID,
		TemplateID: job.TemplateID,
		Aspect:     job.AspectRatio,
		Width:      width,
		Height:     height,
		InputProps: job.InputProps,
		OutputPath: outPath,
		OnProgress: func(fraction float64) {
			step, due := tracker.observe(fraction)
			if !due {
				return
			}
			// Persistence failures only cost progress visibility.
			if err := p.d.Jobs.UpdateProgress(ctx, job.ID, step); err != nil {
				log.Warn("progress update failed", "error", err.Error())
			}
		},
	})
	if err != nil {
		return nil, "", err
	}
	return result, outPath, nil
}

func (p *Processor) uploadArtifact(ctx context.Context, job *domain.RenderJob, outPath string) (string, error) {
	f, err := os.Open(outPath)
	if err != nil {
		return "", errors.Wrap(err, "worker.upload", "open rendered video")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "worker.upload", "stat rendered video")
	}

	key := domain.ArtifactKey(job.OrganizationID, job.ID, job.AspectRatio)
	out, err := p.d.Storage.PutObject(ctx, storage.PutObjectInput{
		ObjectKey:   key,
		ContentType: "video/mp4",
		Reader:      f,
		Size:        info.Size(),
	})
	if err != nil {
		return "", errors.Wrap(err, "worker.upload", "upload artifact")
	}
	return out.ObjectKey, nil
}

// markFailed records the attempt's failure on the job row. The queue decides
// separately whether a retry follows; a redelivered message moves the job
// back into RENDERING.
func (p *Processor) markFailed(jobID string, cause error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.d.Jobs.Fail(ctx, jobID, cause.Error()); err != nil {
		log.Error("could not record job failure", "error", err.Error())
	}
}

func (p *Processor) cleanupScratch(path string, log *logger.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("scratch cleanup failed", "path", path, "error", err.Error())
	}
}

// progressTracker converts raw fractions into ten-point steps and reports
// each step at most once.
type progressTracker struct {
	last int
}

func newProgressTracker() *progressTracker {
	return &progressTracker{last: -1}
}

// observe returns the percentage rounded down to a step of ten and whether
// it crossed into a new step.
func (t *progressTracker) observe(fraction float64) (step int, due bool) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	step = int(fraction*100) / 10 * 10
	if step <= t.last {
		return step, false
	}
	t.last = step
	return step, true
}
