package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"recap/internal/domain"
	"recap/internal/pkg/errors"
	"recap/internal/ports"
	"recap/internal/queue"
	"recap/internal/render"
	"recap/internal/store"
)

// fakeJobStore records lifecycle writes the way the worker issues them.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.RenderJob

	progressWrites []int
	failText       string
}

func newFakeJobStore(jobs ...*domain.RenderJob) *fakeJobStore {
	m := make(map[string]*domain.RenderJob)
	for _, j := range jobs {
		m[j.ID] = j
	}
	return &fakeJobStore{jobs: m}
}

func (f *fakeJobStore) Create(ctx context.Context, job *domain.RenderJob) error { return nil }
func (f *fakeJobStore) SetQueueMessageID(ctx context.Context, jobID, messageID string) error {
	return nil
}
func (f *fakeJobStore) Get(ctx context.Context, orgID, jobID string) (*domain.RenderJob, error) {
	return f.GetByID(ctx, jobID)
}
func (f *fakeJobStore) List(ctx context.Context, orgID string, flt store.JobFilter) ([]*domain.RenderJob, error) {
	return nil, nil
}
func (f *fakeJobStore) Delete(ctx context.Context, orgID, jobID string) error { return nil }

func (f *fakeJobStore) GetByID(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, errors.NotFound("render job", jobID)
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStore) MarkRendering(ctx context.Context, jobID string, attempt int, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status == domain.StatusCompleted {
		return errors.InvalidState("job is completed or gone, not restarting")
	}
	j.Status = domain.StatusRendering
	j.Progress = 0
	j.Attempt = attempt
	j.StartedAt = &startedAt
	j.ErrorText = ""
	return nil
}

func (f *fakeJobStore) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].Progress = progress
	f.progressWrites = append(f.progressWrites, progress)
	return nil
}

func (f *fakeJobStore) Complete(ctx context.Context, jobID, artifactKey string, durationSeconds int, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Status = domain.StatusCompleted
	j.Progress = 100
	j.ArtifactKey = artifactKey
	j.DurationSeconds = durationSeconds
	j.CompletedAt = &completedAt
	return nil
}

func (f *fakeJobStore) Fail(ctx context.Context, jobID, errorText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Status = domain.StatusFailed
	j.ErrorText = errorText
	f.failText = errorText
	return nil
}

func (f *fakeJobStore) job(id string) domain.RenderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

// fakeEngine writes the output file and replays scripted progress.
type fakeEngine struct {
	fractions []float64
	result    render.Result
	err       error
}

func (e *fakeEngine) Render(ctx context.Context, spec render.Spec) (*render.Result, error) {
	for _, f := range e.fractions {
		if spec.OnProgress != nil {
			spec.OnProgress(f)
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	if err := os.WriteFile(spec.OutputPath, []byte("mp4-bytes"), 0o644); err != nil {
		return nil, err
	}
	r := e.result
	return &r, nil
}

// memStorage keeps uploaded objects in a map.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Provider() string { return "mem" }

func (m *memStorage) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if m.putErr != nil {
		return ports.PutObjectOutput{}, m.putErr
	}
	b, err := io.ReadAll(in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	m.mu.Lock()
	m.objects[in.ObjectKey] = b
	m.mu.Unlock()
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: int64(len(b))}, nil
}

func (m *memStorage) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, string, int64, error) {
	return nil, "", 0, fmt.Errorf("not implemented")
}
func (m *memStorage) DeleteObject(ctx context.Context, objectKey string) error { return nil }
func (m *memStorage) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, fmt.Errorf("not implemented")
}

func queuedJob(id string) *domain.RenderJob {
	return &domain.RenderJob{
		ID:             id,
		OrganizationID: "org-1",
		DatasetID:      "ds-1",
		TemplateID:     "track-athlete-season-recap",
		AspectRatio:    domain.AspectLandscape,
		InputProps:     json.RawMessage(`{"branding":{},"data":{}}`),
		Status:         domain.StatusQueued,
		CreatedAt:      time.Now().UTC(),
	}
}

func delivery(jobID string, attempt int) *queue.Delivery {
	return &queue.Delivery{Message: queue.Message{
		ID:         "msg-" + jobID,
		JobID:      jobID,
		TemplateID: "track-athlete-season-recap",
		Aspect:     domain.AspectLandscape,
		Attempt:    attempt,
	}}
}

func newTestProcessor(t *testing.T, jobs *fakeJobStore, engine render.Engine, st *memStorage) *Processor {
	t.Helper()
	return NewProcessor(ProcessorDeps{
		Jobs:       jobs,
		Engine:     engine,
		Storage:    st,
		ScratchDir: t.TempDir(),
	})
}

func TestProcessSuccess(t *testing.T) {
	jobs := newFakeJobStore(queuedJob("job-1"))
	st := newMemStorage()
	engine := &fakeEngine{
		fractions: []float64{0.05, 0.12, 0.25, 0.27, 0.5, 0.99, 1.0},
		result:    render.Result{DurationInFrames: 900, FPS: 30},
	}
	p := newTestProcessor(t, jobs, engine, st)

	if err := p.Process(context.Background(), delivery("job-1", 1)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	j := jobs.job("job-1")
	if j.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", j.Status)
	}
	if j.DurationSeconds != 30 {
		t.Errorf("duration = %d, want 30", j.DurationSeconds)
	}
	wantKey := "videos/org-1/job-1_LANDSCAPE.mp4"
	if j.ArtifactKey != wantKey {
		t.Errorf("artifact key = %q, want %q", j.ArtifactKey, wantKey)
	}
	if _, ok := st.objects[wantKey]; !ok {
		t.Error("artifact not uploaded")
	}
	if j.Attempt != 1 {
		t.Errorf("attempt = %d", j.Attempt)
	}

	// Only new ten-point steps are persisted.
	want := []int{0, 10, 20, 50, 90, 100}
	if len(jobs.progressWrites) != len(want) {
		t.Fatalf("progress writes = %v, want %v", jobs.progressWrites, want)
	}
	for i, w := range want {
		if jobs.progressWrites[i] != w {
			t.Errorf("progress write %d = %d, want %d", i, jobs.progressWrites[i], w)
		}
	}
}

func TestProcessEngineFailure(t *testing.T) {
	jobs := newFakeJobStore(queuedJob("job-1"))
	engine := &fakeEngine{err: fmt.Errorf("composition blew up")}
	p := newTestProcessor(t, jobs, engine, newMemStorage())

	err := p.Process(context.Background(), delivery("job-1", 2))
	if err == nil {
		t.Fatal("expected error so the queue can schedule a retry")
	}

	j := jobs.job("job-1")
	if j.Status != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", j.Status)
	}
	if jobs.failText == "" {
		t.Error("failure text not recorded")
	}
	if j.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", j.Attempt)
	}
}

func TestProcessUploadFailure(t *testing.T) {
	jobs := newFakeJobStore(queuedJob("job-1"))
	st := newMemStorage()
	st.putErr = fmt.Errorf("bucket gone")
	engine := &fakeEngine{result: render.Result{DurationInFrames: 300, FPS: 30}}
	p := newTestProcessor(t, jobs, engine, st)

	if err := p.Process(context.Background(), delivery("job-1", 1)); err == nil {
		t.Fatal("expected upload error")
	}
	if j := jobs.job("job-1"); j.Status != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", j.Status)
	}
}

func TestProcessDiscardsCompletedJob(t *testing.T) {
	done := queuedJob("job-1")
	done.Status = domain.StatusCompleted
	jobs := newFakeJobStore(done)
	engine := &fakeEngine{err: fmt.Errorf("should never run")}
	p := newTestProcessor(t, jobs, engine, newMemStorage())

	if err := p.Process(context.Background(), delivery("job-1", 1)); err != nil {
		t.Fatalf("redelivery of settled job must ack cleanly, got %v", err)
	}
	if j := jobs.job("job-1"); j.Status != domain.StatusCompleted {
		t.Errorf("status changed to %s", j.Status)
	}
}

// A FAILED job is not settled while the retry budget lasts: redelivery must
// run the engine again, not be discarded as terminal.
func TestProcessRedeliveryRetriesFailedJob(t *testing.T) {
	j := queuedJob("job-1")
	j.Status = domain.StatusFailed
	j.ErrorText = "attempt 1 blew up"
	jobs := newFakeJobStore(j)
	engine := &fakeEngine{
		fractions: []float64{1.0},
		result:    render.Result{DurationInFrames: 900, FPS: 30},
	}
	st := newMemStorage()
	p := newTestProcessor(t, jobs, engine, st)

	if err := p.Process(context.Background(), delivery("job-1", 2)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := jobs.job("job-1")
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED after retry", got.Status)
	}
	if got.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", got.Attempt)
	}
	if _, ok := st.objects["videos/org-1/job-1_LANDSCAPE.mp4"]; !ok {
		t.Error("retry did not upload the artifact")
	}
}

// staleReadStore simulates a read racing a completing worker: the lookup
// still sees RENDERING while the row is already COMPLETED underneath.
type staleReadStore struct {
	*fakeJobStore
}

func (s *staleReadStore) GetByID(ctx context.Context, jobID string) (*domain.RenderJob, error) {
	j, err := s.fakeJobStore.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	j.Status = domain.StatusRendering
	return j, nil
}

func TestProcessDiscardsJobSettledDuringClaim(t *testing.T) {
	done := queuedJob("job-1")
	done.Status = domain.StatusCompleted
	done.ArtifactKey = "videos/org-1/job-1_LANDSCAPE.mp4"
	jobs := newFakeJobStore(done)
	engine := &fakeEngine{err: fmt.Errorf("should never run")}
	p := NewProcessor(ProcessorDeps{
		Jobs:       &staleReadStore{jobs},
		Engine:     engine,
		Storage:    newMemStorage(),
		ScratchDir: t.TempDir(),
	})

	if err := p.Process(context.Background(), delivery("job-1", 2)); err != nil {
		t.Fatalf("lost claim race must ack cleanly, got %v", err)
	}
	got := jobs.job("job-1")
	if got.Status != domain.StatusCompleted {
		t.Errorf("status = %s, completed row was dragged back", got.Status)
	}
	if got.ArtifactKey == "" {
		t.Error("artifact reference lost")
	}
}

func TestProcessDiscardsMissingJob(t *testing.T) {
	jobs := newFakeJobStore()
	p := newTestProcessor(t, jobs, &fakeEngine{}, newMemStorage())

	if err := p.Process(context.Background(), delivery("gone", 1)); err != nil {
		t.Fatalf("missing job must ack cleanly, got %v", err)
	}
}

func TestProcessRetryResetsProgress(t *testing.T) {
	j := queuedJob("job-1")
	j.Status = domain.StatusFailed
	j.Progress = 70
	j.ErrorText = "first attempt failed"
	jobs := newFakeJobStore(j)
	engine := &fakeEngine{
		fractions: []float64{1.0},
		result:    render.Result{DurationInFrames: 150, FPS: 30},
	}
	p := newTestProcessor(t, jobs, engine, newMemStorage())

	if err := p.Process(context.Background(), delivery("job-1", 2)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := jobs.job("job-1")
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.DurationSeconds != 5 {
		t.Errorf("duration = %d, want 5", got.DurationSeconds)
	}
	if got.ErrorText != "" {
		t.Errorf("error text not cleared: %q", got.ErrorText)
	}
}

func TestProgressTracker(t *testing.T) {
	tr := newProgressTracker()

	cases := []struct {
		fraction float64
		wantStep int
		wantDue  bool
	}{
		{0.0, 0, true},
		{0.05, 0, false},
		{0.11, 10, true},
		{0.19, 10, false},
		{0.52, 50, true}, // skipped steps collapse into one write
		{0.50, 50, false},
		{1.0, 100, true},
		{1.5, 100, false},
	}
	for _, tc := range cases {
		step, due := tr.observe(tc.fraction)
		if step != tc.wantStep || due != tc.wantDue {
			t.Errorf("observe(%v) = (%d, %v), want (%d, %v)", tc.fraction, step, due, tc.wantStep, tc.wantDue)
		}
	}
}
