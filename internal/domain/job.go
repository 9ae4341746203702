// Package domain holds the render-job entities shared by the API and worker.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a render job.
//
// QUEUED is the only initial state. COMPLETED is final; FAILED is final
// only once the retry budget is spent — a redelivered message moves a
// FAILED job straight back into RENDERING. There is no transition back
// to QUEUED.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRendering Status = "RENDERING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further automatic transition occurs.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRendering, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from s to
// next. RENDERING → RENDERING and FAILED → RENDERING are allowed: a
// redelivered message starts a new attempt on a job whose previous attempt
// failed, whether or not that failure was recorded.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRendering
	case StatusRendering:
		return next == StatusRendering || next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusRendering
	default:
		return false
	}
}

// AspectRatio selects one of the three fixed output presets.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "LANDSCAPE"
	AspectPortrait  AspectRatio = "PORTRAIT"
	AspectSquare    AspectRatio = "SQUARE"
)

// ParseAspectRatio validates a raw selector. Empty defaults to LANDSCAPE,
// matching the submission API's default.
func ParseAspectRatio(raw string) (AspectRatio, error) {
	switch AspectRatio(raw) {
	case "":
		return AspectLandscape, nil
	case AspectLandscape, AspectPortrait, AspectSquare:
		return AspectRatio(raw), nil
	}
	return "", fmt.Errorf("invalid aspect ratio: %q", raw)
}

// Dimensions returns the pixel size for the preset.
func (a AspectRatio) Dimensions() (width, height int) {
	switch a {
	case AspectPortrait:
		return 1080, 1920
	case AspectSquare:
		return 1080, 1080
	default:
		return 1920, 1080
	}
}

// Branding is an organization's visual identity, copied by value into each
// job at submission time so later edits never touch queued or finished jobs.
type Branding struct {
	LogoURL        string `json:"logoUrl,omitempty"`
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	AccentColor    string `json:"accentColor"`
	FontFamily     string `json:"fontFamily,omitempty"`
}

// InputProps is the document handed to the render engine: the branding
// snapshot plus the opaque dataset payload. The pipeline never inspects Data.
type InputProps struct {
	Branding Branding        `json:"branding"`
	Data     json.RawMessage `json:"data"`
}

// RenderJob is one request to render a template with specific data into one
// video file. Submission writes the identity and request fields once; only
// the worker mutates the lifecycle fields afterwards.
type RenderJob struct {
	ID             string
	OrganizationID string
	DatasetID      string
	TemplateID     string
	AspectRatio    AspectRatio
	InputProps     json.RawMessage

	Status          Status
	Progress        int
	Attempt         int
	QueueMessageID  string
	ArtifactKey     string
	DurationSeconds int
	ErrorText       string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Deletable reports whether the job record may be removed. In-flight work
// must not be silently orphaned.
func (j *RenderJob) Deletable() bool {
	return j.Status.Terminal()
}

// ArtifactKey builds the deterministic storage key for a finished render,
// namespaced by organization and job so re-renders never collide across jobs.
func ArtifactKey(orgID, jobID string, aspect AspectRatio) string {
	return fmt.Sprintf("videos/%s/%s_%s.mp4", orgID, jobID, aspect)
}
