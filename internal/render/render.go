// Package render calls the external render engine that turns a template
// plus input props into a video file.
package render

import (
	"context"
	"encoding/json"

	"recap/internal/domain"
)

// Spec describes one render call. OutputPath is a path on storage shared
// with the engine; the engine writes the finished video there.
type Spec struct {
	JobID      string             `json:"jobId"`
	TemplateID string             `json:"compositionId"`
	Aspect     domain.AspectRatio `json:"aspectRatio"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	InputProps json.RawMessage    `json:"inputProps"`
	OutputPath string             `json:"outputPath"`

	// OnProgress receives the render fraction in [0,1] as the engine
	// reports it. May be nil. Called from the engine read loop, so it
	// must return quickly.
	OnProgress func(fraction float64) `json:"-"`
}

// Result is what a successful render reports back.
type Result struct {
	DurationInFrames int `json:"durationInFrames"`
	FPS              int `json:"fps"`
}

// DurationSeconds converts the frame count to whole seconds, rounding
// half up.
func (r *Result) DurationSeconds() int {
	if r.FPS <= 0 {
		return 0
	}
	return (r.DurationInFrames + r.FPS/2) / r.FPS
}

// Engine is the boundary to the rendering process.
type Engine interface {
	Render(ctx context.Context, spec Spec) (*Result, error)
}
