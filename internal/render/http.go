package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"recap/internal/pkg/errors"
)

// event is one line of the engine's streamed response. The engine emits
// newline-delimited JSON: any number of progress events followed by exactly
// one done or error event.
type event struct {
	Type             string  `json:"type"`
	Progress         float64 `json:"progress,omitempty"`
	DurationInFrames int     `json:"durationInFrames,omitempty"`
	FPS              int     `json:"fps,omitempty"`
	Message          string  `json:"message,omitempty"`
}

// HTTPEngine talks to the render service over HTTP. The response body stays
// open for the whole render, so the client carries no request timeout; the
// caller bounds the call through ctx.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (e *HTTPEngine) Render(ctx context.Context, spec Spec) (*Result, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, errors.Wrap(err, "render.http", "encode render spec")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "render.http", "build render request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.WrapWithCode(err, errors.CodeTimeout, "render.http", "render deadline exceeded")
		}
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "render.http", "render engine unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, errors.Newf(errors.CodeInternal, "render engine http %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}

	return readEvents(res.Body, spec.OnProgress)
}

// readEvents consumes the event stream until a terminal event arrives.
func readEvents(r io.Reader, onProgress func(float64)) (*Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, errors.Wrap(err, "render.http", "decode engine event")
		}

		switch ev.Type {
		case "progress":
			if onProgress != nil {
				onProgress(ev.Progress)
			}
		case "done":
			return &Result{DurationInFrames: ev.DurationInFrames, FPS: ev.FPS}, nil
		case "error":
			return nil, errors.New(errors.CodeInternal, "render engine: "+ev.Message)
		default:
			// Unknown event types from a newer engine are skipped.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "render.http", "read engine stream")
	}
	return nil, errors.New(errors.CodeInternal, "render engine closed stream without result")
}

var _ Engine = (*HTTPEngine)(nil)
