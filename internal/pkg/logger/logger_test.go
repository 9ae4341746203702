package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "json format", config: Config{Level: "info", Format: "json", ServiceName: "recap-test"}},
		{name: "debug level", config: Config{Level: "debug", Format: "json", ServiceName: "recap-test"}},
		{name: "text format", config: Config{Level: "info", Format: "text", ServiceName: "recap-test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if log := New(tt.config); log == nil {
				t.Fatal("expected logger to be non-nil")
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	log := New(Config{
		Level:       "debug",
		Format:      "json",
		Output:      &buf,
		ServiceName: "recap-test",
	})

	log.Info("render queued", "template_id", "rep-performance-card")

	output := buf.String()
	if output == "" {
		t.Fatal("expected output to be non-empty")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(output), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "render queued" {
		t.Errorf("expected msg='render queued', got %v", entry["msg"])
	}
	if entry["template_id"] != "rep-performance-card" {
		t.Errorf("expected template_id in entry, got %v", entry["template_id"])
	}
	if entry["service"] != "recap-test" {
		t.Errorf("expected service='recap-test', got %v", entry["service"])
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{name: "info level logs info", level: "info", logFn: func(l *Logger) { l.Info("x") }, shouldLog: true},
		{name: "info level drops debug", level: "info", logFn: func(l *Logger) { l.Debug("x") }, shouldLog: false},
		{name: "debug level logs debug", level: "debug", logFn: func(l *Logger) { l.Debug("x") }, shouldLog: true},
		{name: "error level drops info", level: "error", logFn: func(l *Logger) { l.Info("x") }, shouldLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tt.level, Format: "json", Output: &buf})

			tt.logFn(log)

			if hasOutput := buf.Len() > 0; hasOutput != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got hasOutput=%v", tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestWithJobID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithJobID("job-456").Info("test message")

	if output := buf.String(); !strings.Contains(output, "job-456") {
		t.Errorf("expected output to contain job_id, got: %s", output)
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}

	log.WithError(context.DeadlineExceeded).Info("test message")

	if output := buf.String(); !strings.Contains(output, "deadline exceeded") {
		t.Errorf("expected output to contain error, got: %s", output)
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.WithFields(map[string]any{
		"organization_id": "org-123",
		"aspect_ratio":    "LANDSCAPE",
	}).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "org-123") {
		t.Errorf("expected output to contain organization_id, got: %s", output)
	}
	if !strings.Contains(output, "LANDSCAPE") {
		t.Errorf("expected output to contain aspect_ratio, got: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")

	log.FromContext(ctx).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "req-abc") {
		t.Errorf("expected output to contain request_id, got: %s", output)
	}
	if !strings.Contains(output, "job-xyz") {
		t.Errorf("expected output to contain job_id, got: %s", output)
	}
}
