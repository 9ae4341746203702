// Package queue implements the durable render-job queue on Redis.
//
// Delivery is at least once: a message moves from the pending list to a
// processing list when claimed, and only an explicit Ack removes it. A
// consumer that dies keeps the message in processing until its delivery
// deadline passes, after which housekeeping makes it eligible again.
// Failed attempts are retried with exponential backoff up to a bounded
// number of attempts, then parked on a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recap/internal/domain"
)

// Message is the wire payload between submission and worker. Everything else
// (branding, input data) is re-read from the job record at consume time so
// the message never goes stale.
type Message struct {
	ID         string             `json:"id"`
	JobID      string             `json:"job_id"`
	TemplateID string             `json:"template_id"`
	Aspect     domain.AspectRatio `json:"aspect_ratio"`
	// Attempt is 1 on first delivery and increments on every retry.
	Attempt int `json:"attempt"`
}

// Delivery is a claimed message plus the raw payload needed to settle it.
type Delivery struct {
	Message
	raw string
}

// Queue is the contract the submission service and worker pool depend on.
type Queue interface {
	// Enqueue makes the message available to consumers.
	Enqueue(ctx context.Context, m Message) error
	// Dequeue blocks until a message is claimed or the wait expires.
	// It returns nil when the wait expired with nothing pending.
	Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error)
	// Ack marks the delivery done. The message is never redelivered.
	Ack(ctx context.Context, d *Delivery) error
	// Nack reports a failed attempt. The message is scheduled for a
	// backed-off retry, or dead-lettered once attempts are exhausted.
	// It returns true when a retry was scheduled.
	Nack(ctx context.Context, d *Delivery) (requeued bool, err error)
}

// Config tunes the retry policy. Defaults mirror the submission contract:
// 3 attempts, exponential backoff from 5s.
type Config struct {
	Name          string
	MaxAttempts   int
	BackoffBase   time.Duration
	Visibility    time.Duration
	DeadRetention int64
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "recap:render"
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.Visibility <= 0 {
		c.Visibility = 15 * time.Minute
	}
	if c.DeadRetention <= 0 {
		c.DeadRetention = 50
	}
}

// backoffDelay returns the pause before the given retry attempt runs.
// attempt is the attempt that just failed: 5s after the first, 10s after
// the second, doubling from there.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func encodeMessage(m Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("queue: encode message: %w", err)
	}
	return string(b), nil
}

func decodeMessage(raw string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, fmt.Errorf("queue: decode message: %w", err)
	}
	return m, nil
}
