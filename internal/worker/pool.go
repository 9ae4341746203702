package worker

import (
	"context"
	"sync"
	"time"

	"recap/internal/pkg/logger"
	"recap/internal/queue"
)

const dequeueWait = 30 * time.Second

// Pool runs a fixed number of consumer loops against the queue. Each loop
// blocks on Dequeue, processes the delivery, and settles it with Ack or
// Nack. Workers share nothing in-process; the job store and the queue hold
// all state.
type Pool struct {
	queue       queue.Queue
	proc        *Processor
	log         *logger.Logger
	concurrency int
}

func NewPool(q queue.Queue, proc *Processor, concurrency int, log *logger.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 2
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pool{
		queue:       q,
		proc:        proc,
		log:         log.WithComponent("worker-pool"),
		concurrency: concurrency,
	}
}

// Run blocks until ctx is canceled and every worker slot has drained. A
// slot finishes its in-flight job before exiting.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool starting", "concurrency", p.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runSlot(ctx, slot)
		}(i)
	}
	wg.Wait()

	p.log.Info("worker pool stopped")
}

func (p *Pool) runSlot(ctx context.Context, slot int) {
	log := p.log.WithFields(map[string]any{"slot": slot})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		del, err := p.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue failed, backing off", "error", err.Error())
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if del == nil {
			continue
		}

		p.handle(ctx, del, log)
	}
}

func (p *Pool) handle(ctx context.Context, del *queue.Delivery, log *logger.Logger) {
	jobLog := log.WithJobID(del.JobID)
	jobCtx := logger.ContextWithJobID(ctx, del.JobID)
	start := time.Now()

	err := p.proc.Process(jobCtx, del)
	if err == nil {
		if ackErr := p.queue.Ack(jobCtx, del); ackErr != nil {
			// The delivery deadline will expire and the completed-job
			// guard in the processor discards the redelivery.
			jobLog.Warn("ack failed", "error", ackErr.Error())
		}
		jobLog.Info("message settled", "duration_ms", time.Since(start).Milliseconds())
		return
	}

	jobLog.Error("attempt failed",
		"error", err.Error(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// Settlement must not be tied to the job context: cancellation mid-
	// attempt still needs the message handed back to the queue.
	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requeued, nackErr := p.queue.Nack(settleCtx, del)
	switch {
	case nackErr != nil:
		jobLog.Error("nack failed, delivery deadline will recover the message", "error", nackErr.Error())
	case requeued:
		jobLog.Info("retry scheduled", "attempt", del.Attempt)
	default:
		jobLog.Warn("attempts exhausted, message dead-lettered", "attempt", del.Attempt)
	}
}
