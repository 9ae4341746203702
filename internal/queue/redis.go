package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"recap/internal/pkg/logger"
)

// RedisQueue is the Redis-backed Queue used in production.
type RedisQueue struct {
	rdb *redis.Client
	cfg Config
	log *logger.Logger
}

// NewRedisQueue creates a queue over the given client.
func NewRedisQueue(rdb *redis.Client, cfg Config, log *logger.Logger) *RedisQueue {
	cfg.applyDefaults()
	if log == nil {
		log = logger.NewDefault()
	}
	return &RedisQueue{
		rdb: rdb,
		cfg: cfg,
		log: log.WithComponent("queue"),
	}
}

func (q *RedisQueue) pendingKey() string    { return q.cfg.Name + ":pending" }
func (q *RedisQueue) processingKey() string { return q.cfg.Name + ":processing" }
func (q *RedisQueue) deadlinesKey() string  { return q.cfg.Name + ":deadlines" }
func (q *RedisQueue) delayedKey() string    { return q.cfg.Name + ":delayed" }
func (q *RedisQueue) deadKey() string       { return q.cfg.Name + ":dead" }

// Enqueue pushes a message onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, m Message) error {
	if m.Attempt < 1 {
		m.Attempt = 1
	}
	raw, err := encodeMessage(m)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.pendingKey(), raw).Err()
}

// Dequeue atomically moves one message from pending to processing and
// stamps its delivery deadline. A nil delivery means the wait expired.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", wait).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	deadline := float64(time.Now().Add(q.cfg.Visibility).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.deadlinesKey(), redis.Z{Score: deadline, Member: raw}).Err(); err != nil {
		q.log.Warn("failed to stamp delivery deadline", "error", err.Error())
	}

	m, err := decodeMessage(raw)
	if err != nil {
		// Poison payload: drop it from processing and park it.
		q.discard(ctx, raw)
		return nil, err
	}

	return &Delivery{Message: m, raw: raw}, nil
}

// Ack settles a delivery for good.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.raw)
	pipe.ZRem(ctx, q.deadlinesKey(), d.raw)
	_, err := pipe.Exec(ctx)
	return err
}

// Nack settles a failed delivery: schedule a backed-off retry, or move the
// message to the dead-letter list once attempts are exhausted.
func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) (bool, error) {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, d.raw)
	pipe.ZRem(ctx, q.deadlinesKey(), d.raw)

	if d.Attempt >= q.cfg.MaxAttempts {
		pipe.LPush(ctx, q.deadKey(), d.raw)
		pipe.LTrim(ctx, q.deadKey(), 0, q.cfg.DeadRetention-1)
		_, err := pipe.Exec(ctx)
		if err == nil {
			q.log.Info("message dead-lettered",
				"job_id", d.JobID,
				"attempt", d.Attempt,
			)
		}
		return false, err
	}

	next := d.Message
	next.Attempt++
	raw, encErr := encodeMessage(next)
	if encErr != nil {
		return false, encErr
	}

	delay := backoffDelay(q.cfg.BackoffBase, d.Attempt)
	due := float64(time.Now().Add(delay).UnixMilli())
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: due, Member: raw})

	_, err := pipe.Exec(ctx)
	if err == nil {
		q.log.Info("message scheduled for retry",
			"job_id", d.JobID,
			"attempt", next.Attempt,
			"delay", delay.String(),
		)
	}
	return true, err
}

// Housekeep promotes due retries to pending, redelivers messages whose
// consumer missed its delivery deadline, and stamps deadlines for claims
// that never got one. Safe to run from multiple processes: each step
// removes the member before re-adding it elsewhere.
func (q *RedisQueue) Housekeep(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())

	if err := q.reclaimOrphans(ctx, now); err != nil {
		return err
	}
	if err := q.promoteDue(ctx, q.delayedKey(), now, false); err != nil {
		return err
	}
	return q.promoteDue(ctx, q.deadlinesKey(), now, true)
}

// reclaimOrphans gives a delivery deadline to processing entries that have
// none, the leftovers of a consumer that crashed between the claim and the
// deadline write (the two are separate commands, BLMOVE cannot run in a
// script). NX keeps a concurrent consumer's own stamp authoritative. The
// entry then redelivers through the normal deadline expiry path.
func (q *RedisQueue) reclaimOrphans(ctx context.Context, now float64) error {
	raws, err := q.rdb.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, raw := range raws {
		err := q.rdb.ZScore(ctx, q.deadlinesKey(), raw).Err()
		if err == nil {
			continue
		}
		if err != redis.Nil {
			return err
		}
		deadline := now + float64(q.cfg.Visibility.Milliseconds())
		if err := q.rdb.ZAddNX(ctx, q.deadlinesKey(), redis.Z{Score: deadline, Member: raw}).Err(); err != nil {
			return err
		}
		q.log.Warn("stamped deadline for orphaned claim")
	}
	return nil
}

// promoteDue moves zset members with score <= now back into rotation.
// For expired deliveries the message is also removed from processing and
// its attempt counter advances, since the crashed run consumed an attempt.
func (q *RedisQueue) promoteDue(ctx context.Context, key string, now float64, expiredDelivery bool) error {
	raws, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(int64(now), 10), Count: 100,
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range raws {
		removed, err := q.rdb.ZRem(ctx, key, raw).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			// Another housekeeper got it first.
			continue
		}

		if !expiredDelivery {
			if err := q.rdb.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
				return err
			}
			continue
		}

		// A deadline can outlive its claim when an ack raced the orphan
		// sweep. Only a message still sitting in processing redelivers.
		inProcessing, err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Result()
		if err != nil {
			return err
		}
		if inProcessing == 0 {
			continue
		}

		m, decErr := decodeMessage(raw)
		if decErr != nil {
			q.discard(ctx, raw)
			continue
		}
		q.log.Warn("delivery deadline expired, redelivering",
			"job_id", m.JobID,
			"attempt", m.Attempt,
		)
		if _, err := q.Nack(ctx, &Delivery{Message: m, raw: raw}); err != nil {
			return err
		}
	}
	return nil
}

// RunHousekeeper loops Housekeep until the context is canceled.
func (q *RedisQueue) RunHousekeeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Housekeep(ctx); err != nil && ctx.Err() == nil {
				q.log.Warn("housekeeping pass failed", "error", err.Error())
			}
		}
	}
}

// DeadLetters returns up to limit parked payloads, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = q.cfg.DeadRetention
	}
	raws, err := q.rdb.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		m, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// discard removes an undecodable payload from the active structures and
// parks it on the dead-letter list for inspection.
func (q *RedisQueue) discard(ctx context.Context, raw string) {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, raw)
	pipe.ZRem(ctx, q.deadlinesKey(), raw)
	pipe.LPush(ctx, q.deadKey(), raw)
	pipe.LTrim(ctx, q.deadKey(), 0, q.cfg.DeadRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to discard poison message", "error", err.Error())
	}
}
