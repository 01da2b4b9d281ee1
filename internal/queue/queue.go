package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/skuld/internal/validation"
)

// ErrEmpty is returned by Dequeue when no job arrived within the timeout.
var ErrEmpty = errors.New("queue: no job available")

// Queue is the Redis-backed durable job queue.
type Queue struct {
	client *redis.Client
	logger *slog.Logger

	readyKey      string
	processingKey string
	delayedKey    string
	deadKey       string
}

// New creates a queue namespaced under keyPrefix (e.g. "skuld").
func New(client *redis.Client, keyPrefix string, logger *slog.Logger) *Queue {
	validation.AssertNotNil(client, "redis client")
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		client:        client,
		logger:        logger,
		readyKey:      keyPrefix + ":jobs:ready",
		processingKey: keyPrefix + ":jobs:processing",
		delayedKey:    keyPrefix + ":jobs:delayed",
		deadKey:       keyPrefix + ":jobs:dead",
	}
}

// Enqueue pushes a job onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	raw, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.readyKey, raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job, moving it atomically onto
// the processing list. The returned receipt is the exact payload needed to
// Ack, Retry or Bury the delivery.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Job, string, error) {
	raw, err := q.client.BLMove(ctx, q.readyKey, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, "", ErrEmpty
		}
		return Job{}, "", fmt.Errorf("failed to dequeue job: %w", err)
	}

	job, err := UnmarshalJob([]byte(raw))
	if err != nil {
		// A payload we cannot decode can never succeed; bury it directly.
		q.logger.Error("burying undecodable job payload", slog.String("error", err.Error()))
		if buryErr := q.Bury(ctx, raw); buryErr != nil {
			return Job{}, "", buryErr
		}
		return Job{}, "", ErrEmpty
	}

	if job.Attempts == 0 {
		job.Attempts = 1
	}
	return job, raw, nil
}

// Ack removes a completed delivery from the processing list.
func (q *Queue) Ack(ctx context.Context, receipt string) error {
	if err := q.client.LRem(ctx, q.processingKey, 1, receipt).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Retry re-schedules a failed delivery after delay, incrementing its attempt
// counter. The delivery is removed from the processing list and parked in
// the delayed set until the promoter moves it back to ready.
func (q *Queue) Retry(ctx context.Context, receipt string, job Job, delay time.Duration) error {
	job.Attempts++
	raw, err := job.Marshal()
	if err != nil {
		return err
	}

	readyAt := float64(time.Now().Add(delay).UnixMilli())

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey, 1, receipt)
	pipe.ZAdd(ctx, q.delayedKey, redis.Z{Score: readyAt, Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule job retry: %w", err)
	}
	return nil
}

// Bury moves a delivery to the dead-letter list. Buried jobs are kept for
// manual inspection, never silently dropped.
func (q *Queue) Bury(ctx context.Context, receipt string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey, 1, receipt)
	pipe.LPush(ctx, q.deadKey, receipt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bury job: %w", err)
	}
	return nil
}

// PromoteDue moves every delayed job whose delay has elapsed back onto the
// ready list. Returns the number of promoted jobs.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)

	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, raw := range due {
		pipe.ZRem(ctx, q.delayedKey, raw)
		pipe.LPush(ctx, q.readyKey, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return len(due), nil
}

// RunPromoter periodically promotes due delayed jobs until ctx is cancelled.
func (q *Queue) RunPromoter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			promoted, err := q.PromoteDue(ctx, time.Now())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.logger.Error("failed to promote delayed jobs", slog.String("error", err.Error()))
				continue
			}
			if promoted > 0 {
				q.logger.Debug("promoted delayed jobs", slog.Int("count", promoted))
			}
		}
	}
}

// Depths reports the current sizes of the queue's lists for metrics.
func (q *Queue) Depths(ctx context.Context) (ready, processing, delayed, dead int64, err error) {
	pipe := q.client.Pipeline()
	readyCmd := pipe.LLen(ctx, q.readyKey)
	processingCmd := pipe.LLen(ctx, q.processingKey)
	delayedCmd := pipe.ZCard(ctx, q.delayedKey)
	deadCmd := pipe.LLen(ctx, q.deadKey)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to read queue depths: %w", err)
	}
	return readyCmd.Val(), processingCmd.Val(), delayedCmd.Val(), deadCmd.Val(), nil
}
