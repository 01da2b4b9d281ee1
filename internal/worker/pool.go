// Package worker runs the evaluation job consumers. A pool of goroutines
// dequeues jobs, hands each to the evaluator, and does the retry
// bookkeeping: failed deliveries go back onto the delayed queue with
// exponential backoff until the attempt budget is spent, then to dead-letter.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rafaeljc/skuld/internal/config"
	"github.com/rafaeljc/skuld/internal/evaluator"
	"github.com/rafaeljc/skuld/internal/observability"
	"github.com/rafaeljc/skuld/internal/queue"
	"github.com/rafaeljc/skuld/internal/scheduler"
	"github.com/rafaeljc/skuld/internal/validation"
)

// Handler is the evaluator surface the pool drives.
type Handler interface {
	HandleJob(ctx context.Context, job queue.Job) (evaluator.Outcome, error)
}

// JobQueue is the transport surface the pool consumes. Implemented by
// queue.Queue.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (queue.Job, string, error)
	Ack(ctx context.Context, receipt string) error
	Retry(ctx context.Context, receipt string, job queue.Job, delay time.Duration) error
	Bury(ctx context.Context, receipt string) error
	RunPromoter(ctx context.Context, interval time.Duration)
	Depths(ctx context.Context) (ready, processing, delayed, dead int64, err error)
}

// HeartbeatRegistry is the scheduler surface the pool drives after settling
// a job. Implemented by scheduler.Heartbeats.
type HeartbeatRegistry interface {
	Ensure(sessionID int64)
	Cancel(sessionID int64)
}

// Compile-time checks that the production implementations satisfy the
// pool's contracts.
var (
	_ JobQueue          = (*queue.Queue)(nil)
	_ HeartbeatRegistry = (*scheduler.Heartbeats)(nil)
)

// Pool consumes the job queue with a fixed number of workers.
type Pool struct {
	logger     *slog.Logger
	queue      JobQueue
	handler    Handler
	heartbeats HeartbeatRegistry
	cfg        *config.WorkerConfig
}

// New creates the pool. The heartbeat registry may be nil when heartbeats
// are disabled.
func New(logger *slog.Logger, q JobQueue, handler Handler, heartbeats HeartbeatRegistry, cfg *config.WorkerConfig) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(cfg, "worker config")
	if q == nil {
		panic("worker: job queue cannot be nil")
	}
	if handler == nil {
		panic("worker: handler cannot be nil")
	}

	return &Pool{
		logger:     logger,
		queue:      q,
		handler:    handler,
		heartbeats: heartbeats,
		cfg:        cfg,
	}
}

// Run blocks consuming jobs until ctx is cancelled. In-flight jobs finish
// before it returns; jobs still on the processing list at a crash are not
// lost, they are redelivered after the next promoter pass picks them up.
func (p *Pool) Run(ctx context.Context) {
	go p.queue.RunPromoter(ctx, p.cfg.PromoteInterval)
	go p.reportDepths(ctx)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.consume(ctx, id)
		}(i)
	}
	wg.Wait()

	p.logger.Info("worker pool stopped")
}

func (p *Pool) consume(ctx context.Context, id int) {
	log := p.logger.With(slog.Int("worker", id))

	for {
		if ctx.Err() != nil {
			return
		}

		job, receipt, err := p.queue.Dequeue(ctx, p.cfg.PopTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			log.Error("failed to dequeue job", slog.String("error", err.Error()))
			// Brief pause so a broken transport does not spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.process(ctx, log, job, receipt)
	}
}

// process runs one job and settles its delivery. Job handling uses a
// context detached from the pool's so shutdown does not abort a job
// mid-transaction.
func (p *Pool) process(ctx context.Context, log *slog.Logger, job queue.Job, receipt string) {
	jobLog := log.With(
		slog.Int64("session_id", job.SessionID),
		slog.String("trigger", string(job.Trigger)),
		slog.Int("attempt", job.Attempts),
	)

	start := time.Now()
	outcome, err := p.handler.HandleJob(context.WithoutCancel(ctx), job)
	observability.JobDuration.WithLabelValues(string(job.Trigger)).Observe(time.Since(start).Seconds())

	if err != nil {
		p.settleFailure(ctx, jobLog, job, receipt, err)
		return
	}

	observability.JobsProcessed.WithLabelValues(string(job.Trigger), string(outcome)).Inc()

	if ackErr := p.queue.Ack(context.WithoutCancel(ctx), receipt); ackErr != nil {
		// The job already committed; a redelivery is absorbed by dedupe.
		jobLog.Warn("failed to ack job", slog.String("error", ackErr.Error()))
	}

	switch outcome {
	case evaluator.OutcomeEvaluated:
		if p.heartbeats != nil {
			p.heartbeats.Ensure(job.SessionID)
		}
	case evaluator.OutcomeSessionNotFound:
		if p.heartbeats != nil {
			p.heartbeats.Cancel(job.SessionID)
		}
	}

	jobLog.Info("job processed",
		slog.String("outcome", string(outcome)),
		slog.Duration("duration", time.Since(start)),
	)
}

func (p *Pool) settleFailure(ctx context.Context, log *slog.Logger, job queue.Job, receipt string, jobErr error) {
	settleCtx := context.WithoutCancel(ctx)

	if job.Attempts >= p.cfg.MaxAttempts {
		observability.JobsDead.Inc()
		observability.JobsProcessed.WithLabelValues(string(job.Trigger), "dead").Inc()
		log.Error("job exhausted attempts, moving to dead-letter",
			slog.Int("max_attempts", p.cfg.MaxAttempts),
			slog.String("error", jobErr.Error()),
		)
		if err := p.queue.Bury(settleCtx, receipt); err != nil {
			log.Error("failed to bury job", slog.String("error", err.Error()))
		}
		return
	}

	delay := Backoff(p.cfg.BaseRetryDelay, p.cfg.MaxRetryDelay, job.Attempts)
	observability.JobRetries.Inc()
	log.Warn("job failed, scheduling retry",
		slog.Duration("delay", delay),
		slog.String("error", jobErr.Error()),
	)
	if err := p.queue.Retry(settleCtx, receipt, job, delay); err != nil {
		log.Error("failed to schedule retry", slog.String("error", err.Error()))
	}
}

// reportDepths samples the queue segment sizes for the depth gauges.
func (p *Pool) reportDepths(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ready, processing, delayed, dead, err := p.queue.Depths(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("failed to read queue depths", slog.String("error", err.Error()))
				}
				continue
			}
			observability.QueueDepth.WithLabelValues("ready").Set(float64(ready))
			observability.QueueDepth.WithLabelValues("processing").Set(float64(processing))
			observability.QueueDepth.WithLabelValues("delayed").Set(float64(delayed))
			observability.QueueDepth.WithLabelValues("dead").Set(float64(dead))
		}
	}
}

// Backoff returns the delay before the next delivery of a job that has
// already been attempted `attempts` times: base doubled per prior attempt,
// capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
