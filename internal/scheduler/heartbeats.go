// Package scheduler owns the per-session heartbeat tasks. A heartbeat
// re-evaluates a session on a fixed delay even without a new snapshot, so
// decay-based scores can move session state from elapsed time alone.
//
// Heartbeats are modelled as cancellable repeating tasks keyed by session id
// rather than self-requeueing jobs: ending a session stops its chain
// explicitly instead of leaving an orphaned job loop to discover the
// deletion through failed lookups.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rafaeljc/skuld/internal/observability"
	"github.com/rafaeljc/skuld/internal/queue"
)

// Enqueuer is the queue surface the scheduler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// Heartbeats manages one repeating enqueue task per active session.
// All methods are safe for concurrent use by the worker pool.
type Heartbeats struct {
	logger      *slog.Logger
	queue       Enqueuer
	interval    time.Duration
	maxSessions int

	mu     sync.Mutex
	active map[int64]context.CancelFunc

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHeartbeats creates the scheduler. Tasks run until Cancel or Stop.
func NewHeartbeats(logger *slog.Logger, q Enqueuer, interval time.Duration, maxSessions int) *Heartbeats {
	if logger == nil {
		logger = slog.Default()
	}
	if q == nil {
		panic("scheduler: enqueuer cannot be nil")
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Heartbeats{
		logger:      logger,
		queue:       q,
		interval:    interval,
		maxSessions: maxSessions,
		active:      make(map[int64]context.CancelFunc),
		baseCtx:     baseCtx,
		cancel:      cancel,
	}
}

// Ensure starts a heartbeat task for the session if none is running.
func (h *Heartbeats) Ensure(sessionID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, running := h.active[sessionID]; running {
		return
	}
	if h.baseCtx.Err() != nil {
		return // shutting down
	}
	if h.maxSessions > 0 && len(h.active) >= h.maxSessions {
		h.logger.Warn("heartbeat session cap reached, not scheduling",
			slog.Int64("session_id", sessionID),
			slog.Int("max_sessions", h.maxSessions),
		)
		return
	}

	taskCtx, cancel := context.WithCancel(h.baseCtx)
	h.active[sessionID] = cancel
	observability.HeartbeatsActive.Set(float64(len(h.active)))

	h.wg.Add(1)
	go h.run(taskCtx, sessionID)

	h.logger.Debug("heartbeat scheduled",
		slog.Int64("session_id", sessionID),
		slog.Duration("interval", h.interval),
	)
}

// Cancel stops the session's heartbeat task if one is running. Used by the
// worker when a job discovers the session no longer exists.
func (h *Heartbeats) Cancel(sessionID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cancel, running := h.active[sessionID]
	if !running {
		return
	}
	cancel()
	delete(h.active, sessionID)
	observability.HeartbeatsActive.Set(float64(len(h.active)))

	h.logger.Debug("heartbeat cancelled", slog.Int64("session_id", sessionID))
}

// Active returns the number of sessions with a running heartbeat task.
func (h *Heartbeats) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Stop cancels every task and waits for them to exit.
func (h *Heartbeats) Stop() {
	h.cancel()

	h.mu.Lock()
	for id, cancel := range h.active {
		cancel()
		delete(h.active, id)
	}
	observability.HeartbeatsActive.Set(0)
	h.mu.Unlock()

	h.wg.Wait()
}

// run enqueues one heartbeat job per interval until the task is cancelled.
func (h *Heartbeats) run(ctx context.Context, sessionID int64) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := queue.Job{SessionID: sessionID, Trigger: queue.TriggerHeartbeat}
			if err := h.queue.Enqueue(ctx, job); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Transient enqueue failures skip one beat; the next tick
				// tries again.
				h.logger.Error("failed to enqueue heartbeat",
					slog.Int64("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
