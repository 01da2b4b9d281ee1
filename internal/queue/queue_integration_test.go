//go:build integration

// Package queue_test contains integration tests for the Redis-backed job
// queue, run against a real Redis container.
package queue_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/skuld/internal/queue"
	"github.com/rafaeljc/skuld/internal/testsupport"
)

func TestQueue_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err, "failed to start redis container")

	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	snapshotID := int64(7)

	t.Run("EnqueueDequeueAck_HappyPath", func(t *testing.T) {
		q := queue.New(redisContainer.Client, "skuld_test_happy", log)

		in := queue.Job{SessionID: 42, SnapshotID: &snapshotID, Trigger: queue.TriggerAlert}
		require.NoError(t, q.Enqueue(ctx, in))

		out, receipt, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(42), out.SessionID)
		require.NotNil(t, out.SnapshotID)
		assert.Equal(t, snapshotID, *out.SnapshotID)
		assert.Equal(t, queue.TriggerAlert, out.Trigger)
		assert.Equal(t, 1, out.Attempts, "first delivery counts as attempt 1")

		require.NoError(t, q.Ack(ctx, receipt))

		ready, processing, delayed, dead, err := q.Depths(ctx)
		require.NoError(t, err)
		assert.Zero(t, ready)
		assert.Zero(t, processing)
		assert.Zero(t, delayed)
		assert.Zero(t, dead)
	})

	t.Run("Dequeue_TimesOutEmpty", func(t *testing.T) {
		q := queue.New(redisContainer.Client, "skuld_test_empty", log)

		_, _, err := q.Dequeue(ctx, 100*time.Millisecond)
		assert.ErrorIs(t, err, queue.ErrEmpty)
	})

	t.Run("Retry_RedeliversAfterDelay", func(t *testing.T) {
		q := queue.New(redisContainer.Client, "skuld_test_retry", log)

		require.NoError(t, q.Enqueue(ctx, queue.Job{SessionID: 42, Trigger: queue.TriggerSnapshot}))

		job, receipt, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NoError(t, q.Retry(ctx, receipt, job, 50*time.Millisecond))

		// Not due yet.
		promoted, err := q.PromoteDue(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, promoted)

		// Due after the delay.
		promoted, err = q.PromoteDue(ctx, time.Now().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, promoted)

		redelivered, receipt, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 2, redelivered.Attempts, "redelivery increments the attempt count")
		require.NoError(t, q.Ack(ctx, receipt))
	})

	t.Run("Bury_MovesToDeadLetter", func(t *testing.T) {
		q := queue.New(redisContainer.Client, "skuld_test_bury", log)

		require.NoError(t, q.Enqueue(ctx, queue.Job{SessionID: 42, Trigger: queue.TriggerAlert}))

		_, receipt, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NoError(t, q.Bury(ctx, receipt))

		ready, processing, delayed, dead, err := q.Depths(ctx)
		require.NoError(t, err)
		assert.Zero(t, ready)
		assert.Zero(t, processing)
		assert.Zero(t, delayed)
		assert.Equal(t, int64(1), dead)

		// Dead-letter jobs are never redelivered.
		_, _, err = q.Dequeue(ctx, 100*time.Millisecond)
		assert.ErrorIs(t, err, queue.ErrEmpty)
	})

	t.Run("RunPromoter_PromotesInBackground", func(t *testing.T) {
		q := queue.New(redisContainer.Client, "skuld_test_promoter", log)

		require.NoError(t, q.Enqueue(ctx, queue.Job{SessionID: 42, Trigger: queue.TriggerAlert}))
		job, receipt, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NoError(t, q.Retry(ctx, receipt, job, 20*time.Millisecond))

		promoterCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go q.RunPromoter(promoterCtx, 10*time.Millisecond)

		redelivered, receipt, err := q.Dequeue(ctx, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(42), redelivered.SessionID)
		require.NoError(t, q.Ack(ctx, receipt))
	})
}
