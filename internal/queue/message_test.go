package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJob(t *testing.T) {
	t.Run("Should decode the full message contract", func(t *testing.T) {
		raw := []byte(`{"sessionId": 42, "snapshotId": 7, "trigger": "alert", "attempts": 2}`)

		job, err := UnmarshalJob(raw)

		require.NoError(t, err)
		assert.Equal(t, int64(42), job.SessionID)
		require.NotNil(t, job.SnapshotID)
		assert.Equal(t, int64(7), *job.SnapshotID)
		assert.Equal(t, TriggerAlert, job.Trigger)
		assert.Equal(t, 2, job.Attempts)
	})

	t.Run("Should decode a minimal message", func(t *testing.T) {
		job, err := UnmarshalJob([]byte(`{"sessionId": 42}`))

		require.NoError(t, err)
		assert.Equal(t, int64(42), job.SessionID)
		assert.Nil(t, job.SnapshotID)
		assert.Empty(t, job.Trigger)
	})

	t.Run("Should reject a message without sessionId", func(t *testing.T) {
		_, err := UnmarshalJob([]byte(`{"trigger": "alert"}`))
		assert.ErrorContains(t, err, "sessionId")
	})

	t.Run("Should reject invalid JSON", func(t *testing.T) {
		_, err := UnmarshalJob([]byte(`not json`))
		assert.ErrorContains(t, err, "failed to decode job")
	})

	t.Run("Should round-trip through Marshal", func(t *testing.T) {
		snapshotID := int64(7)
		in := Job{SessionID: 42, SnapshotID: &snapshotID, Trigger: TriggerHeartbeat, Attempts: 3}

		raw, err := in.Marshal()
		require.NoError(t, err)

		out, err := UnmarshalJob(raw)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}
