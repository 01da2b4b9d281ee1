// Package queue implements the durable evaluation job queue on Redis.
//
// Layout: a ready list feeds workers via blocking moves into a processing
// list; failed jobs wait in a delayed sorted set until a promoter loop moves
// them back to ready; jobs that exhaust their attempts land in a dead-letter
// list for manual inspection. Delivery is at-least-once with no ordering
// guarantee across sessions; consumers must tolerate redelivery.
package queue

import (
	"encoding/json"
	"fmt"
)

// Trigger records what caused an evaluation job to be enqueued.
type Trigger string

const (
	TriggerAlert     Trigger = "alert"
	TriggerSnapshot  Trigger = "snapshot"
	TriggerHeartbeat Trigger = "heartbeat"
)

// Job is the queue message contract. Producers set SessionID and optionally
// SnapshotID and Trigger; Attempts is delivery bookkeeping maintained by the
// queue itself.
type Job struct {
	SessionID  int64   `json:"sessionId"`
	SnapshotID *int64  `json:"snapshotId,omitempty"`
	Trigger    Trigger `json:"trigger,omitempty"`

	// Attempts counts deliveries so far, including the current one.
	Attempts int `json:"attempts,omitempty"`
}

// Marshal encodes the job for the wire.
func (j Job) Marshal() ([]byte, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return raw, nil
}

// UnmarshalJob decodes a wire payload into a job.
func UnmarshalJob(raw []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	if j.SessionID == 0 {
		return Job{}, fmt.Errorf("job is missing sessionId")
	}
	return j, nil
}
