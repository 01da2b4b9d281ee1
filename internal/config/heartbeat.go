package config

import (
	"fmt"
	"time"
)

// HeartbeatConfig controls the per-session re-evaluation scheduler.
// Heartbeats let decay-based scores move session state from elapsed time
// alone, without a fresh snapshot.
type HeartbeatConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// Interval is the fixed delay between heartbeat evaluations of one
	// session.
	Interval time.Duration `envconfig:"INTERVAL" default:"1m" validate:"gt=0"`

	// MaxSessions caps how many sessions can hold an active heartbeat task
	// at once.
	MaxSessions int `envconfig:"MAX_SESSIONS" default:"1000" validate:"min=1"`
}

// Validate checks HeartbeatConfig fields for correctness.
func (c *HeartbeatConfig) Validate() error {
	if c.Enabled && c.Interval < time.Second {
		return fmt.Errorf("heartbeat interval must be at least 1s, got %s", c.Interval)
	}
	return nil
}
