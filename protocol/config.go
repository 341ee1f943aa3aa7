package protocol

import (
	"fmt"
	"time"
)

// DefaultTickInterval is the scheduler's safety-net poll cadence, matching
// the observed 20Hz tickrate.
const DefaultTickInterval = 50 * time.Millisecond

// DefaultMaxTicks caps round length at the single-byte tick index of the
// observed wire protocol.
const DefaultMaxTicks = 256

// Config provides configuration parameters for a relay round.
type Config struct {
	// IntentSize is the fixed byte width of one intent record.
	IntentSize int `json:"intent_size"`

	// TickInterval is the scheduler's periodic completeness-check cadence.
	// Slot completion also wakes the scheduler immediately, so this only
	// bounds latency when a wakeup is missed.
	TickInterval time.Duration `json:"tick_interval,string"`

	// MaxTicks caps the round length in ticks. Tick indices at or beyond
	// the cap are rejected. 0 disables the cap for hosts whose transport
	// carries wider tick indices.
	MaxTicks int `json:"max_ticks"`

	// ExpectedParticipants is the number of participants a round is
	// started with. The transport layer collects this many joiners before
	// starting the round; mid-round join is not supported.
	ExpectedParticipants int `json:"expected_participants"`
}

// DefaultConfig returns the configuration of the observed protocol:
// 3-byte intents, 20Hz cadence, 256-tick rounds, two participants.
func DefaultConfig() *Config {
	return &Config{
		IntentSize:           DefaultIntentSize,
		TickInterval:         DefaultTickInterval,
		MaxTicks:             DefaultMaxTicks,
		ExpectedParticipants: 2,
	}
}

// Validate checks the configuration for values the relay cannot run with.
func (c *Config) Validate() error {
	if c.IntentSize <= 0 {
		return fmt.Errorf("intent_size must be positive, got %d", c.IntentSize)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must not be negative, got %d", c.MaxTicks)
	}
	if c.ExpectedParticipants < 1 || c.ExpectedParticipants > MaxParticipants {
		return fmt.Errorf("expected_participants must be in [1,%d], got %d",
			MaxParticipants, c.ExpectedParticipants)
	}
	return nil
}
