package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultIntentSize, cfg.IntentSize)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 256, cfg.MaxTicks)
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero intent size", func(c *Config) { c.IntentSize = 0 }},
		{"negative intent size", func(c *Config) { c.IntentSize = -1 }},
		{"zero tick interval", func(c *Config) { c.TickInterval = 0 }},
		{"negative max ticks", func(c *Config) { c.MaxTicks = -1 }},
		{"zero participants", func(c *Config) { c.ExpectedParticipants = 0 }},
		{"too many participants", func(c *Config) { c.ExpectedParticipants = MaxParticipants + 1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigUncappedRounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTicks = 0
	require.NoError(t, cfg.Validate())

	buf := NewTickBuffer(cfg.MaxTicks)
	for tick := uint64(0); tick < 1000; tick++ {
		require.NoError(t, buf.Submit(tick, 0, Intent{0, 0, 0}))
	}
	assert.Equal(t, 1000, buf.Len())
}
