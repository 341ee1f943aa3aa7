package services

import (
	"errors"
	"log/slog"

	"github.com/lagless/tickrelay/protocol"
)

// ServiceConfig configures the participant-facing relay service.
type ServiceConfig struct {
	// Relay is the round configuration handed to the relay core.
	Relay *protocol.Config

	// Log is the structured logger for service operations.
	Log *slog.Logger
}

func (c *ServiceConfig) validate() error {
	if c.Relay == nil {
		return errors.New("relay config is required")
	}
	if c.Log == nil {
		return errors.New("logger is required")
	}
	return c.Relay.Validate()
}

// Service states reported by /status.
const (
	StateLobby   = "lobby"
	StateRunning = "running"
)

// Message types of the WebSocket envelope.
const (
	// MessageTypeBegin is pushed once at round start, carrying the
	// participant's assigned identity.
	MessageTypeBegin = "begin"

	// MessageTypeTick is pushed once per completed tick with the other
	// participants' intents.
	MessageTypeTick = "tick"

	// MessageTypeIntent is sent by participants to submit an intent for
	// a tick.
	MessageTypeIntent = "intent"
)

// ServerMessage is the relay-to-participant WebSocket envelope.
type ServerMessage struct {
	Type string `json:"type"`

	// Participant is set on begin messages.
	Participant *uint8 `json:"participant,omitempty"`

	// Tick, OtherIDs and OtherIntents are set on tick messages. OtherIDs
	// holds the other participants' single-byte identifiers in ascending
	// registry order; OtherIntents is the matching concatenation of
	// fixed-width records. Both are byte vectors and therefore
	// base64-encoded in JSON.
	Tick         uint64  `json:"tick,omitempty"`
	OtherIDs     []uint8 `json:"other_ids,omitempty"`
	OtherIntents []byte  `json:"other_intents,omitempty"`
}

// ClientMessage is the participant-to-relay WebSocket envelope.
type ClientMessage struct {
	Type   string `json:"type"`
	Tick   uint64 `json:"tick"`
	Intent []byte `json:"intent"`
}

// IntentSubmission is the body of the HTTP submission endpoint, for hosts
// that push intents outside the WebSocket channel.
type IntentSubmission struct {
	Participant uint8  `json:"participant"`
	Tick        uint64 `json:"tick"`
	Intent      []byte `json:"intent"`
}

// StatusResponse describes the relay's current round state.
type StatusResponse struct {
	State        string `json:"state"`
	Cursor       uint64 `json:"cursor"`
	Participants int    `json:"participants"`
	Expected     int    `json:"expected"`
}
