package protocol

import (
	"errors"
	"fmt"
)

// DefaultIntentSize is the record width of the observed protocol: three
// unsigned bytes per participant per tick.
const DefaultIntentSize = 3

// ErrMalformedIntent indicates a raw payload whose length does not match
// the configured record width. The submission is rejected and not recorded.
var ErrMalformedIntent = errors.New("malformed intent record")

// Intent is one participant's declared action for exactly one tick, as a
// fixed-width byte record. Intents are immutable once recorded; the codec
// copies on both decode and encode so callers cannot alias buffer state.
//
// The relay performs no semantic validation of intent contents. Any byte
// pattern of the correct width is accepted.
type Intent []byte

// IntentCodec decodes and encodes fixed-width intent records.
//
// The zero value is not usable; construct one with NewIntentCodec.
type IntentCodec struct {
	width int
}

// NewIntentCodec creates a codec for records of the given byte width.
func NewIntentCodec(width int) (IntentCodec, error) {
	if width <= 0 {
		return IntentCodec{}, fmt.Errorf("intent width must be positive, got %d", width)
	}
	return IntentCodec{width: width}, nil
}

// Width returns the fixed record width in bytes.
func (c IntentCodec) Width() int {
	return c.width
}

// Decode validates the raw payload's width and returns it as an Intent.
// Returns ErrMalformedIntent when the length is wrong.
func (c IntentCodec) Decode(raw []byte) (Intent, error) {
	if len(raw) != c.width {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedIntent, len(raw), c.width)
	}
	intent := make(Intent, c.width)
	copy(intent, raw)
	return intent, nil
}

// Encode returns the intent's wire bytes. It is total for intents produced
// by Decode.
func (c IntentCodec) Encode(intent Intent) []byte {
	out := make([]byte, len(intent))
	copy(out, intent)
	return out
}

// AppendEncoded appends the intent's wire bytes to dst. Used by fan-out to
// pack positionally aligned records without intermediate allocations.
func (c IntentCodec) AppendEncoded(dst []byte, intent Intent) []byte {
	return append(dst, intent...)
}
