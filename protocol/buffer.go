package protocol

import (
	"errors"
	"sync"
)

// Intent submission rejections. All are dropped silently at the relay
// boundary; the taxonomy exists so internal callers can log and count them.
var (
	// ErrFutureTick indicates a tick index beyond the buffer's current
	// length. The sender is ahead of the relay and the intent cannot be
	// placed without creating sparse holes; tolerated clock skew, not a
	// fault.
	ErrFutureTick = errors.New("intent arrived from a future tick")

	// ErrDuplicateSubmission indicates the participant already committed
	// an intent for that tick. The first writer wins; committed ticks are
	// an immutable historical record.
	ErrDuplicateSubmission = errors.New("duplicate submission for tick")

	// ErrTickLimit indicates a tick index at or beyond the configured
	// round-length cap (the observed wire protocol addresses ticks with a
	// single byte).
	ErrTickLimit = errors.New("tick index beyond round length cap")
)

// TickSlot holds the intents recorded for exactly one tick index, keyed by
// participant identifier. At most one intent per participant per slot.
type TickSlot struct {
	intents map[ParticipantID]Intent
}

func newTickSlot() *TickSlot {
	return &TickSlot{intents: make(map[ParticipantID]Intent)}
}

// Intent returns the recorded intent for a participant, if any.
func (s *TickSlot) Intent(id ParticipantID) (Intent, bool) {
	intent, ok := s.intents[id]
	return intent, ok
}

// Len returns the number of intents recorded in the slot.
func (s *TickSlot) Len() int {
	return len(s.intents)
}

// TickBuffer is the append-only, index-addressable store of per-tick
// intent sets. Slot i exists only once all indices below i exist; a slot
// is materialized lazily when the first intent for its tick arrives.
//
// The buffer is the single shared mutable resource between participant
// submission contexts and the scheduler loop. A single mutex serializes
// slot mutation against completeness checks and fan-out snapshots, so a
// slot can never appear complete with a partially recorded entry.
type TickBuffer struct {
	mu       sync.Mutex
	slots    []*TickSlot
	maxTicks int
}

// NewTickBuffer creates an empty buffer. maxTicks caps the round length
// (tick indices are rejected from that index on); 0 disables the cap.
func NewTickBuffer(maxTicks int) *TickBuffer {
	return &TickBuffer{maxTicks: maxTicks}
}

// Len returns the number of materialized slots.
func (b *TickBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// Submit records an intent for (tick, participant).
//
//   - tick beyond the round-length cap: ErrTickLimit.
//   - tick strictly greater than the buffer length: ErrFutureTick; no
//     intermediate slots are created.
//   - tick equal to the buffer length: a new slot is materialized first.
//   - participant already present in the slot: ErrDuplicateSubmission;
//     the recorded intent is untouched.
//
// The intent is stored as given; callers obtain intents from
// IntentCodec.Decode, which already copies.
func (b *TickBuffer) Submit(tick uint64, id ParticipantID, intent Intent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxTicks > 0 && tick >= uint64(b.maxTicks) {
		return ErrTickLimit
	}
	if tick > uint64(len(b.slots)) {
		return ErrFutureTick
	}
	if tick == uint64(len(b.slots)) {
		b.slots = append(b.slots, newTickSlot())
	}

	slot := b.slots[tick]
	if _, dup := slot.intents[id]; dup {
		return ErrDuplicateSubmission
	}
	slot.intents[id] = intent
	return nil
}

// Slot returns the slot at the given tick index, if materialized.
func (b *TickBuffer) Slot(tick uint64) (*TickSlot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tick >= uint64(len(b.slots)) {
		return nil, false
	}
	return b.slots[tick], true
}

// IsComplete reports whether the slot at tick exists and holds exactly
// expected intents.
func (b *TickBuffer) IsComplete(tick uint64, expected int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tick >= uint64(len(b.slots)) {
		return false
	}
	return b.slots[tick].Len() == expected
}

// CompleteSet returns a snapshot of the slot's intents for the given
// participants iff every one of them has contributed. The snapshot is
// taken under the buffer lock, so fan-out built from it can never observe
// a half-recorded entry. Entries from participants outside ids (evicted
// mid-round after submitting) are excluded from the snapshot.
func (b *TickBuffer) CompleteSet(tick uint64, ids []ParticipantID) (map[ParticipantID]Intent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tick >= uint64(len(b.slots)) {
		return nil, false
	}
	slot := b.slots[tick]

	set := make(map[ParticipantID]Intent, len(ids))
	for _, id := range ids {
		intent, ok := slot.intents[id]
		if !ok {
			return nil, false
		}
		set[id] = intent
	}
	return set, true
}
