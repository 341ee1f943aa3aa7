package protocol

import (
	"errors"
	"sync"
)

// ParticipantID identifies a participant within a single round. Identifiers
// are small, dense, and assigned in registration order starting at 0; the
// broadcast payload packs per-participant entries positionally, so sparse
// or reused identifiers would break the packing.
type ParticipantID uint8

// MaxParticipants bounds a round's participant count, fixed by the
// single-byte identifier of the wire protocol.
const MaxParticipants = 256

// ErrRegistryFull indicates the round's identifier space is exhausted.
var ErrRegistryFull = errors.New("participant registry full")

// DeliveryHandle is a participant's opaque outbound channel. The relay
// calls Begin once at round start and DeliverTick once per completed tick.
//
// Implementations are invoked from the scheduler loop and must not block
// indefinitely; a slow handle delays every participant's tick delivery.
type DeliveryHandle interface {
	// Begin signals the participant's simulation to initialize itself
	// with its assigned identity.
	Begin(id ParticipantID) error

	// DeliverTick hands the participant the other participants' intents
	// for one completed tick. otherIDs is in ascending registry order and
	// otherIntents holds the matching fixed-width records concatenated in
	// the same order; the k-th id corresponds to the k-th record. The
	// receiver's own intent is never included.
	DeliverTick(tick uint64, otherIDs []ParticipantID, otherIntents []byte) error
}

// Registry assigns stable participant identifiers for the lifetime of a
// round and tracks each participant's delivery handle.
//
// Identifiers are never reused, even after eviction. Eviction only shrinks
// the set of participants the barrier waits for; it is the external
// supervisor's remediation for a stalled round.
type Registry struct {
	mu      sync.RWMutex
	handles []DeliveryHandle
	evicted map[ParticipantID]struct{}
}

// NewRegistry creates an empty registry for a fresh round.
func NewRegistry() *Registry {
	return &Registry{
		evicted: make(map[ParticipantID]struct{}),
	}
}

// Register assigns the next unused identifier and records the delivery
// handle for fan-out. Returns ErrRegistryFull once the identifier space
// is exhausted.
func (r *Registry) Register(handle DeliveryHandle) (ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.handles) >= MaxParticipants {
		return 0, ErrRegistryFull
	}
	id := ParticipantID(len(r.handles))
	r.handles = append(r.handles, handle)
	return id, nil
}

// Count returns the number of active (registered and not evicted)
// participants. The barrier scheduler uses this as the expected intent
// count for slot completeness.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles) - len(r.evicted)
}

// IDs returns the active participant identifiers in ascending order. This
// order defines each participant's position in broadcast payloads.
func (r *Registry) IDs() []ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ParticipantID, 0, len(r.handles)-len(r.evicted))
	for i := range r.handles {
		id := ParticipantID(i)
		if _, gone := r.evicted[id]; gone {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Handle returns the delivery handle for an active participant. The second
// return value is false for unknown or evicted identifiers.
func (r *Registry) Handle(id ParticipantID) (DeliveryHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(id) >= len(r.handles) {
		return nil, false
	}
	if _, gone := r.evicted[id]; gone {
		return nil, false
	}
	return r.handles[int(id)], true
}

// Active reports whether the identifier belongs to a registered,
// non-evicted participant.
func (r *Registry) Active(id ParticipantID) bool {
	_, ok := r.Handle(id)
	return ok
}

// Evict removes a participant from the expected-count and fan-out sets
// without reusing its identifier. It is the supervisor hook for breaking a
// round stalled on a non-responsive participant: after eviction the
// barrier re-derives a smaller expected count and the round can advance.
// Returns false if the identifier was unknown or already evicted.
func (r *Registry) Evict(id ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.handles) {
		return false
	}
	if _, gone := r.evicted[id]; gone {
		return false
	}
	r.evicted[id] = struct{}{}
	return true
}
