package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
)

// Round lifecycle errors surfaced to the embedding host, never to
// participants.
var (
	ErrRoundRunning   = errors.New("round already running")
	ErrNoRound        = errors.New("no round running")
	ErrUnknownSender  = errors.New("submission from unknown or evicted participant")
	ErrRoundStopped   = errors.New("submission for a stopped round")
	ErrNoParticipants = errors.New("round needs at least one participant")
)

// roundState is everything scoped to one round: registry, buffer, and the
// scheduler driving them. Discarded wholesale when the round stops.
type roundState struct {
	registry *Registry
	buffer   *TickBuffer
	sched    *BarrierScheduler
	cancel   context.CancelFunc
	done     chan struct{}
}

// RelayServer owns the lockstep relay for one simulation round: the
// participant registry, the tick buffer, the round cursor, and the barrier
// scheduler loop. There is no process-wide state; construct one per host.
type RelayServer struct {
	log   *slog.Logger
	cfg   *Config
	clock clock.Clock
	codec IntentCodec

	mu     sync.RWMutex
	round  *roundState
	onTick TickCallback
}

// NewRelayServer creates a relay with no round running.
func NewRelayServer(cfg *Config, log *slog.Logger) (*RelayServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	codec, err := NewIntentCodec(cfg.IntentSize)
	if err != nil {
		return nil, err
	}

	return &RelayServer{
		log:   log,
		cfg:   cfg,
		clock: clock.New(),
		codec: codec,
	}, nil
}

// Codec returns the relay's intent codec.
func (r *RelayServer) Codec() IntentCodec {
	return r.codec
}

// SetTickCallback sets a callback invoked once per advanced tick. Must be
// called before StartRound.
func (r *RelayServer) SetTickCallback(cb TickCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTick = cb
}

// StartRound begins a round over the given participants. It resets all
// round state, assigns each handle a fresh identifier in order, signals
// each participant to begin at its identity, and starts the barrier loop.
//
// The round runs until StopRound, ctx cancellation, or forever; there is
// no pause/resume and no mid-round join.
func (r *RelayServer) StartRound(ctx context.Context, handles []DeliveryHandle) error {
	if len(handles) == 0 {
		return ErrNoParticipants
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.round != nil {
		return ErrRoundRunning
	}

	registry := NewRegistry()
	buffer := NewTickBuffer(r.cfg.MaxTicks)
	sched := NewBarrierScheduler(r.log, r.clock, r.cfg.TickInterval, r.codec, buffer, registry)
	sched.SetTickCallback(r.onTick)

	for _, handle := range handles {
		id, err := registry.Register(handle)
		if err != nil {
			return fmt.Errorf("registering participant: %w", err)
		}
		if err := handle.Begin(id); err != nil {
			return fmt.Errorf("signaling participant %d to begin: %w", id, err)
		}
	}

	roundCtx, cancel := context.WithCancel(ctx)
	round := &roundState{
		registry: registry,
		buffer:   buffer,
		sched:    sched,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(round.done)
		sched.Run(roundCtx)
	}()
	r.round = round

	r.log.Info("round started",
		"participants", registry.Count(),
		"intentSize", r.cfg.IntentSize,
		"maxTicks", r.cfg.MaxTicks)
	return nil
}

// StopRound halts the barrier loop and discards all round-scoped state.
// In-flight submissions for the stopped round are dropped. Safe to call
// when no round is running.
func (r *RelayServer) StopRound() {
	r.mu.Lock()
	round := r.round
	r.round = nil
	r.mu.Unlock()

	if round == nil {
		return
	}
	round.cancel()
	<-round.done
	r.log.Info("round stopped", "cursor", round.sched.Cursor())
}

// Running reports whether a round is in progress.
func (r *RelayServer) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.round != nil
}

// Cursor returns the current round cursor, or 0 when no round is running.
func (r *RelayServer) Cursor() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.round == nil {
		return 0
	}
	return r.round.sched.Cursor()
}

// Participants returns the active participant count for the running round.
func (r *RelayServer) Participants() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.round == nil {
		return 0
	}
	return r.round.registry.Count()
}

// SubmitIntent records a participant's raw intent for a tick and wakes the
// scheduler. The returned error classifies rejected submissions for the
// host's logs and counters; it is never surfaced to the sender, which by
// policy receives no feedback on drops.
func (r *RelayServer) SubmitIntent(id ParticipantID, tick uint64, raw []byte) error {
	r.mu.RLock()
	round := r.round
	r.mu.RUnlock()

	if round == nil {
		return ErrRoundStopped
	}
	if !round.registry.Active(id) {
		return fmt.Errorf("%w: %d", ErrUnknownSender, id)
	}

	intent, err := r.codec.Decode(raw)
	if err != nil {
		return err
	}
	if err := round.buffer.Submit(tick, id, intent); err != nil {
		return err
	}

	round.sched.Wake()
	return nil
}

// Evict removes a participant from the running round's barrier, allowing a
// round stalled on a straggler to advance with the remaining participants.
// Exposed for an external supervisor; the relay itself never evicts.
func (r *RelayServer) Evict(id ParticipantID) error {
	r.mu.RLock()
	round := r.round
	r.mu.RUnlock()

	if round == nil {
		return ErrNoRound
	}
	if !round.registry.Evict(id) {
		return fmt.Errorf("%w: %d", ErrUnknownSender, id)
	}

	r.log.Warn("participant evicted", "participant", id, "remaining", round.registry.Count())
	// The current tick may already be complete for the shrunken set.
	round.sched.Wake()
	return nil
}
