package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// TickCallback is invoked after a tick's payloads have been dispatched and
// the cursor advanced past it.
type TickCallback func(tick uint64)

// BarrierScheduler drives tick advancement for one round.
//
// It alternates between two states: waiting for the cursor tick's slot to
// hold one intent per active participant, and dispatching that tick's
// fan-out payloads. Ticks advance strictly one at a time, each only after
// full convergence of that tick's inputs; no tick is skipped, processed
// out of order, or re-dispatched. The cursor never rewinds within a round.
//
// The loop wakes immediately when a submission may have completed a slot
// (Wake) and additionally polls on a fixed interval as a safety net.
type BarrierScheduler struct {
	log      *slog.Logger
	clock    clock.Clock
	interval time.Duration
	codec    IntentCodec
	buffer   *TickBuffer
	registry *Registry

	cursor atomic.Uint64
	wake   chan struct{}
	onTick TickCallback
}

// NewBarrierScheduler creates a scheduler over the given round state. clk
// may be a mock clock in tests; pass clock.New() in production.
func NewBarrierScheduler(log *slog.Logger, clk clock.Clock, interval time.Duration,
	codec IntentCodec, buffer *TickBuffer, registry *Registry) *BarrierScheduler {

	return &BarrierScheduler{
		log:      log,
		clock:    clk,
		interval: interval,
		codec:    codec,
		buffer:   buffer,
		registry: registry,
		wake:     make(chan struct{}, 1),
	}
}

// SetTickCallback sets a callback invoked once per advanced tick, from the
// scheduler goroutine. Must be called before Run.
func (s *BarrierScheduler) SetTickCallback(cb TickCallback) {
	s.onTick = cb
}

// Cursor returns the tick index the scheduler is currently waiting to
// complete. Monotonically non-decreasing.
func (s *BarrierScheduler) Cursor() uint64 {
	return s.cursor.Load()
}

// Wake nudges the scheduler to re-check the current tick's completeness.
// Non-blocking; redundant wakeups coalesce.
func (s *BarrierScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes the barrier loop until ctx is canceled. It never returns an
// incomplete tick's payload: a round with a non-responsive participant
// stalls at that tick until an external supervisor evicts the straggler.
func (s *BarrierScheduler) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.advanceReady()
		case <-ticker.C:
			s.advanceReady()
		}
	}
}

// advanceReady dispatches and advances past every consecutively complete
// tick starting at the cursor.
func (s *BarrierScheduler) advanceReady() {
	for {
		tick := s.cursor.Load()
		ids := s.registry.IDs()
		if len(ids) == 0 {
			return
		}
		set, ok := s.buffer.CompleteSet(tick, ids)
		if !ok {
			return
		}

		s.dispatch(tick, ids, set)
		s.cursor.Inc()
		if s.onTick != nil {
			s.onTick(tick)
		}
	}
}

// dispatch fans the completed tick out to every active participant. Each
// participant receives the other participants' ids and intents in registry
// order, with its own submission omitted entirely.
func (s *BarrierScheduler) dispatch(tick uint64, ids []ParticipantID, set map[ParticipantID]Intent) {
	for _, receiver := range ids {
		otherIDs := make([]ParticipantID, 0, len(ids)-1)
		otherIntents := make([]byte, 0, (len(ids)-1)*s.codec.Width())
		for _, id := range ids {
			if id == receiver {
				continue
			}
			otherIDs = append(otherIDs, id)
			otherIntents = s.codec.AppendEncoded(otherIntents, set[id])
		}

		handle, ok := s.registry.Handle(receiver)
		if !ok {
			// Evicted between snapshot and dispatch; skip.
			continue
		}
		if err := handle.DeliverTick(tick, otherIDs, otherIntents); err != nil {
			// Deliveries are never retried. The participant's view of
			// this tick is lost to it, not rewritten for anyone else.
			s.log.Error("tick delivery failed",
				"tick", tick, "participant", receiver, "err", err)
		}
	}

	s.log.Debug("tick dispatched", "tick", tick, "participants", len(ids))
}
