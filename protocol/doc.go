// Package protocol implements the lockstep tick-synchronization core.
//
// Each participant in a round runs an identical deterministic simulation
// and, once per tick, tells the relay what it intends to do during that
// tick. The relay buffers intents per tick, waits until every registered
// participant has contributed (the barrier), then fans out to each
// participant the other participants' intents for that tick and advances
// the round cursor by exactly one.
//
// The package is organized around four pieces:
//
//  1. IntentCodec decodes and encodes the fixed-width intent records.
//  2. TickBuffer is the append-only, dense store of per-tick intent sets.
//  3. Registry assigns stable participant identifiers and tracks each
//     participant's delivery handle.
//  4. BarrierScheduler is the control loop that checks slot completeness
//     and dispatches the per-participant broadcast payloads.
//
// RelayServer ties these together and owns the round lifecycle. Round
// state is created fresh when a round starts and discarded when it stops;
// nothing survives a relay restart.
//
// Rejection policy: submissions that are malformed, duplicated, or ahead
// of the relay's current tick are dropped without informing the sender.
// The relay favors availability of the lockstep barrier over feedback to
// a lagging or misbehaving participant; a buggy sender must not be able
// to corrupt another participant's view of a committed tick.
package protocol
