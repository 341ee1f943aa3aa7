package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagless/tickrelay/protocol"
	"github.com/lagless/tickrelay/testutil"
)

func newTestRelay(t *testing.T, cfg *protocol.Config) *protocol.RelayServer {
	t.Helper()
	relay, err := protocol.NewRelayServer(cfg, slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(relay.StopRound)
	return relay
}

func startRound(t *testing.T, relay *protocol.RelayServer, participants int) []*testutil.CaptureHandle {
	t.Helper()
	handles := make([]*testutil.CaptureHandle, participants)
	deliveryHandles := make([]protocol.DeliveryHandle, participants)
	for i := range handles {
		handles[i] = testutil.NewCaptureHandle()
		deliveryHandles[i] = handles[i]
	}
	require.NoError(t, relay.StartRound(context.Background(), deliveryHandles))
	return handles
}

func TestRelayStartRoundSignalsBegin(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	handles := startRound(t, relay, 2)

	for i, h := range handles {
		id, began := h.Began()
		assert.True(t, began, "participant %d not signaled", i)
		assert.Equal(t, protocol.ParticipantID(i), id)
	}
	assert.True(t, relay.Running())
	assert.Equal(t, 2, relay.Participants())
	assert.Equal(t, uint64(0), relay.Cursor())
}

func TestRelayRejectsSecondRound(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	startRound(t, relay, 2)

	err := relay.StartRound(context.Background(), []protocol.DeliveryHandle{testutil.NewCaptureHandle()})
	require.ErrorIs(t, err, protocol.ErrRoundRunning)
}

func TestRelayRejectsEmptyRound(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	err := relay.StartRound(context.Background(), nil)
	require.ErrorIs(t, err, protocol.ErrNoParticipants)
}

func TestRelayEndToEndTick(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	handles := startRound(t, relay, 2)

	require.NoError(t, relay.SubmitIntent(0, 0, []byte{1, 0, 0}))
	require.NoError(t, relay.SubmitIntent(1, 0, []byte{0, 1, 0}))

	a := handles[0].WaitForDelivery(t, time.Second)
	assert.Equal(t, []protocol.ParticipantID{1}, a.OtherIDs)
	assert.Equal(t, []byte{0, 1, 0}, a.OtherIntents)

	b := handles[1].WaitForDelivery(t, time.Second)
	assert.Equal(t, []protocol.ParticipantID{0}, b.OtherIDs)
	assert.Equal(t, []byte{1, 0, 0}, b.OtherIntents)

	require.Eventually(t, func() bool { return relay.Cursor() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestRelaySubmissionRejections(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	handles := startRound(t, relay, 2)

	err := relay.SubmitIntent(0, 0, []byte{1, 0})
	require.ErrorIs(t, err, protocol.ErrMalformedIntent)

	err = relay.SubmitIntent(0, 2, []byte{1, 0, 0})
	require.ErrorIs(t, err, protocol.ErrFutureTick)

	err = relay.SubmitIntent(9, 0, []byte{1, 0, 0})
	require.ErrorIs(t, err, protocol.ErrUnknownSender)

	require.NoError(t, relay.SubmitIntent(0, 0, []byte{1, 0, 0}))
	err = relay.SubmitIntent(0, 0, []byte{9, 9, 9})
	require.ErrorIs(t, err, protocol.ErrDuplicateSubmission)

	// None of the rejections may have leaked into a dispatch.
	handles[1].AssertNoDelivery(t, 100*time.Millisecond)
	assert.Equal(t, uint64(0), relay.Cursor())
}

func TestRelayEnforcesTickCap(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.MaxTicks = 1
	relay := newTestRelay(t, cfg)
	handles := startRound(t, relay, 1)

	require.NoError(t, relay.SubmitIntent(0, 0, []byte{1, 0, 0}))
	handles[0].WaitForDelivery(t, time.Second)

	err := relay.SubmitIntent(0, 1, []byte{2, 0, 0})
	require.ErrorIs(t, err, protocol.ErrTickLimit)
}

func TestRelayStopDiscardsRoundState(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	startRound(t, relay, 2)
	require.NoError(t, relay.SubmitIntent(0, 0, []byte{1, 0, 0}))

	relay.StopRound()
	assert.False(t, relay.Running())

	// Submissions for a stopped round are discarded, not buffered.
	err := relay.SubmitIntent(1, 0, []byte{0, 1, 0})
	require.ErrorIs(t, err, protocol.ErrRoundStopped)

	// A fresh round starts from tick 0 with fresh identifiers.
	handles := startRound(t, relay, 2)
	assert.Equal(t, uint64(0), relay.Cursor())

	require.NoError(t, relay.SubmitIntent(0, 0, []byte{3, 0, 0}))
	require.NoError(t, relay.SubmitIntent(1, 0, []byte{0, 3, 0}))
	d := handles[0].WaitForDelivery(t, time.Second)
	assert.Equal(t, []byte{0, 3, 0}, d.OtherIntents,
		"stale state from the stopped round must not resurface")
}

func TestRelayEvictionUnstallsRound(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())
	handles := startRound(t, relay, 3)

	require.NoError(t, relay.SubmitIntent(0, 0, []byte{1, 0, 0}))
	require.NoError(t, relay.SubmitIntent(1, 0, []byte{0, 1, 0}))

	// Participant 2 stalls; the relay waits indefinitely on its own.
	handles[0].AssertNoDelivery(t, 100*time.Millisecond)
	assert.Equal(t, uint64(0), relay.Cursor())

	// The external supervisor evicts the straggler; the barrier
	// re-derives the smaller expected count and advances.
	require.NoError(t, relay.Evict(2))
	assert.Equal(t, 2, relay.Participants())

	a := handles[0].WaitForDelivery(t, time.Second)
	assert.Equal(t, []protocol.ParticipantID{1}, a.OtherIDs)
	b := handles[1].WaitForDelivery(t, time.Second)
	assert.Equal(t, []protocol.ParticipantID{0}, b.OtherIDs)

	// The evicted participant can no longer submit.
	err := relay.SubmitIntent(2, 1, []byte{0, 0, 1})
	require.ErrorIs(t, err, protocol.ErrUnknownSender)
}

func TestRelayTickCallback(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())

	ticks := make(chan uint64, 8)
	relay.SetTickCallback(func(tick uint64) { ticks <- tick })
	startRound(t, relay, 1)

	require.NoError(t, relay.SubmitIntent(0, 0, []byte{1, 0, 0}))
	select {
	case tick := <-ticks:
		assert.Equal(t, uint64(0), tick)
	case <-time.After(time.Second):
		t.Fatal("tick callback not invoked")
	}
}

func TestRelayEvictErrors(t *testing.T) {
	relay := newTestRelay(t, protocol.DefaultConfig())

	require.ErrorIs(t, relay.Evict(0), protocol.ErrNoRound)

	startRound(t, relay, 1)
	require.ErrorIs(t, relay.Evict(5), protocol.ErrUnknownSender)
}
