package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickBufferLazySlotCreation(t *testing.T) {
	buf := NewTickBuffer(0)
	assert.Equal(t, 0, buf.Len())

	_, ok := buf.Slot(0)
	assert.False(t, ok, "slot must not exist before the first submission")

	require.NoError(t, buf.Submit(0, 0, Intent{1, 0, 0}))
	assert.Equal(t, 1, buf.Len())

	slot, ok := buf.Slot(0)
	require.True(t, ok)
	assert.Equal(t, 1, slot.Len())
}

func TestTickBufferRejectsFutureTicks(t *testing.T) {
	buf := NewTickBuffer(0)
	require.NoError(t, buf.Submit(0, 0, Intent{1, 0, 0}))

	// Buffer length is 1; tick 1 is the next appendable index, tick 3 is
	// from the future.
	err := buf.Submit(3, 0, Intent{2, 0, 0})
	require.ErrorIs(t, err, ErrFutureTick)

	// The rejection must not materialize intermediate empty slots.
	assert.Equal(t, 1, buf.Len())
	_, ok := buf.Slot(1)
	assert.False(t, ok)
	_, ok = buf.Slot(2)
	assert.False(t, ok)
}

func TestTickBufferFirstWriterWins(t *testing.T) {
	buf := NewTickBuffer(0)
	require.NoError(t, buf.Submit(0, 0, Intent{1, 0, 0}))

	err := buf.Submit(0, 0, Intent{9, 9, 9})
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	slot, ok := buf.Slot(0)
	require.True(t, ok)
	intent, ok := slot.Intent(0)
	require.True(t, ok)
	assert.Equal(t, Intent{1, 0, 0}, intent, "the first submission must stand")
}

func TestTickBufferCompleteness(t *testing.T) {
	buf := NewTickBuffer(0)

	assert.False(t, buf.IsComplete(0, 2), "absent slot is never complete")

	require.NoError(t, buf.Submit(0, 0, Intent{1, 0, 0}))
	assert.False(t, buf.IsComplete(0, 2))

	require.NoError(t, buf.Submit(0, 1, Intent{0, 1, 0}))
	assert.True(t, buf.IsComplete(0, 2))

	// Exactly the expected count: no fewer, no more.
	assert.False(t, buf.IsComplete(0, 1))
	assert.False(t, buf.IsComplete(0, 3))
}

func TestTickBufferCompleteSet(t *testing.T) {
	buf := NewTickBuffer(0)
	ids := []ParticipantID{0, 1, 2}

	require.NoError(t, buf.Submit(0, 0, Intent{1, 0, 0}))
	require.NoError(t, buf.Submit(0, 1, Intent{0, 1, 0}))

	_, ok := buf.CompleteSet(0, ids)
	assert.False(t, ok, "missing participant 2")

	require.NoError(t, buf.Submit(0, 2, Intent{0, 0, 1}))
	set, ok := buf.CompleteSet(0, ids)
	require.True(t, ok)
	assert.Equal(t, Intent{1, 0, 0}, set[0])
	assert.Equal(t, Intent{0, 1, 0}, set[1])
	assert.Equal(t, Intent{0, 0, 1}, set[2])
}

func TestTickBufferCompleteSetIgnoresEvictedEntries(t *testing.T) {
	buf := NewTickBuffer(0)

	require.NoError(t, buf.Submit(0, 0, Intent{1, 0, 0}))
	require.NoError(t, buf.Submit(0, 1, Intent{0, 1, 0}))
	require.NoError(t, buf.Submit(0, 2, Intent{0, 0, 1}))

	// Participant 2 was evicted after submitting; the shrunken id set is
	// still complete and the snapshot excludes the evicted entry.
	set, ok := buf.CompleteSet(0, []ParticipantID{0, 1})
	require.True(t, ok)
	assert.Len(t, set, 2)
	_, present := set[2]
	assert.False(t, present)
}

func TestTickBufferEnforcesRoundLengthCap(t *testing.T) {
	buf := NewTickBuffer(2)

	require.NoError(t, buf.Submit(0, 0, Intent{1}))
	require.NoError(t, buf.Submit(1, 0, Intent{2}))

	err := buf.Submit(2, 0, Intent{3})
	require.ErrorIs(t, err, ErrTickLimit)
	assert.Equal(t, 2, buf.Len())
}

func TestTickBufferAdvancesDensely(t *testing.T) {
	buf := NewTickBuffer(0)

	for tick := uint64(0); tick < 5; tick++ {
		require.NoError(t, buf.Submit(tick, 0, Intent{byte(tick), 0, 0}))
		require.NoError(t, buf.Submit(tick, 1, Intent{0, byte(tick), 0}))
	}
	assert.Equal(t, 5, buf.Len())

	for tick := uint64(0); tick < 5; tick++ {
		assert.True(t, buf.IsComplete(tick, 2))
	}
}
