package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckManager_NothingProcessed(t *testing.T) {
	a := NewAckManager(250 * time.Millisecond)
	now := time.Unix(0, 0)

	_, ok := a.MaybeBuildAck(false, now)
	assert.False(t, ok)
	_, ok = a.MaybeBuildAck(true, now)
	assert.False(t, ok, "force still requires a processed seq")
}

func TestAckManager_SuppressesRepeatWithoutNewSeq(t *testing.T) {
	a := NewAckManager(250 * time.Millisecond)
	now := time.Unix(100, 0)

	a.OnRecordProcessed(7)
	first, ok := a.MaybeBuildAck(false, now)
	require.True(t, ok)
	assert.Equal(t, uint32(7), first.Seq)

	_, ok = a.MaybeBuildAck(false, now)
	assert.False(t, ok)
	_, ok = a.MaybeBuildAck(false, now.Add(time.Hour))
	assert.False(t, ok, "same seq is never re-acked without force")
}

func TestAckManager_RateLimit(t *testing.T) {
	a := NewAckManager(250 * time.Millisecond)
	t0 := time.Unix(100, 0)

	a.OnRecordProcessed(1)
	_, ok := a.MaybeBuildAck(false, t0)
	require.True(t, ok)

	a.OnRecordProcessed(2)
	_, ok = a.MaybeBuildAck(false, t0.Add(100*time.Millisecond))
	assert.False(t, ok)

	wait, pending := a.NextDue(t0.Add(100 * time.Millisecond))
	assert.True(t, pending)
	assert.Equal(t, 150*time.Millisecond, wait)

	frame, ok := a.MaybeBuildAck(false, t0.Add(250*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, uint32(2), frame.Seq)

	_, pending = a.NextDue(t0.Add(time.Second))
	assert.False(t, pending)
}

func TestAckManager_ForceBypassesInterval(t *testing.T) {
	a := NewAckManager(250 * time.Millisecond)
	t0 := time.Unix(100, 0)

	a.OnRecordProcessed(9)
	_, ok := a.MaybeBuildAck(false, t0)
	require.True(t, ok)

	frame, ok := a.MaybeBuildAck(true, t0.Add(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, uint32(9), frame.Seq)
}

func TestAckManager_RetractAllowsRetry(t *testing.T) {
	a := NewAckManager(250 * time.Millisecond)
	t0 := time.Unix(100, 0)

	a.OnRecordProcessed(3)
	frame, ok := a.MaybeBuildAck(false, t0)
	require.True(t, ok)

	a.Retract(frame)
	assert.True(t, a.Pending())
	_, acked := a.LastAcked()
	assert.False(t, acked)

	again, ok := a.MaybeBuildAck(false, t0)
	require.True(t, ok)
	assert.Equal(t, frame, again)
}

func TestAckManager_Reset(t *testing.T) {
	a := NewAckManager(250 * time.Millisecond)
	a.OnRecordProcessed(3)
	a.MaybeBuildAck(false, time.Unix(1, 0))

	a.Reset()
	assert.False(t, a.Pending())
	_, ok := a.MaybeBuildAck(true, time.Unix(2, 0))
	assert.False(t, ok)

	// interval survives reset
	a.OnRecordProcessed(4)
	_, ok = a.MaybeBuildAck(false, time.Unix(3, 0))
	require.True(t, ok)
	a.OnRecordProcessed(5)
	_, ok = a.MaybeBuildAck(false, time.Unix(3, 0).Add(10*time.Millisecond))
	assert.False(t, ok)
}
