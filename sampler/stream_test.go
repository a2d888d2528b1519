package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDiskThread(t *testing.T, poolSize int) *DiskThread {
	t.Helper()
	d := NewDiskThread(poolSize, 8192, 256, 200*time.Microsecond, nil)
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

func TestDiskThreadServicesOrder(t *testing.T) {
	d := newTestDiskThread(t, 4)
	s := makeDiskSample(100000, 1, 4096, 0)

	id, ok := d.OrderNewStream(s, 4000, false)
	require.True(t, ok, "order must be accepted")

	var st *Stream
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id)
		return st != nil && st.ReadSpace() > 0
	}), "stream never created or filled")

	// Content must start at the ordered frame.
	buf := make([]float32, 16)
	n := st.Peek(buf, 16)
	require.Equal(t, 16, n)
	for i := 0; i < n; i++ {
		require.Equal(t, float32(4000+i), buf[i], "frame %d", i)
	}
	require.Equal(t, 4000, st.ReadPosition())
}

func TestStreamReadPositionTracksConsumption(t *testing.T) {
	d := newTestDiskThread(t, 4)
	s := makeDiskSample(100000, 1, 4096, 0)

	id, _ := d.OrderNewStream(s, 1000, false)
	var st *Stream
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id)
		return st != nil && st.ReadSpace() >= 500
	}))

	st.IncrementReadPos(500)
	require.Equal(t, 1500, st.ReadPosition())

	buf := make([]float32, 4)
	st.Peek(buf, 4)
	require.Equal(t, float32(1500), buf[0])
}

func TestStreamEndsAtSampleEnd(t *testing.T) {
	d := newTestDiskThread(t, 4)
	s := makeDiskSample(5000, 1, 1024, 0)

	id, _ := d.OrderNewStream(s, 4000, false)
	var st *Stream
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id)
		return st != nil && st.State() == StreamEnd
	}), "stream never reached end state")

	// Buffered content stays intact for the voice to drain.
	require.Equal(t, 1000, st.ReadSpace())
}

func TestStreamLoopsAcrossLoopEnd(t *testing.T) {
	d := newTestDiskThread(t, 4)
	s := makeDiskSample(100000, 1, 64, 0)
	s.Loops = true
	s.Loop = Loop{Start: 100, End: 200}

	id, _ := d.OrderNewStream(s, 150, true)
	var st *Stream
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id)
		return st != nil && st.ReadSpace() >= 200
	}))

	buf := make([]float32, 200)
	st.Peek(buf, 200)
	// 150..199, then wrapping to 100..199 repeatedly.
	for i := 0; i < 50; i++ {
		require.Equal(t, float32(150+i), buf[i], "pre-wrap frame %d", i)
	}
	for i := 50; i < 150; i++ {
		require.Equal(t, float32(100+(i-50)), buf[i], "post-wrap frame %d", i)
	}
}

func TestStreamLoopPlayCountExhausts(t *testing.T) {
	d := newTestDiskThread(t, 4)
	s := makeDiskSample(1000, 1, 64, 0)
	s.Loops = true
	s.Loop = Loop{Start: 100, End: 200, PlayCount: 2}

	id, _ := d.OrderNewStream(s, 100, true)
	var st *Stream
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id)
		return st != nil && st.State() == StreamEnd
	}), "stream with finite loop count never ended")

	// Two loop passes (100..199 twice) then the tail 200..999.
	want := 100 + 100 + 800
	require.Equal(t, want, st.ReadSpace())
}

func TestOrderPoolSaturationDropsOrder(t *testing.T) {
	d := newTestDiskThread(t, 1)
	s := makeDiskSample(100000, 1, 4096, 0)

	id1, ok := d.OrderNewStream(s, 0, false)
	require.True(t, ok)
	require.True(t, waitFor(t, time.Second, func() bool {
		return d.AskForCreatedStream(id1) != nil
	}))

	id2, ok := d.OrderNewStream(s, 0, false)
	require.True(t, ok, "order queue itself accepts the order")
	time.Sleep(20 * time.Millisecond)
	require.Nil(t, d.AskForCreatedStream(id2), "saturated pool must drop the order")
}

func TestStreamReclamationRecyclesSlot(t *testing.T) {
	d := newTestDiskThread(t, 1)
	s := makeDiskSample(100000, 1, 4096, 0)

	id1, _ := d.OrderNewStream(s, 0, false)
	var st *Stream
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id1)
		return st != nil
	}))

	d.OrderStreamReclamation(id1, st)
	require.True(t, waitFor(t, time.Second, func() bool {
		return d.ActiveStreams() == 0
	}), "stream never recycled")

	id2, ok := d.OrderNewStream(s, 500, false)
	require.True(t, ok)
	require.True(t, waitFor(t, time.Second, func() bool {
		st = d.AskForCreatedStream(id2)
		return st != nil && st.ReadSpace() > 0
	}), "recycled slot unusable")
	require.Equal(t, 500, st.ReadPosition())
}

func TestReclaimUnservicedOrderCancelsIt(t *testing.T) {
	d := NewDiskThread(2, 8192, 256, time.Hour, nil) // never ticks on its own
	s := makeDiskSample(100000, 1, 4096, 0)

	id, ok := d.OrderNewStream(s, 0, false)
	require.True(t, ok)
	d.OrderStreamReclamation(id, nil)

	d.serviceQueues()
	require.Nil(t, d.AskForCreatedStream(id), "canceled order must not create a stream")
	require.Equal(t, 0, d.ActiveStreams())
}

func TestRingSpaceInvariantOnStream(t *testing.T) {
	st := newStream(1024)
	st.channels = 2
	total := st.ring.ReadSpace() + st.ring.WriteSpace()
	require.Equal(t, st.ring.Size()-1, total)
}
