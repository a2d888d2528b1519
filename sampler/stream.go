package sampler

import (
	"io"
	"sync/atomic"

	"github.com/cwbudde/algo-sampler/ringbuf"
)

// StreamState is the lifecycle state of a disk stream.
type StreamState int32

const (
	// StreamUnused marks a pool slot available for a new order.
	StreamUnused StreamState = iota
	// StreamActive marks a stream being refilled by the disk thread.
	StreamActive
	// StreamEnd marks a stream whose backing data is exhausted; the
	// voice may keep reading until the ring is empty.
	StreamEnd
)

// Stream feeds one disk voice: the disk thread writes sample frames
// into the ring ahead of the voice's read position, the voice consumes
// them on the real-time thread. All frame counts are in sample frames,
// not interleaved values.
type Stream struct {
	ring *ringbuf.Ring[float32]

	sample  *Sample
	orderID atomic.Uint64
	state   atomic.Int32

	// Disk-side only.
	filePos        int // next frame to read from the backing file
	doLoop         bool
	loopCyclesLeft int

	// readPos is the absolute frame position in the sample of the next
	// unread frame, maintained on the consumer side.
	readPos atomic.Int64

	channels int
}

func newStream(ringFrames int) *Stream {
	return &Stream{ring: ringbuf.New[float32](ringFrames * 2)}
}

// launch binds the stream to a sample. Disk-thread side.
func (st *Stream) launch(orderID uint64, sample *Sample, startFrame int, doLoop bool) {
	st.sample = sample
	st.channels = sample.Channels
	st.filePos = startFrame
	st.doLoop = doLoop && sample.Loops
	st.loopCyclesLeft = sample.Loop.PlayCount
	st.readPos.Store(int64(startFrame))
	st.ring.Reset()
	st.state.Store(int32(StreamActive))
	// Publishing the order ID makes the stream visible to
	// AskForCreatedStream, so it must happen last.
	st.orderID.Store(orderID)
}

// reset recycles the stream into the pool. Disk-thread side.
func (st *Stream) reset() {
	st.orderID.Store(0)
	st.state.Store(int32(StreamUnused))
	st.sample = nil
	st.ring.Reset()
}

// State returns the stream's lifecycle state.
func (st *Stream) State() StreamState { return StreamState(st.state.Load()) }

// OrderID returns the order that created this stream, 0 if unused.
func (st *Stream) OrderID() uint64 { return st.orderID.Load() }

// ReadSpace returns the number of buffered frames available to the
// voice.
func (st *Stream) ReadSpace() int {
	if st.channels == 0 {
		return 0
	}
	return st.ring.ReadSpace() / st.channels
}

// WriteSpace returns the number of frames the disk thread could append.
func (st *Stream) WriteSpace() int {
	if st.channels == 0 {
		return 0
	}
	return st.ring.WriteSpace() / st.channels
}

// Peek copies up to frames frames into dst without consuming them and
// returns the frame count actually copied.
func (st *Stream) Peek(dst []float32, frames int) int {
	n := st.ring.Peek(dst[:frames*st.channels])
	return n / st.channels
}

// IncrementReadPos consumes frames frames from the ring.
func (st *Stream) IncrementReadPos(frames int) {
	if frames <= 0 {
		return
	}
	st.ring.IncrementRead(frames * st.channels)
	st.readPos.Add(int64(frames))
}

// WriteSilence appends up to frames zero frames, used to pad the tail
// for the interpolator once the backing data is exhausted.
func (st *Stream) WriteSilence(frames int) int {
	return st.ring.WriteZero(frames*st.channels) / st.channels
}

// ReadPosition returns the absolute frame position in the sample of
// the next frame the voice will consume. Loop wraps on the disk side
// keep increasing this position monotonically.
func (st *Stream) ReadPosition() int {
	return int(st.readPos.Load())
}

// refill tops the ring up from the backing file. Disk-thread side.
// A read error moves the stream to its end state and is returned;
// reaching the end of the sample returns nil.
func (st *Stream) refill(scratch []float32, threshold int) error {
	if st.State() != StreamActive {
		return nil
	}
	space := st.WriteSpace()
	if space < threshold {
		return nil
	}
	for space > 0 {
		limit := st.sample.Frames
		if st.doLoop && st.filePos < st.sample.Loop.End {
			limit = st.sample.Loop.End
		}
		n := minInt(space, limit-st.filePos)
		if n > len(scratch)/st.channels {
			n = len(scratch) / st.channels
		}
		if n <= 0 {
			if st.doLoop && st.filePos >= st.sample.Loop.End {
				st.rewindLoop()
				continue
			}
			st.state.Store(int32(StreamEnd))
			return nil
		}
		got, err := st.sample.Reader.ReadFrames(scratch[:n*st.channels], st.filePos)
		if got > 0 {
			st.ring.Write(scratch[:got*st.channels])
			st.filePos += got
			space -= got
		}
		if err != nil && err != io.EOF {
			// Keep the buffered content; the voice drains and finishes.
			st.state.Store(int32(StreamEnd))
			return err
		}
		if err == io.EOF || got == 0 {
			if st.doLoop && st.filePos >= st.sample.Loop.End {
				st.rewindLoop()
				continue
			}
			st.state.Store(int32(StreamEnd))
			return nil
		}
		if st.doLoop && st.filePos >= st.sample.Loop.End {
			st.rewindLoop()
		}
	}
	return nil
}

func (st *Stream) rewindLoop() {
	if st.loopCyclesLeft > 0 {
		st.loopCyclesLeft--
		if st.loopCyclesLeft == 0 {
			st.doLoop = false
			return
		}
	}
	st.filePos = st.sample.Loop.Start
}
