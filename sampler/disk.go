package sampler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-sampler/ringbuf"
)

// streamOrder is a request from the real-time thread to launch a new
// disk stream.
type streamOrder struct {
	orderID    uint64
	sample     *Sample
	startFrame int
	doLoop     bool
}

// streamReclaim is a request from the real-time thread to recycle a
// stream. stream may be nil when the original order was never
// serviced; the order ID then cancels the pending order instead.
type streamReclaim struct {
	orderID uint64
	stream  *Stream
}

// DiskThread owns a pool of streams and performs all file I/O on its
// own goroutine. It synchronizes with the real-time thread exclusively
// through lock-free rings: an order queue (RT to disk), per-stream
// sample rings (disk to RT) and a deletion queue (RT to disk).
type DiskThread struct {
	streams []*Stream

	orders    *ringbuf.Ring[streamOrder]
	deletions *ringbuf.Ring[streamReclaim]

	// canceled remembers recently reclaimed order IDs whose streams
	// were never created, so the matching pending orders are dropped.
	canceled     [64]uint64
	canceledNext int

	nextOrderID uint64 // RT side only

	refillThreshold int
	refillInterval  time.Duration
	scratch         []float32

	quit chan struct{}
	done chan struct{}

	log *logrus.Entry
}

// NewDiskThread creates a disk streamer with poolSize streams of
// ringFrames frames each. The thread is not started yet.
func NewDiskThread(poolSize, ringFrames, refillThreshold int, refillInterval time.Duration, logger *logrus.Logger) *DiskThread {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	d := &DiskThread{
		streams:         make([]*Stream, poolSize),
		orders:          ringbuf.New[streamOrder](poolSize * 2),
		deletions:       ringbuf.New[streamReclaim](poolSize * 2),
		refillThreshold: refillThreshold,
		refillInterval:  refillInterval,
		scratch:         make([]float32, 65536),
		log:             logger.WithField("component", "disk"),
	}
	for i := range d.streams {
		d.streams[i] = newStream(ringFrames)
	}
	return d
}

// Start launches the streaming goroutine.
func (d *DiskThread) Start() {
	if d.quit != nil {
		return
	}
	d.quit = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop()
	d.log.Debug("disk thread started")
}

// Stop terminates the streaming goroutine and waits for it to finish.
func (d *DiskThread) Stop() {
	if d.quit == nil {
		return
	}
	close(d.quit)
	<-d.done
	d.quit = nil
	d.log.Debug("disk thread stopped")
}

// OrderNewStream asks the disk thread to launch a stream for sample
// beginning at startFrame. Called from the real-time thread; never
// blocks. Returns the order ID to poll with AskForCreatedStream, or
// ok=false when the order queue is saturated.
func (d *DiskThread) OrderNewStream(sample *Sample, startFrame int, doLoop bool) (orderID uint64, ok bool) {
	d.nextOrderID++
	order := streamOrder{
		orderID:    d.nextOrderID,
		sample:     sample,
		startFrame: startFrame,
		doLoop:     doLoop,
	}
	if d.orders.WriteSpace() < 1 {
		return 0, false
	}
	d.orders.Write([]streamOrder{order})
	return order.orderID, true
}

// AskForCreatedStream returns the stream created for the given order,
// or nil while the disk thread has not serviced the order yet. Called
// from the real-time thread; never blocks.
func (d *DiskThread) AskForCreatedStream(orderID uint64) *Stream {
	for _, st := range d.streams {
		if st.OrderID() == orderID && st.State() != StreamUnused {
			return st
		}
	}
	return nil
}

// OrderStreamReclamation marks a stream for recycling. When stream is
// nil the order ID cancels the still pending order instead. Called
// from the real-time thread; never blocks.
func (d *DiskThread) OrderStreamReclamation(orderID uint64, stream *Stream) bool {
	if orderID == 0 && stream == nil {
		return false
	}
	if d.deletions.WriteSpace() < 1 {
		return false
	}
	d.deletions.Write([]streamReclaim{{orderID: orderID, stream: stream}})
	return true
}

// ActiveStreams counts streams currently bound to a voice.
func (d *DiskThread) ActiveStreams() int {
	n := 0
	for _, st := range d.streams {
		if st.State() != StreamUnused {
			n++
		}
	}
	return n
}

func (d *DiskThread) loop() {
	defer close(d.done)
	ticker := time.NewTicker(d.refillInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
			d.serviceQueues()
			d.refillStreams()
		}
	}
}

func (d *DiskThread) serviceQueues() {
	var del [1]streamReclaim
	for d.deletions.Read(del[:]) == 1 {
		st := del[0].stream
		if st == nil {
			// The order may have been serviced after the voice last
			// looked; reclaim the stream it produced in that case.
			for _, cand := range d.streams {
				if cand.OrderID() == del[0].orderID && cand.State() != StreamUnused {
					st = cand
					break
				}
			}
		}
		if st != nil {
			st.reset()
			continue
		}
		d.canceled[d.canceledNext] = del[0].orderID
		d.canceledNext = (d.canceledNext + 1) % len(d.canceled)
	}

	var ord [1]streamOrder
	for d.orders.Read(ord[:]) == 1 {
		if d.isCanceled(ord[0].orderID) {
			continue
		}
		st := d.findUnused()
		if st == nil {
			// Pool saturated: the order is dropped silently and the
			// voice kills itself once its grace cycle passes.
			d.log.WithField("order", ord[0].orderID).Warn("stream pool saturated, order dropped")
			continue
		}
		st.launch(ord[0].orderID, ord[0].sample, ord[0].startFrame, ord[0].doLoop)
	}
}

func (d *DiskThread) isCanceled(orderID uint64) bool {
	for _, id := range d.canceled {
		if id == orderID {
			return true
		}
	}
	return false
}

func (d *DiskThread) findUnused() *Stream {
	for _, st := range d.streams {
		if st.State() == StreamUnused {
			return st
		}
	}
	return nil
}

func (d *DiskThread) refillStreams() {
	for _, st := range d.streams {
		if err := st.refill(d.scratch, d.refillThreshold); err != nil {
			d.log.WithField("sample", st.sample.Path).WithError(err).Error("stream read failed")
		}
	}
}
