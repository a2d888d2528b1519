package sampler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-sampler/resource"
)

// EngineConfig is the immutable snapshot handed to the real-time
// thread through the config exchange: instrument assignments and gain
// compensation live here so the control threads never touch state the
// renderer is reading.
type EngineConfig struct {
	GlobalVolume float32
	Instruments  []*Instrument // one slot per channel
}

// channelConsumer is the resource consumer identity of one engine
// channel.
type channelConsumer struct {
	engine *Engine
	index  int
}

func (c *channelConsumer) OnResourceProgress(progress float32) {
	c.engine.log.WithField("channel", c.index).
		WithField("progress", progress).Debug("instrument load progress")
}

// Engine owns the voice pool, the channels, the disk streamer and the
// instrument cache, and drives one render cycle per host audio
// callback. RenderAudio runs on the real-time thread; everything else
// is control-plane and may block.
type Engine struct {
	params Params

	channels  []*Channel
	consumers []*channelConsumer

	voices    []*Voice
	freeSlots []int

	disk        *DiskThread
	Instruments *InstrumentManager

	gen   *EventGenerator
	sched *Scheduler
	input *inputRing

	config   SynchronizedConfig[EngineConfig]
	configMu sync.Mutex

	// ScaleTuning detunes each pitch class in cents.
	ScaleTuning [12]int8

	pendingCycleSize atomic.Int32

	underruns atomic.Uint64

	log *logrus.Entry
}

// New creates an engine. The disk thread is started by Start.
func New(params *Params, loader InstrumentLoader, logger *logrus.Logger) (*Engine, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("engine params: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	e := &Engine{
		params: *params,
		gen:    NewEventGenerator(params.SampleRate),
		sched:  NewScheduler(params.EventQueueSize),
		input:  newInputRing(params.EventQueueSize),
		log:    logger.WithField("component", "engine"),
	}

	e.disk = NewDiskThread(params.StreamPoolSize, params.StreamRingFrames,
		params.StreamRefillThreshold, params.StreamRefillInterval, logger)

	if loader != nil {
		e.Instruments = NewInstrumentManager(loader, params.MaxSamplesPerCycle, logger)
	}

	e.channels = make([]*Channel, params.Channels)
	e.consumers = make([]*channelConsumer, params.Channels)
	for i := range e.channels {
		e.channels[i] = newChannel(e, i)
		e.consumers[i] = &channelConsumer{engine: e, index: i}
	}

	e.voices = make([]*Voice, params.MaxVoices)
	e.freeSlots = make([]int, 0, params.MaxVoices)
	for i := range e.voices {
		e.voices[i] = newVoice(e, i)
		e.freeSlots = append(e.freeSlots, i)
	}

	for i := range e.config.config {
		e.config.config[i] = EngineConfig{
			GlobalVolume: params.GlobalVolume,
			Instruments:  make([]*Instrument, params.Channels),
		}
	}

	return e, nil
}

// Start launches the disk streaming thread.
func (e *Engine) Start() { e.disk.Start() }

// Stop terminates the disk streaming thread and frees all cached
// instruments.
func (e *Engine) Stop() {
	e.disk.Stop()
	if e.Instruments != nil {
		e.Instruments.Clear()
	}
}

// SampleRate returns the fixed output sample rate.
func (e *Engine) SampleRate() int { return e.params.SampleRate }

// MaxSamplesPerCycle returns the current maximum audio fragment size.
func (e *Engine) MaxSamplesPerCycle() int { return e.params.MaxSamplesPerCycle }

// Channel returns the channel at index i.
func (e *Engine) Channel(i int) *Channel { return e.channels[i] }

// DiskThread exposes the streamer, mainly for tests and monitoring.
func (e *Engine) DiskThread() *DiskThread { return e.disk }

// Underruns returns the number of stream underruns observed so far.
func (e *Engine) Underruns() uint64 { return e.underruns.Load() }

// TotalSamplesProcessed returns the engine's monotonic sample clock.
func (e *Engine) TotalSamplesProcessed() uint64 { return e.gen.TotalSamples() }

// SendEvent enqueues a driver event for the next render cycle. Safe to
// call from any goroutine; never blocks. Returns false when the
// ingress queue is saturated. Time-stamped events are positioned
// within the cycle from their timestamp; events without a timestamp
// keep their preset fragment position.
func (e *Engine) SendEvent(ev Event) bool {
	if !ev.Time.IsZero() {
		ev.fragmentPos = -1
	}
	return e.input.push(ev)
}

// ScheduleEventMicros parks an event for delivery micros microseconds
// beyond the current cycle. Must be called from the render context
// (e.g. a scripting hook), not from arbitrary goroutines.
func (e *Engine) ScheduleEventMicros(ev Event, fragmentPosBase int, micros uint64) {
	e.sched.ScheduleAheadMicros(ev, e.gen.TotalSamples(), fragmentPosBase, micros, e.params.SampleRate)
}

// updateConfig applies the same mutation to both sides of the config
// exchange, serialized against other writers.
func (e *Engine) updateConfig(mutate func(*EngineConfig)) {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	c := e.config.GetConfigForUpdate()
	mutate(c)
	c = e.config.SwitchConfig()
	mutate(c)
}

// SetGlobalVolume publishes a new master volume to the render thread.
func (e *Engine) SetGlobalVolume(v float32) {
	e.updateConfig(func(c *EngineConfig) { c.GlobalVolume = v })
}

// GlobalVolume returns the master volume last published.
func (e *Engine) GlobalVolume() float32 {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.config.config[e.config.index.Load()].GlobalVolume
}

// AssignInstrument borrows the instrument and publishes it to the
// channel. Blocking; non-real-time only.
func (e *Engine) AssignInstrument(channel int, id InstrumentID) error {
	if e.Instruments == nil {
		return fmt.Errorf("engine has no instrument loader")
	}
	if channel < 0 || channel >= len(e.channels) {
		return fmt.Errorf("channel %d out of range", channel)
	}
	ins, err := e.Instruments.Borrow(id, e.consumers[channel])
	if err != nil {
		return err
	}
	e.updateConfig(func(c *EngineConfig) { c.Instruments[channel] = ins })
	return nil
}

// UnassignInstrument releases the channel's instrument borrow.
func (e *Engine) UnassignInstrument(channel int) {
	if e.Instruments == nil || channel < 0 || channel >= len(e.channels) {
		return
	}
	e.updateConfig(func(c *EngineConfig) { c.Instruments[channel] = nil })
	e.Instruments.HandBackAll(e.consumers[channel])
}

// SetMaxSamplesPerCycle announces a changed audio device fragment
// size. The engine applies it at the start of the next render cycle
// and re-orders the streams of in-flight disk voices whose RAM
// boundary changed.
func (e *Engine) SetMaxSamplesPerCycle(n int) {
	e.pendingCycleSize.Store(int32(n))
}

var _ resource.Consumer = (*channelConsumer)(nil)

// RenderAudio renders exactly len(left) frames into the two output
// buffers. The buffers must be equally sized and not exceed the
// engine's MaxSamplesPerCycle; violating that is a fatal invariant
// breach.
func (e *Engine) RenderAudio(left, right []float32) {
	n := len(left)
	if pending := e.pendingCycleSize.Swap(0); pending > 0 {
		e.applyCycleSize(int(pending))
	}
	if n != len(right) || n == 0 || n > e.params.MaxSamplesPerCycle {
		panic(fmt.Sprintf("sampler: mis-sized output buffer: left=%d right=%d max=%d",
			len(left), len(right), e.params.MaxSamplesPerCycle))
	}

	e.gen.UpdateFragmentTime(n)

	cfg := e.config.Lock()
	globalVolume := cfg.GlobalVolume
	for i, ch := range e.channels {
		ch.instrument = cfg.Instruments[i]
	}
	e.config.Unlock()

	// Drain driver events into the per-channel queues.
	var ev Event
	for e.input.pop(&ev) {
		e.gen.Resolve(&ev)
		if int(ev.Channel) < len(e.channels) {
			e.channels[ev.Channel].enqueue(ev)
		}
	}

	// Deliver scheduled events that became due within this cycle.
	end := e.gen.SchedTimeAtFragmentEnd()
	for {
		sev, at, ok := e.sched.PopDue(end)
		if !ok {
			break
		}
		pos := 0
		if at > e.gen.TotalSamples() {
			pos = int(at - e.gen.TotalSamples())
		}
		if pos >= n {
			pos = n - 1
		}
		sev.fragmentPos = int32(pos)
		if int(sev.Channel) < len(e.channels) {
			e.channels[sev.Channel].enqueue(sev)
		}
	}

	for i := 0; i < n; i++ {
		left[i] = 0
		right[i] = 0
	}

	for _, ch := range e.channels {
		ch.processEvents()
		ch.render(n, globalVolume)
		if ch.Mute {
			continue
		}
		panL, panR := panGains(ch.Pan)
		gl := ch.Volume * panL
		gr := ch.Volume * panR
		for i := 0; i < n; i++ {
			left[i] += ch.mixL[i] * gl
			right[i] += ch.mixR[i] * gr
		}
	}

	e.gen.FinishFragment()
}

func panGains(pan float32) (float32, float32) {
	if pan <= -1 {
		return 1, 0
	}
	if pan >= 1 {
		return 0, 1
	}
	// Linear channel pan; per-voice pan already applies equal power.
	if pan < 0 {
		return 1, 1 + pan
	}
	return 1 - pan, 1
}

// applyCycleSize is the audio-device-change path: buffers are resized
// and in-flight disk voices recompute their RAM boundary, re-ordering
// their streams when they have not switched to disk yet.
func (e *Engine) applyCycleSize(n int) {
	if n == e.params.MaxSamplesPerCycle {
		return
	}
	e.log.WithField("cycle", n).Info("audio device cycle size changed")
	e.params.MaxSamplesPerCycle = n
	for _, ch := range e.channels {
		ch.mixL = make([]float32, n)
		ch.mixR = make([]float32, n)
	}
	if e.Instruments != nil && n > e.Instruments.maxSamplesPerCycle {
		e.Instruments.maxSamplesPerCycle = n
	}
	for _, v := range e.voices {
		if !v.Active() {
			continue
		}
		peak := (n << e.params.MaxPitchOctaves) + interpolatorTaps + 1
		if peak > v.scratchFrames {
			v.scratch = make([]float32, peak*2)
			v.scratchFrames = peak
		}
		if v.diskVoice && v.state == PlaybackRAM {
			cached := v.sample.cache.frames
			newMax := float64(cached - (n<<e.params.MaxPitchOctaves)/v.sample.Channels)
			if newMax != v.maxRAMPos {
				st := v.stream
				if st == nil {
					st = e.disk.AskForCreatedStream(v.orderID)
				}
				e.disk.OrderStreamReclamation(v.orderID, st)
				v.stream = nil
				v.maxRAMPos = newMax
				doLoop := v.sample.Loops && !v.ramLoop
				if id, ok := e.disk.OrderNewStream(v.sample, int(newMax), doLoop); ok {
					v.orderID = id
					v.orderWaitCycles = 0
				} else {
					v.KillImmediately()
				}
			}
		}
	}
}

// allocVoice returns a free voice slot, stealing one when the pool is
// exhausted: the oldest releasing voice goes first, then the oldest
// overall. Returns nil when stealing could not free a slot either.
func (e *Engine) allocVoice() *Voice {
	if len(e.freeSlots) == 0 {
		e.stealVoice()
	}
	if len(e.freeSlots) == 0 {
		return nil
	}
	slot := e.freeSlots[len(e.freeSlots)-1]
	e.freeSlots = e.freeSlots[:len(e.freeSlots)-1]
	v := e.voices[slot]
	v.leased = true
	return v
}

func (e *Engine) freeVoice(v *Voice) {
	if !v.leased {
		return
	}
	v.leased = false
	e.freeSlots = append(e.freeSlots, v.slot)
}

func (e *Engine) stealVoice() {
	var best *Voice
	bestReleasing := false
	for _, v := range e.voices {
		if !v.Active() {
			continue
		}
		releasing := v.Releasing()
		switch {
		case best == nil:
			best, bestReleasing = v, releasing
		case releasing && !bestReleasing:
			best, bestReleasing = v, true
		case releasing == bestReleasing && v.triggerTime < best.triggerTime:
			best = v
		}
	}
	if best == nil {
		return
	}
	e.log.WithField("key", best.key).Debug("voice stolen")
	ch := e.channels[best.channelIdx]
	best.KillImmediately()
	ch.removeVoice(best)
	e.freeVoice(best)
}

// inputRing is the lock-free MIDI ingress queue. Multiple driver
// goroutines may push concurrently; only the render thread pops.
type inputRing struct {
	buf  []Event
	mask uint64
	head atomic.Uint64 // next slot to claim
	tail atomic.Uint64 // next slot to pop
	full []atomic.Bool // slot published flags
}

func newInputRing(capacity int) *inputRing {
	size := 16
	for size < capacity {
		size <<= 1
	}
	return &inputRing{
		buf:  make([]Event, size),
		mask: uint64(size - 1),
		full: make([]atomic.Bool, size),
	}
}

func (q *inputRing) push(ev Event) bool {
	for {
		head := q.head.Load()
		if head-q.tail.Load() >= uint64(len(q.buf)) {
			return false
		}
		if q.head.CompareAndSwap(head, head+1) {
			idx := head & q.mask
			q.buf[idx] = ev
			q.full[idx].Store(true)
			return true
		}
	}
}

func (q *inputRing) pop(ev *Event) bool {
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return false
	}
	idx := tail & q.mask
	if !q.full[idx].Load() {
		// Claimed but not yet published; treat as empty this cycle.
		return false
	}
	*ev = q.buf[idx]
	q.full[idx].Store(false)
	q.tail.Store(tail + 1)
	return true
}
