package sampler

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-sampler/resource"
)

// InstrumentID identifies an instrument inside an instrument file.
type InstrumentID struct {
	Path  string
	Index int
}

// InstrumentLoader is the pure decoder boundary: it parses an
// instrument file into the engine's data model and prepares the sample
// caches. The engine never interprets file bytes itself.
type InstrumentLoader interface {
	// Load parses the instrument and caches its samples, reporting
	// fractional progress in 0..1.
	Load(id InstrumentID, progress func(float32)) (*Instrument, error)
	// Unload releases everything Load acquired.
	Unload(id InstrumentID, ins *Instrument)
	// EnsureCached re-extends sample caches when an audio device with
	// a larger cycle than previously seen borrows the instrument.
	EnsureCached(ins *Instrument, maxSamplesPerCycle int) error
}

// InstrumentManager is the reference-counted instrument cache shared
// by all channels of an engine. A consumer holds at most one
// instrument at a time: borrowing a different one first releases the
// old borrow.
type InstrumentManager struct {
	mgr                *resource.Manager[InstrumentID, *Instrument]
	loader             InstrumentLoader
	maxSamplesPerCycle int

	mu   sync.Mutex
	held map[resource.Consumer]InstrumentID

	log *logrus.Entry
}

type instrumentHooks struct {
	im *InstrumentManager
}

func (h instrumentHooks) Create(id InstrumentID, _ resource.Consumer, progress func(float32)) (*Instrument, error) {
	h.im.log.WithField("path", id.Path).WithField("index", id.Index).Info("loading instrument")
	ins, err := h.im.loader.Load(id, progress)
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func (h instrumentHooks) Destroy(id InstrumentID, ins *Instrument) {
	h.im.log.WithField("path", id.Path).WithField("index", id.Index).Info("freeing instrument")
	h.im.loader.Unload(id, ins)
}

func (h instrumentHooks) OnBorrow(id InstrumentID, ins *Instrument, _ resource.Consumer) {
	if err := h.im.loader.EnsureCached(ins, h.im.maxSamplesPerCycle); err != nil {
		h.im.log.WithField("path", id.Path).WithError(err).Warn("cache re-extension failed")
	}
}

// NewInstrumentManager creates an instrument manager on top of the
// given loader.
func NewInstrumentManager(loader InstrumentLoader, maxSamplesPerCycle int, logger *logrus.Logger) *InstrumentManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	im := &InstrumentManager{
		loader:             loader,
		maxSamplesPerCycle: maxSamplesPerCycle,
		held:               make(map[resource.Consumer]InstrumentID),
		log:                logger.WithField("component", "instruments"),
	}
	im.mgr = resource.NewManager[InstrumentID, *Instrument](instrumentHooks{im: im})
	return im
}

// Borrow loads (or reuses) the instrument and adds one reference for
// the consumer. A consumer switching to a different instrument
// releases its previous borrow first.
func (im *InstrumentManager) Borrow(id InstrumentID, consumer resource.Consumer) (*Instrument, error) {
	im.mu.Lock()
	if prev, ok := im.held[consumer]; ok && prev != id {
		im.mu.Unlock()
		im.HandBackAll(consumer)
		im.mu.Lock()
	}
	im.mu.Unlock()

	ins, err := im.mgr.Borrow(id, consumer)
	if err != nil {
		return nil, err
	}
	im.mu.Lock()
	im.held[consumer] = id
	im.mu.Unlock()
	return ins, nil
}

// HandBack releases one reference the consumer holds.
func (im *InstrumentManager) HandBack(consumer resource.Consumer) {
	im.mu.Lock()
	id, ok := im.held[consumer]
	im.mu.Unlock()
	if !ok {
		return
	}
	if remaining := im.mgr.HandBack(id, consumer); remaining == 0 {
		im.mu.Lock()
		delete(im.held, consumer)
		im.mu.Unlock()
	}
}

// HandBackAll releases every reference the consumer holds.
func (im *InstrumentManager) HandBackAll(consumer resource.Consumer) {
	im.mu.Lock()
	id, ok := im.held[consumer]
	im.mu.Unlock()
	if !ok {
		return
	}
	for im.mgr.HandBack(id, consumer) > 0 {
	}
	im.mu.Lock()
	delete(im.held, consumer)
	im.mu.Unlock()
}

// SetMode changes the availability mode of an instrument.
func (im *InstrumentManager) SetMode(id InstrumentID, mode resource.Mode) {
	im.mgr.SetMode(id, mode)
}

// Mode returns the availability mode of an instrument.
func (im *InstrumentManager) Mode(id InstrumentID) resource.Mode {
	return im.mgr.ModeOf(id)
}

// RefCount returns the outstanding borrow count for an instrument.
func (im *InstrumentManager) RefCount(id InstrumentID) int {
	return im.mgr.RefCount(id)
}

// Instruments lists the currently loaded instrument IDs.
func (im *InstrumentManager) Instruments() []InstrumentID {
	return im.mgr.Keys()
}

// Clear frees all instruments. Intended for engine shutdown.
func (im *InstrumentManager) Clear() {
	im.mgr.Clear()
	im.mu.Lock()
	im.held = make(map[resource.Consumer]InstrumentID)
	im.mu.Unlock()
}
