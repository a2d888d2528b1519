package sampler

import "time"

// EventType identifies a MIDI or internally transformed event.
type EventType uint8

const (
	EventNoteOn EventType = iota
	EventNoteOff
	EventPitchBend
	EventControlChange
	EventSysex
	EventCancelRelease // transformed from a note-on or sustain-pedal-down event
	EventRelease       // transformed from a note-off or sustain-pedal-up event
	EventChannelPressure
	EventNotePressure
)

// CtlIndexAftertouch is the controller table slot reserved for channel
// aftertouch.
const CtlIndexAftertouch = 128

// ControllerTable holds the last seen value per MIDI controller plus
// the channel aftertouch slot.
type ControllerTable [129]uint8

// Event is a time-stamped MIDI event routed through the engine. An
// event should only be created through an EventGenerator so its
// fragment position can be resolved.
type Event struct {
	Type    EventType
	Channel uint8

	Key      uint8
	Velocity uint8

	Controller uint8
	Value      uint8

	Pitch int16 // pitch bend value, -8192..8191

	Sysex []byte

	Time time.Time // monotonic timestamp from the driver

	fragmentPos int32 // sample offset into the current cycle; -1 = unresolved
	seq         uint64
}

// FragmentPos returns the event's sample offset into the current audio
// cycle. Valid only after the engine resolved the event for a cycle.
func (e *Event) FragmentPos() int { return int(e.fragmentPos) }

// EventGenerator creates events and resolves the position in the
// current audio fragment each event belongs to. The scheduler time it
// maintains runs for the whole engine lifetime; at 96 kHz a uint64
// sample counter does not wrap for millions of years, so schedule
// times are unique in practice.
type EventGenerator struct {
	sampleRate       int
	samplesToProcess int
	fragBegin        time.Time
	sampleRatio      float64 // samples per second of wall time across this fragment
	totalSamples     uint64
	seq              uint64
}

// NewEventGenerator creates an event generator for the given output
// sample rate.
func NewEventGenerator(sampleRate int) *EventGenerator {
	return &EventGenerator{
		sampleRate:  sampleRate,
		sampleRatio: float64(sampleRate),
	}
}

// UpdateFragmentTime opens a new audio fragment of the given length.
// Called once at the start of every render cycle.
func (g *EventGenerator) UpdateFragmentTime(samplesToProcess int) {
	g.fragBegin = time.Now()
	g.samplesToProcess = samplesToProcess
	g.sampleRatio = float64(g.sampleRate)
}

// FinishFragment closes the current fragment and advances the total
// sample counter. Called once at the end of every render cycle.
func (g *EventGenerator) FinishFragment() {
	g.totalSamples += uint64(g.samplesToProcess)
}

// TotalSamples returns the amount of sample points processed since the
// generator was created.
func (g *EventGenerator) TotalSamples() uint64 { return g.totalSamples }

// SchedTimeAtFragmentEnd returns the scheduler time of the first
// sample point of the next fragment.
func (g *EventGenerator) SchedTimeAtFragmentEnd() uint64 {
	return g.totalSamples + uint64(g.samplesToProcess)
}

// CreateEvent returns an event stamped with the current time.
func (g *EventGenerator) CreateEvent() Event {
	g.seq++
	return Event{Time: time.Now(), fragmentPos: -1, seq: g.seq}
}

// CreateEventAt returns an event pinned to a fragment position.
func (g *EventGenerator) CreateEventAt(fragmentPos int) Event {
	g.seq++
	return Event{fragmentPos: int32(fragmentPos), seq: g.seq}
}

// Resolve computes the event's fragment position from its timestamp
// and clamps it into the current fragment. Events that arrived before
// the fragment began land on position 0; events resolved past the end
// land on the last frame.
func (g *EventGenerator) Resolve(ev *Event) {
	if ev.fragmentPos >= 0 {
		if int(ev.fragmentPos) >= g.samplesToProcess {
			ev.fragmentPos = int32(g.samplesToProcess - 1)
		}
		return
	}
	pos := int32(ev.Time.Sub(g.fragBegin).Seconds() * g.sampleRatio)
	if pos < 0 {
		pos = 0
	}
	if int(pos) >= g.samplesToProcess {
		pos = int32(g.samplesToProcess - 1)
	}
	ev.fragmentPos = pos
	if ev.seq == 0 {
		g.seq++
		ev.seq = g.seq
	}
}
