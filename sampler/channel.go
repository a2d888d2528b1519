package sampler

import "sort"

// CCSustainPedal is the MIDI controller number of the sustain pedal.
const CCSustainPedal = 64

// keyInfo tracks the per-key state of a channel's MIDI key table.
type keyInfo struct {
	voices          []int // voice pool slots sounding for this key
	noteOnTime      uint64
	velocity        uint8
	keyPressed      bool
	deferredNoteOff bool // note-off arrived while the sustain pedal was down
}

// Channel owns one MIDI channel: its key table, controller table,
// per-cycle event routing and the stereo mix buffer its voices render
// into. All channel state is mutated only by the real-time thread.
type Channel struct {
	engine *Engine
	index  int

	keys        [128]keyInfo
	Controllers ControllerTable

	pitchBend int16
	sustain   bool

	Volume float32
	Pan    float32
	Mute   bool

	instrument *Instrument

	// events is the raw event list for the current cycle; voiceEvents
	// is the transformed list the voices consume.
	events      []Event
	voiceEvents []Event

	regionScratch []*Region

	mixL, mixR []float32

	voiceCount int
}

func newChannel(e *Engine, index int) *Channel {
	ch := &Channel{
		engine:        e,
		index:         index,
		Volume:        1.0,
		events:        make([]Event, 0, e.params.EventQueueSize),
		voiceEvents:   make([]Event, 0, e.params.EventQueueSize),
		regionScratch: make([]*Region, 0, 8),
		mixL:          make([]float32, e.params.MaxSamplesPerCycle),
		mixR:          make([]float32, e.params.MaxSamplesPerCycle),
	}
	for k := range ch.keys {
		ch.keys[k].voices = make([]int, 0, 8)
	}
	return ch
}

// Index returns the channel's position within the engine.
func (ch *Channel) Index() int { return ch.index }

// Instrument returns the currently assigned instrument, nil when the
// channel is unassigned.
func (ch *Channel) Instrument() *Instrument { return ch.instrument }

// VoiceCount returns the number of voices the channel currently holds.
func (ch *Channel) VoiceCount() int { return ch.voiceCount }

func (ch *Channel) instrumentBendRange() int {
	if ch.instrument == nil {
		return 200
	}
	return ch.instrument.PitchBendRange
}

func (ch *Channel) enqueue(ev Event) {
	ch.events = append(ch.events, ev)
}

// processEvents walks this cycle's raw events in fragment order,
// updating channel state, launching and killing voices, and building
// the transformed event list the voices consume while rendering.
func (ch *Channel) processEvents() {
	sort.SliceStable(ch.events, func(i, j int) bool {
		if ch.events[i].fragmentPos != ch.events[j].fragmentPos {
			return ch.events[i].fragmentPos < ch.events[j].fragmentPos
		}
		return ch.events[i].seq < ch.events[j].seq
	})

	ch.voiceEvents = ch.voiceEvents[:0]
	for i := range ch.events {
		ev := &ch.events[i]
		switch ev.Type {
		case EventNoteOn:
			ch.handleNoteOn(ev)
		case EventNoteOff:
			ch.handleNoteOff(ev)
		case EventControlChange:
			ch.handleControlChange(ev)
		case EventPitchBend:
			ch.pitchBend = ev.Pitch
			ch.forward(*ev)
		case EventChannelPressure:
			ch.Controllers[CtlIndexAftertouch] = ev.Value
			ch.forward(*ev)
		case EventRelease, EventCancelRelease, EventNotePressure, EventSysex:
			ch.forward(*ev)
		}
	}
	ch.events = ch.events[:0]
}

func (ch *Channel) forward(ev Event) {
	ch.voiceEvents = append(ch.voiceEvents, ev)
}

func (ch *Channel) handleNoteOn(ev *Event) {
	if ch.instrument == nil || ev.Key > 127 {
		return
	}
	key := &ch.keys[ev.Key]
	key.keyPressed = true
	key.velocity = ev.Velocity
	key.noteOnTime = ch.engine.gen.TotalSamples() + uint64(ev.FragmentPos())

	if key.deferredNoteOff {
		// A note-on during sustain-down revives the still sounding
		// voices instead of letting the deferred note-off release them.
		key.deferredNoteOff = false
		cancel := *ev
		cancel.Type = EventCancelRelease
		ch.forward(cancel)
	}

	ch.triggerRegions(ev, false, 0)
}

func (ch *Channel) handleNoteOff(ev *Event) {
	if ev.Key > 127 {
		return
	}
	key := &ch.keys[ev.Key]
	if ch.sustain && key.keyPressed {
		key.deferredNoteOff = true
		return
	}
	ch.releaseKey(ev)
}

// releaseKey converts a note-off into a release event for the key's
// voices and spawns the instrument's release-trigger voices.
func (ch *Channel) releaseKey(ev *Event) {
	key := &ch.keys[ev.Key]
	key.keyPressed = false
	key.deferredNoteOff = false

	rel := *ev
	rel.Type = EventRelease
	ch.forward(rel)

	if ch.instrument == nil {
		return
	}
	now := ch.engine.gen.TotalSamples() + uint64(ev.FragmentPos())
	noteLength := float64(now-key.noteOnTime) / float64(ch.engine.params.SampleRate)
	relEv := *ev
	relEv.Velocity = key.velocity
	ch.triggerRegions(&relEv, true, noteLength)
}

func (ch *Channel) handleControlChange(ev *Event) {
	cc := int(ev.Controller)
	if cc < 0 || cc > 127 {
		return
	}
	old := ch.Controllers[cc]
	ch.Controllers[cc] = ev.Value

	if cc == CCSustainPedal {
		down := ev.Value >= 64
		if down && !ch.sustain {
			ch.sustain = true
			ch.cancelReleases(ev)
		} else if !down && ch.sustain {
			ch.sustain = false
			ch.releaseDeferred(ev)
		}
	}

	ch.forward(*ev)

	// Regions triggered by controller movement.
	if ch.instrument != nil && old != ev.Value {
		ch.regionScratch = ch.instrument.RegionsForController(ch.regionScratch[:0], cc, int(ev.Value))
		for _, r := range ch.regionScratch {
			trig := *ev
			trig.Key = uint8(r.KeyLow)
			trig.Velocity = ev.Value
			ch.launchVoice(&trig, r, VoiceNormal, 0)
		}
	}
}

// cancelReleases lets keys that are still pressed snap out of their
// release segment when the sustain pedal goes down.
func (ch *Channel) cancelReleases(ev *Event) {
	for k := range ch.keys {
		if ch.keys[k].keyPressed {
			cancel := *ev
			cancel.Type = EventCancelRelease
			cancel.Key = uint8(k)
			ch.forward(cancel)
		}
	}
}

// releaseDeferred transforms all sustained note-offs into releases
// simultaneously when the sustain pedal goes up.
func (ch *Channel) releaseDeferred(ev *Event) {
	for k := range ch.keys {
		if ch.keys[k].deferredNoteOff {
			rel := *ev
			rel.Key = uint8(k)
			ch.releaseKey(&rel)
		}
	}
}

func (ch *Channel) triggerRegions(ev *Event, release bool, noteLength float64) {
	ch.regionScratch = ch.instrument.RegionsForNoteOn(
		ch.regionScratch[:0], int(ev.Key), int(ev.Velocity), &ch.Controllers, release)
	if len(ch.regionScratch) == 0 {
		return
	}

	for _, r := range ch.regionScratch {
		typ := VoiceNormal
		if release {
			typ = VoiceReleaseTrigger
		}
		if r.KeyGroup != 0 && !release {
			ch.HandleKeyGroupConflicts(r.KeyGroup, ev)
		}
		ch.launchVoice(ev, r, typ, noteLength)
	}
}

func (ch *Channel) launchVoice(ev *Event, r *Region, typ VoiceType, noteLength float64) {
	if ch.voiceCount >= ch.engine.params.MaxVoicesPerChannel {
		return
	}
	v := ch.engine.allocVoice()
	if v == nil {
		return
	}
	if !v.Trigger(ch, ev, int(ch.pitchBend), r, typ, r.KeyGroup, noteLength) {
		ch.engine.freeVoice(v)
		return
	}
	ch.keys[ev.Key].voices = append(ch.keys[ev.Key].voices, v.slot)
	ch.voiceCount++
}

// HandleKeyGroupConflicts enqueues a kill on every active voice of the
// channel sharing the given non-zero key group, so at most one voice
// per exclusive class keeps sounding.
func (ch *Channel) HandleKeyGroupConflicts(keyGroup int, ev *Event) {
	if keyGroup == 0 {
		return
	}
	for k := range ch.keys {
		for _, slot := range ch.keys[k].voices {
			v := ch.engine.voices[slot]
			if v.Active() && v.channelIdx == ch.index && v.KeyGroup() == keyGroup {
				v.Kill(ev)
			}
		}
	}
}

// removeVoice drops a voice slot from the key table, used when the
// engine steals a voice outside the normal render reaping.
func (ch *Channel) removeVoice(v *Voice) {
	if v.key < 0 || v.key > 127 {
		return
	}
	key := &ch.keys[v.key]
	for i, slot := range key.voices {
		if slot == v.slot {
			key.voices = append(key.voices[:i], key.voices[i+1:]...)
			ch.voiceCount--
			return
		}
	}
}

// render runs all voices of the channel for this cycle and reaps the
// ones that finished.
func (ch *Channel) render(n int, globalVolume float32) {
	for i := 0; i < n; i++ {
		ch.mixL[i] = 0
		ch.mixR[i] = 0
	}
	for k := range ch.keys {
		key := &ch.keys[k]
		if len(key.voices) == 0 {
			continue
		}
		live := key.voices[:0]
		for _, slot := range key.voices {
			v := ch.engine.voices[slot]
			if v.Active() {
				v.Render(n, ch.voiceEvents, ch.mixL, ch.mixR, globalVolume)
			}
			if v.Active() {
				live = append(live, slot)
			} else {
				ch.engine.freeVoice(v)
				ch.voiceCount--
			}
		}
		key.voices = live
	}
}
