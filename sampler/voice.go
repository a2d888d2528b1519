package sampler

import (
	"math"

	"github.com/cwbudde/algo-sampler/dsp"
)

// PlaybackState is the source state of a voice.
type PlaybackState uint8

const (
	PlaybackInit PlaybackState = iota
	PlaybackRAM
	PlaybackDisk
	PlaybackEnd
)

// VoiceType distinguishes normally triggered voices from voices
// spawned by a note-off.
type VoiceType uint8

const (
	VoiceNormal VoiceType = iota
	VoiceReleaseTrigger
)

// Filter cutoff range in Hz.
const (
	filterCutoffMin   = 100.0
	filterCutoffMax   = 10000.0
	filterCutoffCoeff = -4.6051701859880914 // ln(min/max)
)

// orderGraceCycles is how many render cycles a disk voice waits for
// its ordered stream before killing itself.
const orderGraceCycles = 2

// Voice renders one sounding note. It exclusively owns its envelope
// and LFO state and shares its Sample and Region with other voices.
type Voice struct {
	engine     *Engine
	channelIdx int
	slot       int
	leased     bool

	active   bool
	typ      VoiceType
	key      int
	velocity int
	keyGroup int

	sample *Sample
	region *Region

	state     PlaybackState
	diskVoice bool

	// pos is the fractional playback position in frames: absolute
	// while reading from the RAM cache, reduced to its fraction while
	// reading from the disk stream.
	pos        float64
	delay      int // start offset within the first render cycle
	maxRAMPos  float64
	ramLoop    bool
	loopsLeft  int

	pitchBase float64
	pitchBend float64
	bendRange int

	volume    float32
	crossfade float32
	panL      float32
	panR      float32

	eg1, eg2 EGADSR
	eg3      EGDecay
	lfo1     LFO
	lfo2     LFO
	lfo3     LFO

	filterEnabled bool
	filterL       dsp.Biquad
	filterR       dsp.Biquad
	cutoffBase    float32 // Hz, velocity and key tracking applied
	cutoffScale   float32 // controller scaling in 0..1
	resonance     float32
	cutoffCtl     int
	resonanceCtl  int
	lastResCtl    int
	lastCutoff    float32
	lastResonance float32

	stream          *Stream
	orderID         uint64
	orderWaitCycles int
	sourceDrained   bool

	killPos int32 // fragment position of a pending kill, -1 = none

	triggerTime uint64 // engine sample time of the note-on

	scratch       []float32 // disk peek buffer
	scratchFrames int
	tmpL, tmpR    []float32 // per-sub-fragment voice output before mixing
}

func newVoice(e *Engine, slot int) *Voice {
	peak := (e.params.MaxSamplesPerCycle << e.params.MaxPitchOctaves) + interpolatorTaps + 1
	return &Voice{
		engine:        e,
		slot:          slot,
		scratch:       make([]float32, peak*2),
		scratchFrames: peak,
		tmpL:          make([]float32, e.params.SubFragmentSize),
		tmpR:          make([]float32, e.params.SubFragmentSize),
		killPos:       -1,
	}
}

// Active reports whether the voice currently occupies its pool slot.
func (v *Voice) Active() bool { return v.active }

// Key returns the MIDI key that triggered the voice.
func (v *Voice) Key() int { return v.key }

// KeyGroup returns the voice's exclusive class, 0 for none.
func (v *Voice) KeyGroup() int { return v.keyGroup }

// State returns the voice's playback state.
func (v *Voice) State() PlaybackState { return v.state }

// Pos returns the playback position in frames, absolute within the
// sample even while streaming from disk.
func (v *Voice) Pos() float64 {
	if v.state == PlaybackDisk && v.stream != nil {
		return float64(v.stream.ReadPosition()) + v.pos
	}
	return v.pos
}

// Releasing reports whether the amplitude envelope is in its release
// or end segment.
func (v *Voice) Releasing() bool {
	st := v.eg1.Stage()
	return st == StageRelease || st == StageEnd
}

// Trigger initializes the voice for a note. A disk stream is ordered
// when the sample exceeds its RAM cache. noteLength (seconds the note
// was held) only matters for release-trigger voices and scales their
// start volume down; triggering fails once that reaches zero.
func (v *Voice) Trigger(ch *Channel, ev *Event, pitchBend int, region *Region, typ VoiceType, keyGroup int, noteLength float64) bool {
	sample := region.Sample
	if sample == nil || sample.Channels == 0 {
		return false
	}

	v.typ = typ
	v.key = int(ev.Key)
	v.velocity = int(ev.Velocity)
	v.keyGroup = keyGroup
	v.channelIdx = ch.index
	v.sample = sample
	v.region = region
	v.state = PlaybackInit
	v.delay = ev.FragmentPos()
	v.pos = float64(region.SampleStartOffset)
	v.killPos = -1
	v.stream = nil
	v.orderID = 0
	v.orderWaitCycles = 0
	v.sourceDrained = false
	v.bendRange = ch.instrumentBendRange()
	v.triggerTime = v.engine.gen.TotalSamples() + uint64(v.delay)

	// Starting crossfade level.
	switch region.AttenuationController {
	case ControllerVelocity:
		v.crossfade = region.CrossfadeAttenuation(ev.Velocity)
	case ControllerCC:
		v.crossfade = region.CrossfadeAttenuation(ch.Controllers[region.AttenuationCC])
	case ControllerAftertouch:
		v.crossfade = region.CrossfadeAttenuation(ch.Controllers[CtlIndexAftertouch])
	default:
		v.crossfade = 1.0
	}

	// Disk or RAM voice.
	cached := sample.cache.frames
	v.diskVoice = cached < sample.Frames
	p := v.engine.params
	if v.diskVoice {
		v.maxRAMPos = float64(cached - (p.MaxSamplesPerCycle<<p.MaxPitchOctaves)/sample.Channels)
		v.ramLoop = sample.Loops && sample.Loop.End <= int(v.maxRAMPos)
		doLoop := sample.Loops && !v.ramLoop
		id, ok := v.engine.disk.OrderNewStream(sample, int(v.maxRAMPos), doLoop)
		if !ok {
			return false
		}
		v.orderID = id
	} else {
		v.maxRAMPos = float64(cached)
		v.ramLoop = sample.Loops
	}
	if v.ramLoop {
		v.loopsLeft = sample.Loop.PlayCount
	}

	// Pitch.
	cents := float64(region.FineTune) + float64(v.engine.ScaleTuning[v.key%12])
	if region.PitchTrack {
		cents += float64(v.key-region.UnityNote) * 100.0
	}
	v.pitchBase = CentsToRatio(cents) * float64(sample.SampleRate) / float64(p.SampleRate)
	v.pitchBend = CentsToRatio(float64(pitchBend) / 8192.0 * float64(v.bendRange))

	// Volume.
	v.volume = region.VelocityAttenuation(v.velocity) / 32768.0 *
		sample.Attenuation * region.Attenuation
	if typ == VoiceReleaseTrigger {
		att := 1.0 - 0.01053*float64(int(256)>>region.ReleaseTriggerDecay)*noteLength
		if att <= 0 {
			return false
		}
		v.volume *= float32(att)
	}

	// Pan (equal power), region only; channel pan applies at mix time.
	angle := float64(clampf(region.Pan, -1, 1)+1) * math.Pi / 4
	v.panL = float32(math.Cos(angle))
	v.panR = float32(math.Sin(angle))

	controlRate := float64(p.SampleRate) / float64(p.SubFragmentSize)

	// Envelope generators.
	v.triggerEG(&v.eg1, &region.EG1, ch, true, sample)
	v.triggerEG(&v.eg2, &region.EG2, ch, false, sample)
	v.eg3.Trigger(CentsToRatio(region.EG3.Depth), region.EG3.Attack, controlRate)

	// LFOs.
	v.lfo1 = NewLFO(RangeUnsigned, 1.0)
	v.lfo1.ExtController = region.LFO1.Controller
	v.lfo1.Trigger(region.LFO1.Frequency, StartLevelMin, region.LFO1.InternalDepth,
		region.LFO1.ControlDepth, ch.Controllers[region.LFO1.Controller], region.LFO1.FlipPhase, controlRate)

	v.lfo2 = NewLFO(RangeUnsigned, 1.0)
	v.lfo2.ExtController = region.LFO2.Controller
	v.lfo2.Trigger(region.LFO2.Frequency, StartLevelMin, region.LFO2.InternalDepth,
		region.LFO2.ControlDepth, ch.Controllers[region.LFO2.Controller], region.LFO2.FlipPhase, controlRate)

	v.lfo3 = NewLFO(RangeSigned, 1200.0)
	v.lfo3.ExtController = region.LFO3.Controller
	v.lfo3.Trigger(region.LFO3.Frequency, StartLevelMid, region.LFO3.InternalDepth,
		region.LFO3.ControlDepth, ch.Controllers[region.LFO3.Controller], region.LFO3.FlipPhase, controlRate)

	// Filter.
	v.filterEnabled = region.Filter.Enabled
	if v.filterEnabled {
		f := &region.Filter
		v.cutoffCtl = f.CutoffController
		v.resonanceCtl = f.ResonanceController

		v.cutoffBase = region.VelocityCutoff(v.velocity)
		if f.KeyTracking {
			v.cutoffBase *= keyTrackRatio(v.key, f.KeyBreakpoint)
		}
		if v.cutoffCtl > 0 {
			v.cutoffScale = float32(ch.Controllers[v.cutoffCtl]) / 127.0
		} else {
			v.cutoffScale = 1.0
		}

		if v.resonanceCtl > 0 {
			v.lastResCtl = int(ch.Controllers[v.resonanceCtl])
			v.resonance = float32(v.lastResCtl) / 127.0
		} else {
			v.resonance = float32(f.StaticResonance)
		}
		if f.KeyTracking {
			v.resonance += float32(v.key-f.KeyBreakpoint) * 0.00787
		}
		v.resonance = clampf(v.resonance, 0, 1)

		cutoff := clampf(v.cutoffBase*v.cutoffScale, filterCutoffMin, filterCutoffMax)
		v.filterL.Reset()
		v.filterR.Reset()
		v.filterL.SetLowpass(cutoff, v.resonance, float32(p.SampleRate))
		v.filterR.SetLowpass(cutoff, v.resonance, float32(p.SampleRate))
		v.lastCutoff = cutoff
		v.lastResonance = v.resonance
	}

	v.active = true
	return true
}

func (v *Voice) triggerEG(eg *EGADSR, ep *EGParams, ch *Channel, holdAllowed bool, sample *Sample) {
	p := v.engine.params
	controlRate := float64(p.SampleRate) / float64(p.SubFragmentSize)

	var ctl float64
	switch ep.Controller.Type {
	case ControllerVelocity:
		ctl = float64(v.velocity)
	case ControllerCC:
		ctl = float64(ch.Controllers[ep.Controller.Number])
	case ControllerAftertouch:
		ctl = float64(ch.Controllers[CtlIndexAftertouch])
	}
	if ep.Controller.Invert {
		ctl = 127 - ctl
	}

	attackInfluence := 1.0
	decayInfluence := 1.0
	releaseInfluence := 1.0
	if ep.Controller.AttackInfluence > 0 {
		attackInfluence = 1.0 + 0.031*float64(int(1)<<ep.Controller.AttackInfluence)*ctl
	}
	if ep.Controller.DecayInfluence > 0 {
		decayInfluence = 1.0 + 0.00775*float64(int(1)<<ep.Controller.DecayInfluence)*ctl
	}
	if ep.Controller.ReleaseInfluence > 0 {
		releaseInfluence = 1.0 + 0.00775*float64(int(1)<<ep.Controller.ReleaseInfluence)*ctl
	}

	hold := holdAllowed && ep.Hold && sample.Loops
	eg.Trigger(ep.PreAttack, ep.Attack*attackInfluence, hold, sample.Loop.Start,
		ep.Decay1*decayInfluence, ep.Decay2*decayInfluence,
		ep.InfiniteSustain, ep.Sustain, ep.Release*releaseInfluence, controlRate)
}

// Kill stamps a pending kill: rendering fades the voice out within the
// sub-fragment containing the kill position, then frees it. Kills that
// do not lie strictly after the voice's own trigger are ignored, so a
// key group conflict never kills its sibling voices of the same
// note-on. Later kills supersede earlier ones. Used for key group
// conflicts; voice stealing uses KillImmediately.
func (v *Voice) Kill(ev *Event) {
	if !v.active {
		return
	}
	killTime := v.engine.gen.TotalSamples() + uint64(ev.FragmentPos())
	if killTime <= v.triggerTime {
		return
	}
	v.killPos = int32(ev.FragmentPos())
	if v.killPos < int32(v.delay) {
		v.killPos = int32(v.delay)
	}
}

// KillImmediately frees the voice without click protection: the disk
// stream (or a still unserviced order) is released, the modulators are
// reset and the pool slot becomes reusable.
func (v *Voice) KillImmediately() {
	if v.diskVoice && (v.stream != nil || v.orderID != 0) {
		if v.stream == nil {
			v.stream = v.engine.disk.AskForCreatedStream(v.orderID)
		}
		v.engine.disk.OrderStreamReclamation(v.orderID, v.stream)
	}
	v.stream = nil
	v.orderID = 0
	v.lfo1.Reset()
	v.lfo2.Reset()
	v.lfo3.Reset()
	v.eg1.Reset()
	v.eg2.Reset()
	v.eg3.Reset()
	v.state = PlaybackEnd
	v.active = false
	v.killPos = -1
}

// Render writes one audio cycle of the voice into the channel mix
// buffers. events is the channel's event list for this cycle, sorted
// by fragment position.
func (v *Voice) Render(n int, events []Event, outL, outR []float32, globalVolume float32) {
	if !v.active {
		return
	}
	if v.state == PlaybackEnd {
		v.KillImmediately()
		return
	}

	sub := v.engine.params.SubFragmentSize
	i := v.delay
	ei := 0
	for ei < len(events) && events[ei].FragmentPos() < v.delay {
		ei++
	}

	for i < n {
		end := i + sub
		if end > n {
			end = n
		}

		for ei < len(events) && events[ei].FragmentPos() < end {
			v.applyEvent(&events[ei])
			ei++
		}

		fade := v.killPos >= 0 && int(v.killPos) < end

		eg1 := v.eg1.Step(v.Pos())
		eg2 := v.eg2.Step(v.Pos())
		eg3 := v.eg3.Step()
		l1 := v.lfo1.Step()
		l2 := v.lfo2.Step()
		l3 := v.lfo3.Step()

		finalVolume := v.volume * v.crossfade * globalVolume * eg1 * (1 - l1)
		finalPitch := v.pitchBase * v.pitchBend * eg3
		if l3 != 0 {
			finalPitch *= float64(centsToRatioFast(l3))
		}
		maxPitch := float64(int(1) << v.engine.params.MaxPitchOctaves)
		if finalPitch > maxPitch {
			finalPitch = maxPitch
		}

		if v.filterEnabled {
			cutoff := clampf(v.cutoffBase*v.cutoffScale*eg2*(1-l2), filterCutoffMin, filterCutoffMax)
			res := clampf(v.resonance, 0, 1)
			if materiallyDifferent(cutoff, v.lastCutoff) || materiallyDifferent(res, v.lastResonance) {
				rate := float32(v.engine.params.SampleRate)
				v.filterL.SetLowpass(cutoff, res, rate)
				v.filterR.SetLowpass(cutoff, res, rate)
				v.lastCutoff = cutoff
				v.lastResonance = res
			}
		}

		v.renderSub(i, end-i, finalVolume, finalPitch, outL, outR, fade)

		i = end

		if fade || v.eg1.Stage() == StageEnd {
			v.KillImmediately()
			return
		}
		if v.state == PlaybackEnd {
			break
		}
	}

	v.delay = 0
	if v.state == PlaybackDisk && v.stream == nil && v.noteDiskStreamMissing() {
		v.KillImmediately()
		return
	}
	if v.state == PlaybackEnd {
		v.KillImmediately()
	}
}

func materiallyDifferent(a, b float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff > 0.01*b+1e-6
}

func (v *Voice) renderSub(start, frames int, vol float32, pitch float64, outL, outR []float32, fade bool) {
	switch v.state {
	case PlaybackInit:
		v.state = PlaybackRAM
		fallthrough
	case PlaybackRAM:
		cache := &v.sample.cache
		v.interpolate(cache.data, cache.frames+cache.silencePad, start, frames, vol, pitch, outL, outR, fade, v.ramLoop)
		if v.diskVoice {
			if v.pos > v.maxRAMPos {
				v.state = PlaybackDisk
			}
		} else if v.pos >= float64(cache.frames) {
			v.state = PlaybackEnd
		}
	case PlaybackDisk:
		v.renderDisk(start, frames, vol, pitch, outL, outR, fade)
	}
}

func (v *Voice) renderDisk(start, frames int, vol float32, pitch float64, outL, outR []float32, fade bool) {
	if v.stream == nil {
		v.stream = v.engine.disk.AskForCreatedStream(v.orderID)
		if v.stream == nil {
			// Not serviced yet; output silence and give the disk
			// thread a bounded number of cycles before giving up.
			return
		}
		skip := int(v.pos) - int(v.maxRAMPos)
		if skip > 0 {
			v.stream.IncrementReadPos(skip)
		}
		v.pos -= math.Floor(v.pos)
	}

	needed := int(float64(frames)*pitch) + interpolatorTaps + 1
	if needed > v.scratchFrames {
		needed = v.scratchFrames
	}

	if v.stream.State() == StreamEnd && v.stream.ReadSpace() < needed {
		v.stream.WriteSilence(needed - v.stream.ReadSpace())
		v.sourceDrained = true
	}

	avail := v.stream.Peek(v.scratch, needed)
	if avail < needed && !v.sourceDrained {
		// Stream underrun: degrade to silence for this sub-fragment
		// without advancing, the disk thread will catch up.
		v.engine.underruns.Add(1)
		return
	}

	v.interpolate(v.scratch, avail, start, frames, vol, pitch, outL, outR, fade, false)

	consumed := int(v.pos)
	if consumed > 0 {
		v.stream.IncrementReadPos(consumed)
		v.pos -= float64(consumed)
	}

	if v.sourceDrained {
		v.state = PlaybackEnd
	}
}

// noteDiskStreamMissing is called once per cycle while the voice waits
// for its ordered stream; past the grace period the voice kills
// itself.
func (v *Voice) noteDiskStreamMissing() bool {
	v.orderWaitCycles++
	return v.orderWaitCycles >= orderGraceCycles
}

func (v *Voice) interpolate(src []float32, srcFrames int, start, frames int, vol float32, pitch float64, outL, outR []float32, fade bool, loop bool) {
	ch := v.sample.Channels
	interp := pitch > 1+oneCentTolerance || pitch < 1-oneCentTolerance
	loopEnd := float64(v.sample.Loop.End)
	loopStart := float64(v.sample.Loop.Start)
	loopLen := loopEnd - loopStart

	for k := 0; k < frames; k++ {
		ipos := int(v.pos)
		if ipos >= srcFrames-1 {
			// Past the last readable frame; remaining output stays
			// silent and the caller's state logic finishes the voice.
			v.tmpL[k] = 0
			v.tmpR[k] = 0
			continue
		}
		frac := float32(v.pos - float64(ipos))
		base := ipos * ch

		var sL, sR float32
		if ch == 2 {
			if interp || frac > 0 {
				sL = src[base] + frac*(src[base+2]-src[base])
				sR = src[base+1] + frac*(src[base+3]-src[base+1])
			} else {
				sL = src[base]
				sR = src[base+1]
			}
		} else {
			var s float32
			if interp || frac > 0 {
				s = src[base] + frac*(src[base+1]-src[base])
			} else {
				s = src[base]
			}
			sL, sR = s, s
		}

		g := vol
		if fade {
			g *= float32(frames-k) / float32(frames)
		}
		v.tmpL[k] = sL * g * v.panL
		v.tmpR[k] = sR * g * v.panR

		v.pos += pitch
		if loop && v.pos >= loopEnd && loopLen > 0 {
			if v.loopsLeft > 0 {
				v.loopsLeft--
				if v.loopsLeft == 0 {
					v.ramLoop = false
					loop = false
					continue
				}
			}
			v.pos = loopStart + math.Mod(v.pos-loopEnd, loopLen)
		}
	}

	if v.filterEnabled {
		for k := 0; k < frames; k++ {
			v.tmpL[k] = v.filterL.Process(v.tmpL[k])
			v.tmpR[k] = v.filterR.Process(v.tmpR[k])
		}
	}

	for k := 0; k < frames; k++ {
		outL[start+k] += v.tmpL[k]
		outR[start+k] += v.tmpR[k]
	}
}

func (v *Voice) applyEvent(ev *Event) {
	switch ev.Type {
	case EventRelease:
		if int(ev.Key) == v.key {
			v.eg1.Release()
			v.eg2.Release()
		}
	case EventCancelRelease:
		if int(ev.Key) == v.key {
			v.eg1.CancelRelease()
			v.eg2.CancelRelease()
		}
	case EventPitchBend:
		v.pitchBend = CentsToRatio(float64(ev.Pitch) / 8192.0 * float64(v.bendRange))
	case EventControlChange:
		cc := int(ev.Controller)
		if v.filterEnabled {
			if cc == v.cutoffCtl {
				v.cutoffScale = float32(ev.Value) / 127.0
			}
			if cc == v.resonanceCtl {
				// Resonance tracks the controller differentially.
				v.resonance += float32(int(ev.Value)-v.lastResCtl) * 0.00787
				v.resonance = clampf(v.resonance, 0, 1)
				v.lastResCtl = int(ev.Value)
			}
		}
		if cc != 0 && cc == v.lfo1.ExtController {
			v.lfo1.Update(ev.Value)
		}
		if cc != 0 && cc == v.lfo2.ExtController {
			v.lfo2.Update(ev.Value)
		}
		if cc != 0 && cc == v.lfo3.ExtController {
			v.lfo3.Update(ev.Value)
		}
		if v.region.AttenuationController == ControllerCC && cc == v.region.AttenuationCC {
			v.crossfade = v.region.CrossfadeAttenuation(ev.Value)
		}
	}
}
