package sampler

import (
	"fmt"
	"math"
)

// ControllerType selects where a modulation amount is taken from.
type ControllerType uint8

const (
	ControllerNone ControllerType = iota
	ControllerVelocity
	ControllerAftertouch
	ControllerCC
)

// EGController binds an envelope generator to its influence source.
type EGController struct {
	Type   ControllerType
	Number int // CC number when Type == ControllerCC
	Invert bool

	// Influence exponents; 0 disables the respective influence.
	AttackInfluence  int
	DecayInfluence   int
	ReleaseInfluence int
}

// EGParams parameterises one ADSR envelope generator.
type EGParams struct {
	PreAttack       float64 // start level 0..1
	Attack          float64 // seconds
	Hold            bool    // hold peak until the sample loop start is reached
	Decay1          float64 // seconds, linear toward sustain
	Decay2          float64 // seconds, exponential from sustain toward zero
	InfiniteSustain bool
	Sustain         float64 // 0..1
	Release         float64 // seconds
	Controller      EGController
}

// EG3Params parameterises the pitch decay envelope.
type EG3Params struct {
	Depth  float64 // cents at trigger, decaying to zero
	Attack float64 // seconds
}

// LFOParams parameterises one low frequency oscillator.
type LFOParams struct {
	Frequency     float64 // Hz
	InternalDepth int     // 0..1200
	ControlDepth  int     // 0..1200
	Controller    int     // CC number driving the depth, 0 = none
	FlipPhase     bool
}

// FilterParams parameterises the per-voice lowpass.
type FilterParams struct {
	Enabled             bool
	CutoffController    int // CC number, 0 = velocity-derived static cutoff
	ResonanceController int // CC number, 0 = static resonance
	StaticResonance     float64 // 0..1, used when ResonanceController == 0
	VelocityScale       int     // 0..127, shapes the velocity->cutoff curve
	KeyTracking         bool
	KeyBreakpoint       int // MIDI key where tracking is neutral
}

// VelocityCurve selects the velocity->attenuation response shape.
type VelocityCurve uint8

const (
	VelocityCurveNonLinear VelocityCurve = iota
	VelocityCurveLinear
	VelocityCurveSpecial
)

// Crossfade describes a controller-driven attenuation ramp: silence
// below InStart, full level between InEnd and OutStart, silence above
// OutEnd. A zero value disables crossfading.
type Crossfade struct {
	InStart  uint8
	InEnd    uint8
	OutStart uint8
	OutEnd   uint8
}

func (x Crossfade) enabled() bool {
	return x.InStart != 0 || x.InEnd != 0 || x.OutStart != 0 || x.OutEnd != 0
}

// Region is a static parameter set selected by a MIDI event's
// dimensional coordinates. Immutable; owned by its Instrument.
type Region struct {
	Sample *Sample

	// Selection dimensions.
	KeyLow, KeyHigh int
	VelLow, VelHigh int
	Controller      int // CC number; region also triggers on this controller
	CtlLow, CtlHigh int
	Layer           int
	ReleaseTrigger  bool // region sounds on note-off instead of note-on
	KeyGroup        int  // exclusive class, 0 = no group

	// Articulation.
	UnityNote         int
	FineTune          int // cents
	PitchTrack        bool
	Pan               float32 // -1..+1
	SampleStartOffset int
	Attenuation       float32 // linear gain on top of the sample's

	VelocityResponse VelocityCurve
	VelocityDepth    int // 0..4, steeper curves for higher depths

	AttenuationController  ControllerType
	AttenuationCC          int
	CrossfadeCurve         Crossfade
	ReleaseTriggerDecay    int // 0..8, note-length attenuation rate for release voices

	EG1  EGParams
	EG2  EGParams
	EG3  EG3Params
	LFO1 LFOParams
	LFO2 LFOParams
	LFO3 LFOParams

	Filter FilterParams

	velocityTable [128]float32 // attenuation in int16 scale, built on finalize
}

// VelocityAttenuation returns the velocity attenuation for the region
// in the int16 value scale (0..32768), matching the sample data range
// before the 1/32768 downscale to DSP range.
func (r *Region) VelocityAttenuation(velocity int) float32 {
	if velocity < 0 {
		velocity = 0
	} else if velocity > 127 {
		velocity = 127
	}
	return r.velocityTable[velocity]
}

// CrossfadeAttenuation maps a controller value through the region's
// crossfade ramp to a 0..1 gain.
func (r *Region) CrossfadeAttenuation(value uint8) float32 {
	x := r.CrossfadeCurve
	if !x.enabled() {
		return 1.0
	}
	switch {
	case value < x.InStart:
		return 0.0
	case value < x.InEnd:
		return float32(value-x.InStart) / float32(x.InEnd-x.InStart)
	case value <= x.OutStart:
		return 1.0
	case value < x.OutEnd:
		return 1.0 - float32(value-x.OutStart)/float32(x.OutEnd-x.OutStart)
	default:
		return 0.0
	}
}

// VelocityCutoff returns the velocity-derived filter cutoff in Hz. It
// is the voice's base cutoff; an assigned cutoff controller scales it.
func (r *Region) VelocityCutoff(velocity int) float32 {
	scale := float64(r.Filter.VelocityScale)
	if scale == 0 {
		scale = 127
	}
	e := float64(127-velocity) * scale * 6.2e-5 * filterCutoffCoeff
	return float32(math.Exp(e)) * filterCutoffMax
}

func (r *Region) finalize() {
	for v := 0; v < 128; v++ {
		var a float64
		n := float64(v) / 127.0
		switch r.VelocityResponse {
		case VelocityCurveLinear:
			a = n
		case VelocityCurveSpecial:
			a = math.Sqrt(n)
		default:
			gamma := 1.0 + 0.5*float64(r.VelocityDepth)
			a = math.Pow(n, gamma)
		}
		r.velocityTable[v] = float32(a * 32768.0)
	}
}

func (r *Region) matchesNoteOn(key, velocity int, ctl *ControllerTable) bool {
	if key < r.KeyLow || key > r.KeyHigh {
		return false
	}
	if velocity < r.VelLow || velocity > r.VelHigh {
		return false
	}
	if r.Controller > 0 && ctl != nil {
		v := int(ctl[r.Controller])
		if v < r.CtlLow || v > r.CtlHigh {
			return false
		}
	}
	return true
}

// Instrument is an indexed collection of regions plus the per-key and
// per-controller lookup lists. Immutable once loaded; owned by the
// resource manager.
type Instrument struct {
	Name           string
	Attenuation    float32 // global linear gain
	PitchBendRange int     // cents for full wheel deflection

	Regions []*Region

	perKey [128][]*Region
	perCtl map[int][]*Region
}

// Finalize validates the region set and builds the lookup structures.
// Must be called once after the regions are populated and before the
// instrument is shared.
func (ins *Instrument) Finalize() error {
	if ins.Attenuation == 0 {
		ins.Attenuation = 1.0
	}
	if ins.PitchBendRange == 0 {
		ins.PitchBendRange = 200
	}
	ins.perCtl = make(map[int][]*Region)
	for i := range ins.perKey {
		ins.perKey[i] = nil
	}
	for i, r := range ins.Regions {
		if r.Sample == nil {
			return fmt.Errorf("instrument %q: region %d has no sample", ins.Name, i)
		}
		if r.KeyHigh == 0 {
			r.KeyHigh = 127
		}
		if r.KeyLow < 0 || r.KeyHigh > 127 || r.KeyLow > r.KeyHigh {
			return fmt.Errorf("instrument %q: region %d has invalid key range %d..%d",
				ins.Name, i, r.KeyLow, r.KeyHigh)
		}
		if r.VelHigh == 0 {
			r.VelHigh = 127
		}
		if r.Attenuation == 0 {
			r.Attenuation = 1.0
		}
		r.finalize()
		for k := r.KeyLow; k <= r.KeyHigh; k++ {
			ins.perKey[k] = append(ins.perKey[k], r)
		}
		if r.Controller > 0 {
			ins.perCtl[r.Controller] = append(ins.perCtl[r.Controller], r)
		}
	}
	return nil
}

// RegionsForNoteOn collects into dst all regions sounding for the
// given note-on coordinates: layered regions included, release-trigger
// regions selected when release is true. dst is reused by the caller
// to keep the render path allocation free.
func (ins *Instrument) RegionsForNoteOn(dst []*Region, key, velocity int, ctl *ControllerTable, release bool) []*Region {
	if key < 0 || key > 127 {
		return dst
	}
	for _, r := range ins.perKey[key] {
		if r.ReleaseTrigger != release {
			continue
		}
		if r.matchesNoteOn(key, velocity, ctl) {
			dst = append(dst, r)
		}
	}
	return dst
}

// RegionsForController collects into dst the regions triggered by
// movement of the given controller into their configured value range.
func (ins *Instrument) RegionsForController(dst []*Region, cc, value int) []*Region {
	for _, r := range ins.perCtl[cc] {
		if value >= r.CtlLow && value <= r.CtlHigh {
			dst = append(dst, r)
		}
	}
	return dst
}
