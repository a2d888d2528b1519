// Package preset loads JSON instrument definitions into the sampler's
// data model. A definition file may hold several instruments; they are
// addressed by (path, index) like any other instrument file format.
package preset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/algo-sampler/sampler"
)

// File is the JSON schema of an instrument definition file.
type File struct {
	Instruments []InstrumentSpec `json:"instruments"`
}

// InstrumentSpec describes one instrument.
type InstrumentSpec struct {
	Name           string       `json:"name"`
	Attenuation    *float32     `json:"attenuation"`
	PitchBendRange *int         `json:"pitch_bend_range"`
	Regions        []RegionSpec `json:"regions"`
}

// RegionSpec describes one region. Missing range bounds default to the
// full key and velocity range.
type RegionSpec struct {
	Sample string `json:"sample"`

	KeyLow  int `json:"key_low"`
	KeyHigh int `json:"key_high"`
	VelLow  int `json:"vel_low"`
	VelHigh int `json:"vel_high"`

	Controller int `json:"controller"`
	CtlLow     int `json:"ctl_low"`
	CtlHigh    int `json:"ctl_high"`

	Layer          int  `json:"layer"`
	ReleaseTrigger bool `json:"release_trigger"`
	KeyGroup       int  `json:"key_group"`

	UnityNote         int      `json:"unity_note"`
	FineTune          int      `json:"fine_tune"`
	NoPitchTrack      bool     `json:"no_pitch_track"`
	Pan               float32  `json:"pan"`
	SampleStartOffset int      `json:"sample_start_offset"`
	Attenuation       *float32 `json:"attenuation"`

	VelocityResponse string `json:"velocity_response"` // "nonlinear", "linear", "special"
	VelocityDepth    int    `json:"velocity_depth"`

	AttenuationController string         `json:"attenuation_controller"` // "none", "velocity", "cc", "aftertouch"
	AttenuationCC         int            `json:"attenuation_cc"`
	Crossfade             *CrossfadeSpec `json:"crossfade"`
	ReleaseTriggerDecay   int            `json:"release_trigger_decay"`

	Loop *LoopSpec `json:"loop"`

	EG1  *EGSpec  `json:"eg1"`
	EG2  *EGSpec  `json:"eg2"`
	EG3  *EG3Spec `json:"eg3"`
	LFO1 *LFOSpec `json:"lfo1"`
	LFO2 *LFOSpec `json:"lfo2"`
	LFO3 *LFOSpec `json:"lfo3"`

	Filter *FilterSpec `json:"filter"`
}

// LoopSpec defines a sustain loop in frames.
type LoopSpec struct {
	Start     int `json:"start"`
	End       int `json:"end"`
	PlayCount int `json:"play_count"`
}

// EGSpec defines an amplitude or cutoff envelope.
type EGSpec struct {
	PreAttack       float64 `json:"pre_attack"`
	Attack          float64 `json:"attack"`
	Hold            bool    `json:"hold"`
	Decay1          float64 `json:"decay1"`
	Decay2          float64 `json:"decay2"`
	InfiniteSustain bool    `json:"infinite_sustain"`
	Sustain         float64 `json:"sustain"`
	Release         float64 `json:"release"`

	Controller       string `json:"controller"` // "none", "velocity", "cc", "aftertouch"
	ControllerCC     int    `json:"controller_cc"`
	ControllerInvert bool   `json:"controller_invert"`
	AttackInfluence  int    `json:"attack_influence"`
	DecayInfluence   int    `json:"decay_influence"`
	ReleaseInfluence int    `json:"release_influence"`
}

// EG3Spec defines the pitch envelope.
type EG3Spec struct {
	Depth  float64 `json:"depth"` // cents
	Attack float64 `json:"attack"`
}

// LFOSpec defines one oscillator.
type LFOSpec struct {
	Frequency     float64 `json:"frequency"`
	InternalDepth int     `json:"internal_depth"`
	ControlDepth  int     `json:"control_depth"`
	Controller    int     `json:"controller"`
	FlipPhase     bool    `json:"flip_phase"`
}

// FilterSpec defines the voice lowpass.
type FilterSpec struct {
	Enabled             bool    `json:"enabled"`
	CutoffController    int     `json:"cutoff_controller"`
	ResonanceController int     `json:"resonance_controller"`
	StaticResonance     float64 `json:"static_resonance"`
	VelocityScale       int     `json:"velocity_scale"`
	KeyTracking         bool    `json:"key_tracking"`
	KeyBreakpoint       int     `json:"key_breakpoint"`
}

// CrossfadeSpec defines a controller crossfade ramp.
type CrossfadeSpec struct {
	InStart  uint8 `json:"in_start"`
	InEnd    uint8 `json:"in_end"`
	OutStart uint8 `json:"out_start"`
	OutEnd   uint8 `json:"out_end"`
}

// LoadFile parses an instrument definition file.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("%q defines no instruments", path)
	}
	for i := range f.Instruments {
		if err := f.Instruments[i].validate(); err != nil {
			return nil, fmt.Errorf("%q instrument %d: %w", path, i, err)
		}
	}
	return &f, nil
}

func (s *InstrumentSpec) validate() error {
	if len(s.Regions) == 0 {
		return fmt.Errorf("no regions")
	}
	if s.Attenuation != nil && *s.Attenuation < 0 {
		return fmt.Errorf("attenuation must be >= 0")
	}
	for i := range s.Regions {
		r := &s.Regions[i]
		if r.Sample == "" {
			return fmt.Errorf("region %d: no sample path", i)
		}
		if r.KeyLow < 0 || r.KeyHigh > 127 || r.KeyLow > r.KeyHigh && r.KeyHigh != 0 {
			return fmt.Errorf("region %d: invalid key range %d..%d", i, r.KeyLow, r.KeyHigh)
		}
		if r.Pan < -1 || r.Pan > 1 {
			return fmt.Errorf("region %d: pan must be in -1..1", i)
		}
		if r.Loop != nil && r.Loop.End <= r.Loop.Start {
			return fmt.Errorf("region %d: loop end must lie past loop start", i)
		}
		if ctl := r.AttenuationController; ctl != "" && ctl != "none" &&
			ctl != "velocity" && ctl != "cc" && ctl != "aftertouch" {
			return fmt.Errorf("region %d: unknown attenuation controller %q", i, ctl)
		}
	}
	return nil
}

func controllerType(name string) sampler.ControllerType {
	switch name {
	case "velocity":
		return sampler.ControllerVelocity
	case "cc":
		return sampler.ControllerCC
	case "aftertouch":
		return sampler.ControllerAftertouch
	default:
		return sampler.ControllerNone
	}
}

func velocityCurve(name string) sampler.VelocityCurve {
	switch name {
	case "linear":
		return sampler.VelocityCurveLinear
	case "special":
		return sampler.VelocityCurveSpecial
	default:
		return sampler.VelocityCurveNonLinear
	}
}

func egParams(s *EGSpec) sampler.EGParams {
	if s == nil {
		// Instantaneous attack, infinite sustain at full level.
		return sampler.EGParams{Sustain: 1.0, InfiniteSustain: true, Release: 0.05}
	}
	return sampler.EGParams{
		PreAttack:       s.PreAttack,
		Attack:          s.Attack,
		Hold:            s.Hold,
		Decay1:          s.Decay1,
		Decay2:          s.Decay2,
		InfiniteSustain: s.InfiniteSustain,
		Sustain:         s.Sustain,
		Release:         s.Release,
		Controller: sampler.EGController{
			Type:             controllerType(s.Controller),
			Number:           s.ControllerCC,
			Invert:           s.ControllerInvert,
			AttackInfluence:  s.AttackInfluence,
			DecayInfluence:   s.DecayInfluence,
			ReleaseInfluence: s.ReleaseInfluence,
		},
	}
}

func lfoParams(s *LFOSpec) sampler.LFOParams {
	if s == nil {
		return sampler.LFOParams{}
	}
	return sampler.LFOParams{
		Frequency:     s.Frequency,
		InternalDepth: s.InternalDepth,
		ControlDepth:  s.ControlDepth,
		Controller:    s.Controller,
		FlipPhase:     s.FlipPhase,
	}
}
