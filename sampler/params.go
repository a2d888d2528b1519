package sampler

import (
	"fmt"
	"time"
)

// Params holds all engine construction parameters.
type Params struct {
	SampleRate          int
	MaxSamplesPerCycle  int // largest audio fragment the host may request
	Channels            int // number of engine (MIDI) channels
	MaxVoices           int // global polyphony
	MaxVoicesPerChannel int
	SubFragmentSize     int // power of two; modulator control period in samples
	PreloadFrames       int // frames cached in RAM per sample before streaming kicks in
	MaxPitchOctaves     int // maximum upward pitch shift the sampler kernel may apply

	StreamPoolSize        int
	StreamRingFrames      int // per-stream ring size in frames, rounded to a power of two
	StreamRefillThreshold int // refill a stream once this many frames are writable
	StreamRefillInterval  time.Duration

	EventQueueSize int // capacity of the lock-free MIDI ingress ring

	GlobalVolume float32
}

// NewDefaultParams creates default engine parameters.
func NewDefaultParams() *Params {
	return &Params{
		SampleRate:            48000,
		MaxSamplesPerCycle:    128,
		Channels:              16,
		MaxVoices:             64,
		MaxVoicesPerChannel:   64,
		SubFragmentSize:       32,
		PreloadFrames:         32768,
		MaxPitchOctaves:       4,
		StreamPoolSize:        90,
		StreamRingFrames:      32768,
		StreamRefillThreshold: 4096,
		StreamRefillInterval:  time.Millisecond,
		EventQueueSize:        1024,
		GlobalVolume:          1.0,
	}
}

// Validate reports the first construction parameter an engine cannot
// work with.
func (p *Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", p.SampleRate)
	}
	if p.MaxSamplesPerCycle <= 0 {
		return fmt.Errorf("max samples per cycle must be > 0, got %d", p.MaxSamplesPerCycle)
	}
	if p.Channels < 1 || p.Channels > 16 {
		return fmt.Errorf("channels must be in 1..16, got %d", p.Channels)
	}
	if p.MaxVoices < 1 {
		return fmt.Errorf("max voices must be >= 1, got %d", p.MaxVoices)
	}
	if p.MaxVoicesPerChannel < 1 {
		return fmt.Errorf("max voices per channel must be >= 1, got %d", p.MaxVoicesPerChannel)
	}
	if p.SubFragmentSize < 1 || p.SubFragmentSize&(p.SubFragmentSize-1) != 0 {
		return fmt.Errorf("sub-fragment size must be a power of two, got %d", p.SubFragmentSize)
	}
	if p.MaxPitchOctaves < 0 || p.MaxPitchOctaves > 8 {
		return fmt.Errorf("max pitch octaves must be in 0..8, got %d", p.MaxPitchOctaves)
	}
	if p.PreloadFrames < p.MaxSamplesPerCycle<<p.MaxPitchOctaves {
		return fmt.Errorf("preload frames %d too small for cycle %d at max pitch %d",
			p.PreloadFrames, p.MaxSamplesPerCycle, p.MaxPitchOctaves)
	}
	// The interpolator may consume maxSamplesPerCycle<<maxPitch frames
	// per cycle; the ring must hold at least twice that peak plus the
	// interpolator tap margin.
	minRing := 2*(p.MaxSamplesPerCycle<<p.MaxPitchOctaves) + interpolatorTaps
	if p.StreamRingFrames < minRing {
		return fmt.Errorf("stream ring frames %d below minimum %d", p.StreamRingFrames, minRing)
	}
	if p.StreamPoolSize < 1 {
		return fmt.Errorf("stream pool size must be >= 1, got %d", p.StreamPoolSize)
	}
	if p.EventQueueSize < 16 {
		return fmt.Errorf("event queue size must be >= 16, got %d", p.EventQueueSize)
	}
	return nil
}
