package sampler

import (
	"io"
	"testing"
	"time"
)

// rampReader serves synthetic frames whose value equals their frame
// index, so tests can verify read positions from sample content.
type rampReader struct {
	frames   int
	channels int
}

func (r *rampReader) ReadFrames(dst []float32, fromFrame int) (int, error) {
	want := len(dst) / r.channels
	if fromFrame >= r.frames {
		return 0, io.EOF
	}
	if fromFrame+want > r.frames {
		want = r.frames - fromFrame
	}
	for i := 0; i < want; i++ {
		for c := 0; c < r.channels; c++ {
			dst[i*r.channels+c] = float32(fromFrame + i)
		}
	}
	if fromFrame+want >= r.frames {
		return want, io.EOF
	}
	return want, nil
}

func makeRAMSample(frames, channels, silencePad int) *Sample {
	s := &Sample{
		Path:        "test-ram",
		Frames:      frames,
		Channels:    channels,
		SampleRate:  48000,
		Attenuation: 1.0,
		Reader:      &rampReader{frames: frames, channels: channels},
	}
	if err := s.CacheInitial(frames, silencePad); err != nil {
		panic(err)
	}
	return s
}

func makeDiskSample(frames, channels, preload, silencePad int) *Sample {
	s := &Sample{
		Path:        "test-disk",
		Frames:      frames,
		Channels:    channels,
		SampleRate:  48000,
		Attenuation: 1.0,
		Reader:      &rampReader{frames: frames, channels: channels},
	}
	if err := s.CacheInitial(preload, silencePad); err != nil {
		panic(err)
	}
	return s
}

func makeRegion(s *Sample) *Region {
	return &Region{
		Sample:      s,
		KeyLow:      0,
		KeyHigh:     127,
		VelLow:      0,
		VelHigh:     127,
		UnityNote:   60,
		PitchTrack:  true,
		Attenuation: 1.0,
		EG1: EGParams{
			Sustain:         1.0,
			InfiniteSustain: true,
			Release:         0.05,
		},
		EG2: EGParams{
			Sustain:         1.0,
			InfiniteSustain: true,
			Release:         0.05,
		},
	}
}

func makeInstrument(t *testing.T, regions ...*Region) *Instrument {
	t.Helper()
	ins := &Instrument{Name: "test", Regions: regions}
	if err := ins.Finalize(); err != nil {
		t.Fatalf("finalize instrument: %v", err)
	}
	return ins
}

type stubLoader struct {
	ins *Instrument
}

func (s *stubLoader) Load(_ InstrumentID, progress func(float32)) (*Instrument, error) {
	if progress != nil {
		progress(0.5)
	}
	return s.ins, nil
}

func (s *stubLoader) Unload(InstrumentID, *Instrument) {}

func (s *stubLoader) EnsureCached(*Instrument, int) error { return nil }

func testParams() *Params {
	p := NewDefaultParams()
	p.Channels = 2
	p.MaxVoices = 8
	p.MaxSamplesPerCycle = 256
	p.SubFragmentSize = 32
	p.MaxPitchOctaves = 4
	p.StreamRefillInterval = 200 * time.Microsecond
	return p
}

func newTestEngine(t *testing.T, p *Params, ins *Instrument) *Engine {
	t.Helper()
	if p == nil {
		p = testParams()
	}
	var loader InstrumentLoader
	if ins != nil {
		loader = &stubLoader{ins: ins}
	}
	e, err := New(p, loader, nil)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	e.Start()
	t.Cleanup(e.Stop)
	if ins != nil {
		if err := e.AssignInstrument(0, InstrumentID{Path: "stub"}); err != nil {
			t.Fatalf("assigning instrument: %v", err)
		}
	}
	return e
}

// noteOnAt builds a note-on pinned to a fragment position of the next
// cycle.
func noteOnAt(key, velocity, fragmentPos int) Event {
	return Event{
		Type:        EventNoteOn,
		Key:         uint8(key),
		Velocity:    uint8(velocity),
		fragmentPos: int32(fragmentPos),
	}
}

func noteOffAt(key, fragmentPos int) Event {
	return Event{
		Type:        EventNoteOff,
		Key:         uint8(key),
		fragmentPos: int32(fragmentPos),
	}
}

func renderCycles(e *Engine, cycles, n int) ([]float32, []float32) {
	left := make([]float32, n)
	right := make([]float32, n)
	for i := 0; i < cycles; i++ {
		e.RenderAudio(left, right)
	}
	return left, right
}

// activeVoices collects the engine's currently sounding voices.
func activeVoices(e *Engine) []*Voice {
	var out []*Voice
	for _, v := range e.voices {
		if v.Active() {
			out = append(out, v)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
