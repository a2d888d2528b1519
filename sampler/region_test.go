package sampler

import "testing"

func TestRegionLookupByKeyAndVelocity(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	low := makeRegion(s)
	low.KeyLow, low.KeyHigh = 36, 59
	low.VelLow, low.VelHigh = 0, 63
	high := makeRegion(s)
	high.KeyLow, high.KeyHigh = 36, 59
	high.VelLow, high.VelHigh = 64, 127
	other := makeRegion(s)
	other.KeyLow, other.KeyHigh = 60, 127

	ins := makeInstrument(t, low, high, other)

	var ctl ControllerTable
	got := ins.RegionsForNoteOn(nil, 40, 100, &ctl, false)
	if len(got) != 1 || got[0] != high {
		t.Fatalf("expected high-velocity region, got %d regions", len(got))
	}
	got = ins.RegionsForNoteOn(nil, 40, 10, &ctl, false)
	if len(got) != 1 || got[0] != low {
		t.Fatalf("expected low-velocity region, got %d regions", len(got))
	}
	got = ins.RegionsForNoteOn(nil, 72, 10, &ctl, false)
	if len(got) != 1 || got[0] != other {
		t.Fatalf("expected upper region, got %d regions", len(got))
	}
}

func TestRegionLayersStack(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	a := makeRegion(s)
	a.Layer = 0
	b := makeRegion(s)
	b.Layer = 1

	ins := makeInstrument(t, a, b)
	var ctl ControllerTable
	got := ins.RegionsForNoteOn(nil, 60, 100, &ctl, false)
	if len(got) != 2 {
		t.Fatalf("expected both layers, got %d regions", len(got))
	}
}

func TestReleaseTriggerRegionsOnlyOnRelease(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	normal := makeRegion(s)
	release := makeRegion(s)
	release.ReleaseTrigger = true

	ins := makeInstrument(t, normal, release)
	var ctl ControllerTable
	if got := ins.RegionsForNoteOn(nil, 60, 100, &ctl, false); len(got) != 1 || got[0] != normal {
		t.Fatalf("note-on must select only normal regions")
	}
	if got := ins.RegionsForNoteOn(nil, 60, 100, &ctl, true); len(got) != 1 || got[0] != release {
		t.Fatalf("release must select only release-trigger regions")
	}
}

func TestRegionControllerDimension(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	soft := makeRegion(s)
	soft.Controller = 1
	soft.CtlLow, soft.CtlHigh = 0, 63
	hard := makeRegion(s)
	hard.Controller = 1
	hard.CtlLow, hard.CtlHigh = 64, 127

	ins := makeInstrument(t, soft, hard)
	var ctl ControllerTable
	ctl[1] = 100
	got := ins.RegionsForNoteOn(nil, 60, 100, &ctl, false)
	if len(got) != 1 || got[0] != hard {
		t.Fatalf("expected controller dimension to pick the hard region")
	}
}

func TestRegionsForController(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	r := makeRegion(s)
	r.Controller = 64
	r.CtlLow, r.CtlHigh = 64, 127

	ins := makeInstrument(t, r)
	if got := ins.RegionsForController(nil, 64, 100); len(got) != 1 {
		t.Fatalf("expected on-controller region for value 100")
	}
	if got := ins.RegionsForController(nil, 64, 10); len(got) != 0 {
		t.Fatalf("expected no region for value 10")
	}
}

func TestVelocityAttenuationMonotonic(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	r := makeRegion(s)
	ins := makeInstrument(t, r)
	_ = ins
	prev := float32(-1)
	for v := 0; v < 128; v++ {
		a := r.VelocityAttenuation(v)
		if a < prev {
			t.Fatalf("velocity attenuation not monotonic at %d: %f < %f", v, a, prev)
		}
		prev = a
	}
	if r.VelocityAttenuation(127) != 32768 {
		t.Fatalf("expected full scale at velocity 127, got %f", r.VelocityAttenuation(127))
	}
}

func TestCrossfadeAttenuationRamp(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	r := makeRegion(s)
	r.CrossfadeCurve = Crossfade{InStart: 10, InEnd: 20, OutStart: 100, OutEnd: 120}
	ins := makeInstrument(t, r)
	_ = ins

	cases := []struct {
		value uint8
		want  float32
	}{
		{0, 0}, {10, 0}, {15, 0.5}, {20, 1}, {60, 1}, {100, 1}, {110, 0.5}, {120, 0}, {127, 0},
	}
	for _, c := range cases {
		got := r.CrossfadeAttenuation(c.value)
		if diff := got - c.want; diff > 0.01 || diff < -0.01 {
			t.Fatalf("crossfade(%d): got=%f want=%f", c.value, got, c.want)
		}
	}
}

func TestCrossfadeDisabledReturnsUnity(t *testing.T) {
	s := makeRAMSample(100, 1, 8)
	r := makeRegion(s)
	ins := makeInstrument(t, r)
	_ = ins
	if r.CrossfadeAttenuation(0) != 1.0 {
		t.Fatalf("disabled crossfade must be transparent")
	}
}

func TestFinalizeRejectsMissingSample(t *testing.T) {
	ins := &Instrument{Name: "broken", Regions: []*Region{{}}}
	if err := ins.Finalize(); err == nil {
		t.Fatalf("expected error for region without sample")
	}
}
