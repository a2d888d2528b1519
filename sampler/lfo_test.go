package sampler

import "testing"

func TestLFOUnsignedStaysInRange(t *testing.T) {
	l := NewLFO(RangeUnsigned, 1.0)
	l.Trigger(5.0, StartLevelMin, 1200, 0, 0, false, testControlRate)
	for i := 0; i < 10000; i++ {
		v := l.Step()
		if v < 0 || v > 1.0 {
			t.Fatalf("unsigned LFO out of range at step %d: %f", i, v)
		}
	}
}

func TestLFOSignedStaysInRange(t *testing.T) {
	l := NewLFO(RangeSigned, 1200.0)
	l.Trigger(5.0, StartLevelMid, 1200, 0, 0, false, testControlRate)
	var min, max float32
	for i := 0; i < 10000; i++ {
		v := l.Step()
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min < -1200.0 || max > 1200.0 {
		t.Fatalf("signed LFO out of range: min=%f max=%f", min, max)
	}
	if max < 1000 || min > -1000 {
		t.Fatalf("signed LFO never swung near full depth: min=%f max=%f", min, max)
	}
}

func TestLFOStartLevels(t *testing.T) {
	lMin := NewLFO(RangeUnsigned, 1.0)
	lMin.Trigger(1.0, StartLevelMin, 1200, 0, 0, false, testControlRate)
	if v := lMin.Step(); v > 0.01 {
		t.Fatalf("expected min start near 0, got %f", v)
	}

	lMax := NewLFO(RangeUnsigned, 1.0)
	lMax.Trigger(1.0, StartLevelMax, 1200, 0, 0, false, testControlRate)
	if v := lMax.Step(); v < 0.99 {
		t.Fatalf("expected max start near 1, got %f", v)
	}

	lMid := NewLFO(RangeUnsigned, 1.0)
	lMid.Trigger(1.0, StartLevelMid, 1200, 0, 0, false, testControlRate)
	if v := lMid.Step(); v < 0.45 || v > 0.55 {
		t.Fatalf("expected mid start near 0.5, got %f", v)
	}
}

func TestLFOControllerDepth(t *testing.T) {
	l := NewLFO(RangeUnsigned, 1.0)
	l.ExtController = 1
	l.Trigger(1.0, StartLevelMax, 0, 1200, 0, false, testControlRate)
	if l.Active() {
		t.Fatalf("expected inactive LFO with controller at zero")
	}
	l.Update(127)
	if !l.Active() {
		t.Fatalf("expected active LFO after controller update")
	}
	if v := l.Step(); v < 0.9 {
		t.Fatalf("expected near full depth after controller max, got %f", v)
	}
}

func TestLFOFlipPhase(t *testing.T) {
	a := NewLFO(RangeSigned, 1.0)
	a.Trigger(1.0, StartLevelMid, 1200, 0, 0, false, testControlRate)
	b := NewLFO(RangeSigned, 1.0)
	b.Trigger(1.0, StartLevelMid, 1200, 0, 0, true, testControlRate)

	a.Step()
	b.Step()
	va := a.Step()
	vb := b.Step()
	if va != -vb {
		t.Fatalf("expected mirrored output with flipped phase: %f vs %f", va, vb)
	}
}
