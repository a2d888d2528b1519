package sampler

import "testing"

const testControlRate = 1500.0 // 48 kHz / 32

func triggeredEG(attack, decay1, decay2 float64, infinite bool, sustain, release float64) *EGADSR {
	eg := &EGADSR{}
	eg.Trigger(0, attack, false, 0, decay1, decay2, infinite, sustain, release, testControlRate)
	return eg
}

func TestEGAttackReachesFullLevel(t *testing.T) {
	eg := triggeredEG(0.01, 0, 0, true, 0.5, 0.1)
	if eg.Stage() != StageAttack {
		t.Fatalf("expected attack stage, got %d", eg.Stage())
	}
	steps := int(0.02 * testControlRate)
	var lvl float32
	for i := 0; i < steps; i++ {
		lvl = eg.Step(0)
	}
	if eg.Stage() == StageAttack {
		t.Fatalf("attack never finished, level=%f", lvl)
	}
}

func TestEGInfiniteSustainHoldsForever(t *testing.T) {
	eg := triggeredEG(0, 0.001, 0, true, 0.75, 0.1)
	for i := 0; i < 100000; i++ {
		eg.Step(0)
	}
	if eg.Stage() != StageSustain {
		t.Fatalf("expected sustain to hold, got stage %d", eg.Stage())
	}
	if lvl := eg.Level(); lvl < 0.74 || lvl > 0.76 {
		t.Fatalf("expected sustain level 0.75, got %f", lvl)
	}
}

func TestEGFiniteSustainDecaysToEnd(t *testing.T) {
	eg := triggeredEG(0, 0.001, 0.02, false, 0.5, 0.1)
	for i := 0; i < 100000 && eg.Stage() != StageEnd; i++ {
		eg.Step(0)
	}
	if eg.Stage() != StageEnd {
		t.Fatalf("finite sustain never reached end")
	}
}

func TestEGReleaseIsMonotonicNonIncreasing(t *testing.T) {
	eg := triggeredEG(0, 0.001, 0, true, 1.0, 0.05)
	for i := 0; i < 64; i++ {
		eg.Step(0)
	}
	eg.Release()
	prev := eg.Level()
	for eg.Stage() != StageEnd {
		lvl := eg.Step(0)
		if lvl > prev {
			t.Fatalf("release level increased: %f -> %f", prev, lvl)
		}
		prev = lvl
	}
}

func TestEGCancelReleaseRestoresLevel(t *testing.T) {
	eg := triggeredEG(0, 0.001, 0, true, 0.8, 0.5)
	for i := 0; i < 64; i++ {
		eg.Step(0)
	}
	before := eg.Level()
	eg.Release()
	for i := 0; i < 10; i++ {
		eg.Step(0)
	}
	eg.CancelRelease()
	if eg.Stage() != StageSustain {
		t.Fatalf("expected sustain after cancel-release, got %d", eg.Stage())
	}
	if got := eg.Level(); got != before {
		t.Fatalf("expected level restored to %f, got %f", before, got)
	}
}

func TestEGHoldWaitsForLoopStart(t *testing.T) {
	eg := &EGADSR{}
	eg.Trigger(0, 0, true, 5000, 0.001, 0, true, 0.5, 0.1, testControlRate)
	if eg.Stage() != StageHold {
		t.Fatalf("expected hold stage, got %d", eg.Stage())
	}
	for i := 0; i < 100; i++ {
		if lvl := eg.Step(1000); lvl != 1.0 {
			t.Fatalf("hold level dropped to %f", lvl)
		}
	}
	eg.Step(5000)
	if eg.Stage() == StageHold {
		t.Fatalf("hold did not end at loop start")
	}
}

func TestEGZeroAttackStartsAtFullLevel(t *testing.T) {
	eg := triggeredEG(0, 0.01, 0, true, 0.5, 0.1)
	if eg.Level() != 1.0 {
		t.Fatalf("expected immediate full level, got %f", eg.Level())
	}
}

func TestEGDecayRatioApproachesUnity(t *testing.T) {
	var eg EGDecay
	eg.Trigger(CentsToRatio(1200), 0.01, testControlRate)
	first := eg.Step()
	if first <= 1.0 {
		t.Fatalf("expected initial ratio above 1, got %f", first)
	}
	var last float64
	for i := 0; i < 1000; i++ {
		last = eg.Step()
	}
	if last < 0.999 || last > 1.001 {
		t.Fatalf("expected ratio to settle at 1.0, got %f", last)
	}
}
