package sampler

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

// EGStage identifies the current segment of an ADSR envelope.
type EGStage uint8

const (
	StageOff EGStage = iota
	StageAttack
	StageHold
	StageDecay1
	StageDecay2
	StageSustain
	StageRelease
	StageEnd
)

// egMinLevel is the level below which an exponential segment is
// treated as finished (about -72 dB).
const egMinLevel = 0.00025

// EGADSR is a sample-accurate envelope generator stepped once per
// sub-fragment: attack and release are exponential segments, decay1 is
// linear toward the sustain level, decay2 continues exponentially
// toward silence unless the sustain is infinite. A voice owns its
// envelope state exclusively.
type EGADSR struct {
	stage EGStage
	level float32

	controlRate float64 // steps per second

	stepsLeft int
	coeff     float32 // per-step factor for exponential segments
	delta     float32 // per-step increment for linear segments

	holdUntilLoopStart bool
	loopStart          float64

	sustainLevel    float32
	infiniteSustain bool
	decay1Time      float64
	decay2Time      float64
	releaseTime     float64

	preReleaseStage EGStage
	preReleaseLevel float32
}

// Trigger starts the envelope. Times are in seconds, levels in 0..1;
// controlRate is the modulator step rate (sampleRate/subFragmentSize).
// When hold is set the peak level is kept until the playback position
// passes loopStart.
func (eg *EGADSR) Trigger(preAttack, attack float64, hold bool, loopStart int,
	decay1, decay2 float64, infiniteSustain bool, sustain, release float64,
	controlRate float64) {

	eg.controlRate = controlRate
	eg.sustainLevel = float32(clamp01(sustain))
	eg.infiniteSustain = infiniteSustain
	eg.decay1Time = decay1
	eg.decay2Time = decay2
	eg.releaseTime = release
	eg.holdUntilLoopStart = hold
	eg.loopStart = float64(loopStart)

	start := float32(clamp01(preAttack))
	if start < egMinLevel {
		start = egMinLevel
	}
	eg.level = start

	steps := int(attack * controlRate)
	if steps < 1 {
		eg.level = 1.0
		eg.enterPostAttack()
		return
	}
	eg.stage = StageAttack
	eg.stepsLeft = steps
	// Exponential rise from the start level to 1.0.
	eg.coeff = float32(math.Exp(-math.Log(float64(start)) / float64(steps)))
}

func (eg *EGADSR) enterPostAttack() {
	if eg.holdUntilLoopStart {
		eg.stage = StageHold
		return
	}
	eg.enterDecay1()
}

func (eg *EGADSR) enterDecay1() {
	if eg.sustainLevel >= 1.0 {
		eg.enterSustain()
		return
	}
	steps := int(eg.decay1Time * eg.controlRate)
	if steps < 1 {
		eg.level = eg.sustainLevel
		eg.enterSustain()
		return
	}
	eg.stage = StageDecay1
	eg.stepsLeft = steps
	eg.delta = (eg.sustainLevel - eg.level) / float32(steps)
}

func (eg *EGADSR) enterSustain() {
	if eg.infiniteSustain || eg.sustainLevel <= egMinLevel {
		eg.stage = StageSustain
		return
	}
	// Finite sustain keeps decaying exponentially (decay2).
	steps := eg.decay2Time * eg.controlRate
	if steps < 1 {
		steps = 1
	}
	eg.stage = StageDecay2
	eg.coeff = approx.FastExp(-3.0 / float32(steps))
}

// Step advances the envelope by one sub-fragment and returns the
// current level. pos is the voice's playback position, consulted only
// by the hold stage.
func (eg *EGADSR) Step(pos float64) float32 {
	switch eg.stage {
	case StageAttack:
		eg.level *= eg.coeff
		eg.stepsLeft--
		if eg.stepsLeft <= 0 || eg.level >= 1.0 {
			eg.level = 1.0
			eg.enterPostAttack()
		}
	case StageHold:
		if pos >= eg.loopStart {
			eg.enterDecay1()
		}
	case StageDecay1:
		eg.level += eg.delta
		eg.stepsLeft--
		if eg.stepsLeft <= 0 {
			eg.level = eg.sustainLevel
			eg.enterSustain()
		}
	case StageDecay2:
		eg.level *= eg.coeff
		if eg.level <= egMinLevel {
			eg.level = 0
			eg.stage = StageEnd
		}
	case StageSustain:
		// constant
	case StageRelease:
		eg.level *= eg.coeff
		if eg.level <= egMinLevel {
			eg.level = 0
			eg.stage = StageEnd
		}
	}
	return eg.level
}

// Release enters the release segment from the current level. The
// pre-release state is remembered so CancelRelease can snap back.
func (eg *EGADSR) Release() {
	if eg.stage == StageRelease || eg.stage == StageEnd {
		return
	}
	eg.preReleaseStage = eg.stage
	eg.preReleaseLevel = eg.level
	steps := eg.releaseTime * eg.controlRate
	if steps < 1 {
		steps = 1
	}
	eg.stage = StageRelease
	eg.coeff = approx.FastExp(-3.0 / float32(steps))
}

// CancelRelease snaps the envelope back to the level and stage it held
// before the release segment was entered. A no-op unless releasing.
func (eg *EGADSR) CancelRelease() {
	if eg.stage != StageRelease {
		return
	}
	eg.level = eg.preReleaseLevel
	if eg.preReleaseStage == StageDecay2 {
		eg.enterSustain()
		return
	}
	eg.stage = eg.preReleaseStage
}

// Stage returns the current envelope segment.
func (eg *EGADSR) Stage() EGStage { return eg.stage }

// Level returns the current level without advancing the envelope.
func (eg *EGADSR) Level() float32 { return eg.level }

// Reset returns the envelope to its untriggered state.
func (eg *EGADSR) Reset() {
	eg.stage = StageOff
	eg.level = 0
	eg.stepsLeft = 0
}

// EGDecay is the pitch envelope: it starts at a depth ratio and decays
// exponentially to 1.0 over its attack time.
type EGDecay struct {
	level float64
	coeff float64
	done  bool
}

// Trigger starts the decay from depthRatio toward 1.0.
func (eg *EGDecay) Trigger(depthRatio, decayTime, controlRate float64) {
	eg.level = depthRatio
	eg.done = depthRatio == 1.0 || decayTime <= 0
	if eg.done {
		eg.level = 1.0
		return
	}
	steps := decayTime * controlRate
	if steps < 1 {
		steps = 1
	}
	eg.coeff = float64(approx.FastExp(-3.0 / float32(steps)))
}

// Step advances by one sub-fragment and returns the current ratio.
func (eg *EGDecay) Step() float64 {
	if eg.done {
		return 1.0
	}
	eg.level = 1.0 + (eg.level-1.0)*eg.coeff
	if diff := eg.level - 1.0; diff > -1e-4 && diff < 1e-4 {
		eg.level = 1.0
		eg.done = true
	}
	return eg.level
}

// Reset returns the envelope to a neutral ratio.
func (eg *EGDecay) Reset() {
	eg.level = 1.0
	eg.done = true
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
