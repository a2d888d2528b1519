package sampler

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

// interpolatorTaps is the number of frames past the read position the
// sampler kernel may touch in one step.
const interpolatorTaps = 3

// oneCentTolerance is |ratio-1| below which playback is treated as
// unpitched: the kernel then copies frames without interpolation
// whenever the read position falls on a whole frame.
const oneCentTolerance = 0.000578

// CentsToRatio converts a detune amount in cents to a frequency ratio.
func CentsToRatio(cents float64) float64 {
	return math.Exp2(cents / 1200.0)
}

// centsToRatioFast is the control-rate variant used inside the render
// loop, where a fast approximation is accurate enough.
func centsToRatioFast(cents float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(cents / 1200.0 * ln2)
}

func keyTrackRatio(key, breakpoint int) float32 {
	const ln2over12 = 0.05776226504666210911
	return approx.FastExp(float32(key-breakpoint) * ln2over12)
}

func clampf(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
