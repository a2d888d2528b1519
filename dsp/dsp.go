package dsp

import "math"

// Biquad implements a second-order IIR filter (no heap allocations in
// Process). Coefficients can be swapped while the filter is running;
// the state history is kept so sweeps stay click-free.
type Biquad struct {
	// Coefficients
	b0, b1, b2 float32
	a1, a2     float32

	// State (previous samples)
	x1, x2 float32 // input history
	y1, y2 float32 // output history
}

// SetCoefficients replaces the filter coefficients without touching
// the state history.
func (b *Biquad) SetCoefficients(b0, b1, b2, a1, a2 float32) {
	b.b0, b.b1, b.b2 = b0, b1, b2
	b.a1, b.a2 = a1, a2
}

// SetLowpass configures the filter as a resonant lowpass.
// cutoff is in Hz, resonance in [0,1] (0 = Butterworth, 1 = strongly
// resonant), sampleRate in Hz. Cutoff is clamped below Nyquist.
func (b *Biquad) SetLowpass(cutoff, resonance, sampleRate float32) {
	nyquist := 0.49 * sampleRate
	if cutoff > nyquist {
		cutoff = nyquist
	}
	if cutoff < 10 {
		cutoff = 10
	}
	if resonance < 0 {
		resonance = 0
	} else if resonance > 1 {
		resonance = 1
	}
	// Map resonance 0..1 onto Q 0.707..10.
	q := float64(0.707 + 9.293*resonance)

	w0 := 2.0 * math.Pi * float64(cutoff) / float64(sampleRate)
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	b0 := (1.0 - cosw0) / 2.0
	b1 := 1.0 - cosw0
	b2 := (1.0 - cosw0) / 2.0
	a0 := 1.0 + alpha
	a1 := -2.0 * cosw0
	a2 := 1.0 - alpha

	b.SetCoefficients(
		float32(b0/a0),
		float32(b1/a0),
		float32(b2/a0),
		float32(a1/a0),
		float32(a2/a0),
	)
}

// Process processes one sample through the biquad filter
func (b *Biquad) Process(input float32) float32 {
	// Direct Form I implementation
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2

	// Update state
	b.x2 = b.x1
	b.x1 = input
	b.y2 = FlushDenormals(b.y1)
	b.y1 = FlushDenormals(output)

	return output
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// FlushDenormals converts denormal numbers to zero to avoid performance issues
func FlushDenormals(x float32) float32 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0.0
	}
	return x
}
