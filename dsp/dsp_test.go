package dsp

import (
	"math"
	"testing"
)

func rmsOfSine(b *Biquad, freq, sampleRate float64, n int) float64 {
	var sum float64
	for i := 0; i < n; i++ {
		in := float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
		out := float64(b.Process(in))
		if i > n/2 { // skip transient
			sum += out * out
		}
	}
	return math.Sqrt(sum / float64(n/2))
}

func TestLowpassPassesLowAttenuatesHigh(t *testing.T) {
	var lp Biquad
	lp.SetLowpass(1000, 0, 48000)
	low := rmsOfSine(&lp, 100, 48000, 48000)

	lp.Reset()
	lp.SetLowpass(1000, 0, 48000)
	high := rmsOfSine(&lp, 12000, 48000, 48000)

	if low < 0.5 {
		t.Fatalf("expected passband signal to survive: rms=%f", low)
	}
	if high > low/4 {
		t.Fatalf("expected stopband attenuation: low=%f high=%f", low, high)
	}
}

func TestResonanceBoostsCutoffRegion(t *testing.T) {
	var flat, peaky Biquad
	flat.SetLowpass(1000, 0, 48000)
	peaky.SetLowpass(1000, 0.9, 48000)

	flatRMS := rmsOfSine(&flat, 1000, 48000, 48000)
	peakRMS := rmsOfSine(&peaky, 1000, 48000, 48000)
	if peakRMS <= flatRMS {
		t.Fatalf("expected resonance to boost the cutoff region: flat=%f peaky=%f", flatRMS, peakRMS)
	}
}

func TestSetLowpassClampsParameters(t *testing.T) {
	var b Biquad
	b.SetLowpass(96000, 2.0, 48000) // cutoff above Nyquist, resonance out of range
	out := b.Process(1.0)
	if math.IsNaN(float64(out)) || math.IsInf(float64(out), 0) {
		t.Fatalf("expected finite output after clamped config, got %f", out)
	}
}

func TestReset(t *testing.T) {
	var b Biquad
	b.SetLowpass(500, 0.5, 48000)
	for i := 0; i < 64; i++ {
		b.Process(1.0)
	}
	b.Reset()
	if b.x1 != 0 || b.x2 != 0 || b.y1 != 0 || b.y2 != 0 {
		t.Fatalf("expected cleared state after reset")
	}
}

func TestFlushDenormals(t *testing.T) {
	if got := FlushDenormals(1e-38); got != 0 {
		t.Fatalf("expected denormal flushed to zero, got %g", got)
	}
	if got := FlushDenormals(0.5); got != 0.5 {
		t.Fatalf("expected normal value untouched, got %g", got)
	}
}
