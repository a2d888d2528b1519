package wavutil

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.wav")
	in := make([]float32, 2000)
	for i := range in {
		in[i] = float32(0.25 * math.Sin(float64(i)*0.01))
	}
	if err := WriteStereoInterleavedWAV(path, in, 44100); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	out, channels, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if channels != 2 || rate != 44100 {
		t.Fatalf("format mismatch: channels=%d rate=%d", channels, rate)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got=%d want=%d", len(out), len(in))
	}
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > 0.001 {
			t.Fatalf("sample %d differs by %f", i, diff)
		}
	}
}

func TestWriteMonoWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	if err := WriteMonoWAV(path, make([]float32, 100), 48000); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, channels, _, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if channels != 1 {
		t.Fatalf("expected mono, got %d channels", channels)
	}
}

func TestWriteSineWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sine.wav")
	if err := WriteSineWAV(path, 440, 4800, 48000, 1); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, _, _, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) != 4800 {
		t.Fatalf("expected 4800 frames, got %d", len(data))
	}
	var peak float32
	for _, v := range data {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.45 || peak > 0.55 {
		t.Fatalf("expected 0.5 amplitude sine, peak=%f", peak)
	}
}

func TestResampleStereoIfNeededNoOp(t *testing.T) {
	in := []float32{1, 2, 3, 4}
	out, err := ResampleStereoIfNeeded(in, 48000, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if &out[0] != &in[0] {
		t.Fatalf("same-rate resample must return the input")
	}
}

func TestResampleStereoChangesLength(t *testing.T) {
	in := make([]float32, 4800*2)
	for i := 0; i < 4800; i++ {
		s := float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
		in[i*2] = s
		in[i*2+1] = s
	}
	out, err := ResampleStereoIfNeeded(in, 48000, 24000)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}
	frames := len(out) / 2
	if frames < 2300 || frames > 2500 {
		t.Fatalf("expected about 2400 frames after 2:1 resample, got %d", frames)
	}
}
