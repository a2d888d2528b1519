// Package wavutil bundles the WAV read/write and resampling helpers
// shared by the command line tools and tests.
package wavutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// ReadWAV loads a whole WAV file as interleaved float32 samples in
// -1..1 scale, returning the channel count and sample rate.
func ReadWAV(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v)
	}
	return out, buf.Format.NumChannels, buf.Format.SampleRate, nil
}

// WriteStereoInterleavedWAV writes 16-bit stereo PCM.
func WriteStereoInterleavedWAV(path string, samples []float32, sampleRate int) error {
	return writeWAV(path, samples, sampleRate, 2)
}

// WriteMonoWAV writes 16-bit mono PCM.
func WriteMonoWAV(path string, data []float32, sampleRate int) error {
	return writeWAV(path, data, sampleRate, 1)
}

func writeWAV(path string, samples []float32, sampleRate, channels int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	defer enc.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}

// ResampleStereoIfNeeded converts interleaved stereo audio between
// sample rates, returning the input untouched when the rates match.
func ResampleStereoIfNeeded(in []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	frames := len(in) / 2
	left := make([]float64, frames)
	right := make([]float64, frames)
	for i := 0; i < frames; i++ {
		left[i] = float64(in[i*2])
		right[i] = float64(in[i*2+1])
	}
	outL, err := resample(left, fromRate, toRate)
	if err != nil {
		return nil, err
	}
	outR, err := resample(right, fromRate, toRate)
	if err != nil {
		return nil, err
	}
	n := len(outL)
	if len(outR) < n {
		n = len(outR)
	}
	out := make([]float32, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = float32(outL[i])
		out[i*2+1] = float32(outR[i])
	}
	return out, nil
}

func resample(in []float64, fromRate, toRate int) ([]float64, error) {
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}

// WriteSineWAV writes a synthetic sine sweep-free test tone, useful
// for building sample fixtures.
func WriteSineWAV(path string, freq float64, frames, sampleRate, channels int) error {
	data := make([]float32, frames*channels)
	for i := 0; i < frames; i++ {
		s := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			data[i*channels+c] = s
		}
	}
	return writeWAV(path, data, sampleRate, channels)
}
