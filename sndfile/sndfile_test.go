package sndfile

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-sampler/internal/wavutil"
)

func writeTestWAV(t *testing.T, frames, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	require.NoError(t, wavutil.WriteSineWAV(path, 440, frames, 48000, channels))
	return path
}

func TestOpenWAVInfo(t *testing.T) {
	path := writeTestWAV(t, 4800, 2)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	info := f.Info()
	assert.Equal(t, 4800, info.Frames)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 16, info.BitDepth)
	assert.True(t, f.Streamable(), "wav files must stream")
}

func TestWAVRandomAccessMatchesContent(t *testing.T) {
	path := writeTestWAV(t, 4800, 1)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	// Frame k of a 440 Hz sine at 48 kHz, amplitude 0.5, quantized to
	// 16 bits on write.
	at := func(k int) float64 {
		return 0.5 * math.Sin(2*math.Pi*440*float64(k)/48000)
	}

	buf := make([]float32, 16)
	n, err := f.ReadFrames(buf, 1000)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	for i := 0; i < n; i++ {
		assert.InDelta(t, at(1000+i), float64(buf[i]), 0.001, "frame %d", 1000+i)
	}

	// The same region read twice must be identical (stateless access).
	buf2 := make([]float32, 16)
	_, err = f.ReadFrames(buf2, 1000)
	require.NoError(t, err)
	assert.Equal(t, buf, buf2)
}

func TestWAVReadPastEnd(t *testing.T) {
	path := writeTestWAV(t, 100, 1)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]float32, 64)
	n, err := f.ReadFrames(buf, 90)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "read past end returns the remainder")

	n, err = f.ReadFrames(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWAVStereoInterleaving(t *testing.T) {
	path := writeTestWAV(t, 256, 2)
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]float32, 32)
	n, err := f.ReadFrames(buf, 10)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, buf[i*2], buf[i*2+1], "both channels carry the same tone")
	}
}

func TestReadAfterCloseFails(t *testing.T) {
	path := writeTestWAV(t, 100, 1)
	f, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	buf := make([]float32, 4)
	_, err = f.ReadFrames(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownExtension(t *testing.T) {
	_, err := Open("whatever.xyz")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestDecodePCM16(t *testing.T) {
	raw := []byte{0x00, 0x80, 0xff, 0x7f, 0x00, 0x00}
	dst := make([]float32, 3)
	decodePCM16(raw, dst)
	assert.InDelta(t, -1.0, float64(dst[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(dst[1]), 1e-4)
	assert.Equal(t, float32(0), dst[2])
}

func TestDecodePCM24SignExtension(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x80, 0xff, 0xff, 0x7f}
	dst := make([]float32, 2)
	decodePCM24(raw, dst)
	assert.InDelta(t, -1.0, float64(dst[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(dst[1]), 1e-4)
}
