package sampler

import (
	"errors"
	"fmt"
	"io"
)

// FrameReader provides random access to the PCM frames of a sample's
// backing file. dst holds interleaved float32 samples; its length must
// be a multiple of the sample's channel count. ReadFrames is called
// from the disk streaming goroutine and from loaders, never from the
// real-time thread.
type FrameReader interface {
	ReadFrames(dst []float32, fromFrame int) (int, error)
}

// Loop describes a sustain loop within a sample, in frames.
type Loop struct {
	Start     int
	End       int // exclusive
	PlayCount int // 0 = infinite
}

// Frames returns the loop length.
func (l Loop) Frames() int { return l.End - l.Start }

// Cache holds the initial frames of a sample in RAM, optionally
// followed by silence frames for the interpolator. Reading past the
// real end returns silence up to the pad.
type Cache struct {
	data       []float32 // interleaved, (frames+silencePad)*channels long
	frames     int       // real sample frames cached
	silencePad int       // appended zero frames
}

// Frames returns the number of real sample frames held in RAM.
func (c *Cache) Frames() int { return c.frames }

// SilencePad returns the number of zero frames appended past the real
// data.
func (c *Cache) SilencePad() int { return c.silencePad }

// Data returns the cached interleaved frames including the silence
// pad. Read-only once the sample is in use.
func (c *Cache) Data() []float32 { return c.data }

// Sample is a possibly-large PCM asset identified by (file path,
// intra-file index). Immutable once loaded; voices hold shared
// read-only references.
type Sample struct {
	Path       string
	Index      int
	Frames     int // total frames in the asset
	Channels   int
	SampleRate int

	// Attenuation is a linear gain from the instrument definition.
	Attenuation float32

	Loops bool
	Loop  Loop

	// Reader supplies the frames CacheInitial loads and, for streamed
	// samples, the frames beyond the cache.
	Reader FrameReader

	cache Cache
}

var errNoReader = errors.New("sample has no frame reader")

// Cache exposes the RAM cache.
func (s *Sample) Cache() *Cache { return &s.cache }

// Streamed reports whether playback must fall through to the disk
// streamer after the cached frames are consumed.
func (s *Sample) Streamed() bool { return s.cache.frames < s.Frames }

// SetCache installs a prepared cache buffer. data must hold
// (frames+silencePad)*Channels interleaved samples.
func (s *Sample) SetCache(data []float32, frames, silencePad int) {
	s.cache = Cache{data: data, frames: frames, silencePad: silencePad}
}

// CacheInitial fills the RAM cache from the sample's reader. Samples
// no longer than preloadFrames are loaded fully and padded with
// silenceFrames zero frames; longer samples cache preloadFrames plus a
// small interpolator margin and stream the remainder.
func (s *Sample) CacheInitial(preloadFrames, silenceFrames int) error {
	if s.Frames == 0 {
		return fmt.Errorf("sample %q has no frames", s.Path)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("sample %q has invalid channel count %d", s.Path, s.Channels)
	}
	if s.Reader == nil {
		return fmt.Errorf("sample %q: %w", s.Path, errNoReader)
	}

	if s.Frames <= preloadFrames {
		data := make([]float32, (s.Frames+silenceFrames)*s.Channels)
		if err := s.readFully(data[:s.Frames*s.Channels], 0); err != nil {
			return err
		}
		s.cache = Cache{data: data, frames: s.Frames, silencePad: silenceFrames}
		return nil
	}

	frames := preloadFrames
	data := make([]float32, (frames+interpolatorTaps)*s.Channels)
	if err := s.readFully(data[:frames*s.Channels], 0); err != nil {
		return err
	}
	s.cache = Cache{data: data, frames: frames, silencePad: interpolatorTaps}
	return nil
}

// EnsureSilencePad re-extends the silence pad of a fully cached sample
// when a larger audio cycle appears than the pad was sized for.
func (s *Sample) EnsureSilencePad(silenceFrames int) error {
	if s.Streamed() || s.cache.silencePad >= silenceFrames {
		return nil
	}
	data := make([]float32, (s.cache.frames+silenceFrames)*s.Channels)
	copy(data, s.cache.data[:s.cache.frames*s.Channels])
	s.cache = Cache{data: data, frames: s.cache.frames, silencePad: silenceFrames}
	return nil
}

func (s *Sample) readFully(dst []float32, fromFrame int) error {
	want := len(dst) / s.Channels
	got, err := s.Reader.ReadFrames(dst, fromFrame)
	if err != nil && err != io.EOF {
		return fmt.Errorf("caching %q: %w", s.Path, err)
	}
	if got < want {
		return fmt.Errorf("caching %q: short read: got %d of %d frames", s.Path, got, want)
	}
	return nil
}
