// Package sndfile provides uniform access to the PCM content of
// sample files. WAV files are opened for streaming: the header is
// parsed once and frames are read on demand straight from the data
// chunk. Compressed or sequential formats (AIFF, MP3, OGG/Vorbis) are
// decoded fully into memory at open time, so the sampler always keeps
// them in its RAM cache.
package sndfile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
)

var (
	// ErrUnsupportedFormat is returned for file extensions no decoder
	// claims.
	ErrUnsupportedFormat = errors.New("unsupported sample file format")
	// ErrUnsupportedEncoding is returned for PCM encodings the
	// streaming reader cannot decode.
	ErrUnsupportedEncoding = errors.New("unsupported PCM encoding")
	// ErrClosed is returned when reading from a closed file.
	ErrClosed = errors.New("sample file is closed")
)

// Info describes the PCM content of an opened file.
type Info struct {
	Frames     int
	Channels   int
	SampleRate int
	BitDepth   int
}

// File is an opened sample file. ReadFrames is safe for concurrent use
// by the loader and the disk streaming goroutine.
type File struct {
	path string
	info Info

	// Streaming access (WAV).
	raw        rawReader
	dataOffset int64
	frameSize  int
	decode     decodeFunc

	// Memory access (fully decoded formats).
	mem []float32

	closed atomic.Bool
}

type rawReader interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

type decodeFunc func(raw []byte, dst []float32)

// Open opens a sample file, choosing the decoder by file extension.
func Open(path string) (*File, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return openWAV(path)
	case ".aif", ".aiff":
		return openAIFF(path)
	case ".mp3":
		return openMP3(path)
	case ".ogg", ".oga":
		return openVorbis(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Path returns the file path the handle was opened with.
func (f *File) Path() string { return f.path }

// Info returns the PCM properties of the file.
func (f *File) Info() Info { return f.info }

// Streamable reports whether frames can be read on demand from disk.
// Non-streamable files are fully decoded in memory and must be cached
// whole by the sampler.
func (f *File) Streamable() bool { return f.raw != nil }

// ReadFrames fills dst with interleaved frames starting at fromFrame
// and returns the number of frames read. dst's length must be a
// multiple of the channel count. Past the end it returns what remains.
func (f *File) ReadFrames(dst []float32, fromFrame int) (int, error) {
	if f.closed.Load() && f.raw != nil {
		return 0, ErrClosed
	}
	want := len(dst) / f.info.Channels
	if fromFrame >= f.info.Frames || want == 0 {
		return 0, nil
	}
	if fromFrame+want > f.info.Frames {
		want = f.info.Frames - fromFrame
	}

	if f.mem != nil {
		n := copy(dst[:want*f.info.Channels], f.mem[fromFrame*f.info.Channels:])
		return n / f.info.Channels, nil
	}

	raw := make([]byte, want*f.frameSize)
	n, err := f.raw.ReadAt(raw, f.dataOffset+int64(fromFrame)*int64(f.frameSize))
	frames := n / f.frameSize
	if frames > 0 {
		f.decode(raw[:frames*f.frameSize], dst[:frames*f.info.Channels])
	}
	if err != nil && frames < want {
		return frames, fmt.Errorf("reading %q: %w", f.path, err)
	}
	return frames, nil
}

// Close releases the underlying file handle. In-memory content stays
// readable until the File itself is dropped.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	if f.raw != nil {
		return f.raw.Close()
	}
	return nil
}
