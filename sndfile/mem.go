package sndfile

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/aiff"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

func openAIFF(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	dec := aiff.NewDecoder(fh)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("decoding %q: empty PCM buffer", path)
	}

	bitDepth := int(dec.BitDepth)
	var maxVal float32
	switch bitDepth {
	case 8:
		maxVal = 128.0
	case 16:
		maxVal = 32768.0
	case 24:
		maxVal = 8388608.0
	case 32:
		maxVal = 2147483648.0
	default:
		bitDepth = 16
		maxVal = 32768.0
	}

	channels := buf.Format.NumChannels
	mem := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		mem[i] = float32(v) / maxVal
	}

	return &File{
		path: path,
		info: Info{
			Frames:     len(mem) / channels,
			Channels:   channels,
			SampleRate: buf.Format.SampleRate,
			BitDepth:   bitDepth,
		},
		mem: mem,
	}, nil
}

func openMP3(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	dec, err := gomp3.NewDecoder(fh)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}

	// go-mp3 always produces 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	const channels = 2
	samples := len(raw) / 2
	mem := make([]float32, samples)
	for i := 0; i < samples; i++ {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		mem[i] = float32(v) / 32768.0
	}

	return &File{
		path: path,
		info: Info{
			Frames:     samples / channels,
			Channels:   channels,
			SampleRate: dec.SampleRate(),
			BitDepth:   16,
		},
		mem: mem,
	}, nil
}

func openVorbis(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	mem, format, err := oggvorbis.ReadAll(fh)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}

	return &File{
		path: path,
		info: Info{
			Frames:     len(mem) / format.Channels,
			Channels:   format.Channels,
			SampleRate: format.SampleRate,
			BitDepth:   16,
		},
		mem: mem,
	}, nil
}
