package sndfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cwbudde/wav"
)

func openWAV(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		fh.Close()
		return nil, fmt.Errorf("invalid wav file: %q", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		fh.Close()
		return nil, fmt.Errorf("locating PCM data in %q: %w", path, err)
	}
	// The decoder leaves the handle at the first PCM byte.
	dataOffset, err := fh.Seek(0, io.SeekCurrent)
	if err != nil {
		fh.Close()
		return nil, err
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels < 1 || channels > 2 {
		fh.Close()
		return nil, fmt.Errorf("%w: %d channels in %q", ErrUnsupportedEncoding, channels, path)
	}

	decode, bytesPerSample, err := pcmDecoder(bitDepth, int(dec.WavAudioFormat))
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("%q: %w", path, err)
	}

	frameSize := bytesPerSample * channels
	frames := int(dec.PCMLen()) / frameSize

	return &File{
		path: path,
		info: Info{
			Frames:     frames,
			Channels:   channels,
			SampleRate: int(dec.SampleRate),
			BitDepth:   bitDepth,
		},
		raw:        fh,
		dataOffset: dataOffset,
		frameSize:  frameSize,
		decode:     decode,
	}, nil
}

const wavFormatIEEEFloat = 3

func pcmDecoder(bitDepth, audioFormat int) (decodeFunc, int, error) {
	if audioFormat == wavFormatIEEEFloat {
		if bitDepth != 32 {
			return nil, 0, fmt.Errorf("%w: %d-bit float", ErrUnsupportedEncoding, bitDepth)
		}
		return decodeFloat32, 4, nil
	}
	switch bitDepth {
	case 8:
		return decodePCM8, 1, nil
	case 16:
		return decodePCM16, 2, nil
	case 24:
		return decodePCM24, 3, nil
	case 32:
		return decodePCM32, 4, nil
	default:
		return nil, 0, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedEncoding, bitDepth)
	}
}

func decodePCM8(raw []byte, dst []float32) {
	for i := range dst {
		dst[i] = (float32(raw[i]) - 128.0) / 128.0
	}
}

func decodePCM16(raw []byte, dst []float32) {
	for i := range dst {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		dst[i] = float32(v) / 32768.0
	}
}

func decodePCM24(raw []byte, dst []float32) {
	for i := range dst {
		b := raw[3*i : 3*i+3]
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xffffff)
		}
		dst[i] = float32(v) / 8388608.0
	}
}

func decodePCM32(raw []byte, dst []float32) {
	for i := range dst {
		v := int32(binary.LittleEndian.Uint32(raw[4*i:]))
		dst[i] = float32(v) / 2147483648.0
	}
}

func decodeFloat32(raw []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
}
