// Command sampler-render renders notes of a sampled instrument to a
// WAV file without a real-time audio device.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-sampler/internal/wavutil"
	"github.com/cwbudde/algo-sampler/preset"
	"github.com/cwbudde/algo-sampler/sampler"
)

type noteSpec struct {
	key      int
	velocity int
	start    float64 // seconds
	duration float64 // seconds
}

// parseNotes parses "key:velocity:start:duration" groups separated by
// commas, e.g. "60:100:0:1.5,64:90:0.5:1.0".
func parseNotes(s string) ([]noteSpec, error) {
	var out []noteSpec
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("note %q: expected key:velocity:start:duration", part)
		}
		key, err := strconv.Atoi(fields[0])
		if err != nil || key < 0 || key > 127 {
			return nil, fmt.Errorf("note %q: bad key", part)
		}
		vel, err := strconv.Atoi(fields[1])
		if err != nil || vel < 1 || vel > 127 {
			return nil, fmt.Errorf("note %q: bad velocity", part)
		}
		start, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || start < 0 {
			return nil, fmt.Errorf("note %q: bad start", part)
		}
		dur, err := strconv.ParseFloat(fields[3], 64)
		if err != nil || dur <= 0 {
			return nil, fmt.Errorf("note %q: bad duration", part)
		}
		out = append(out, noteSpec{key: key, velocity: vel, start: start, duration: dur})
	}
	return out, nil
}

func main() {
	instrumentPath := flag.String("instrument", "", "Instrument definition JSON path")
	index := flag.Int("index", 0, "Instrument index within the definition file")
	notes := flag.String("notes", "60:100:0:1.5", "Notes as key:velocity:start:duration, comma separated")
	duration := flag.Float64("duration", 3.0, "Total render duration in seconds")
	sampleRate := flag.Int("sample-rate", 48000, "Engine sample rate in Hz")
	fileRate := flag.Int("file-rate", 0, "Output file sample rate (0 = engine rate)")
	output := flag.String("output", "output.wav", "Output WAV file path")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *instrumentPath == "" {
		fmt.Fprintln(os.Stderr, "missing -instrument")
		os.Exit(1)
	}
	noteList, err := parseNotes(*notes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing notes: %v\n", err)
		os.Exit(1)
	}

	params := sampler.NewDefaultParams()
	params.SampleRate = *sampleRate
	params.Channels = 1

	loader := preset.NewLoader(params.PreloadFrames, params.MaxSamplesPerCycle, params.MaxPitchOctaves, logger)
	engine, err := sampler.New(params, loader, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}
	engine.Start()
	defer engine.Stop()

	id := sampler.InstrumentID{Path: *instrumentPath, Index: *index}
	if err := engine.AssignInstrument(0, id); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading instrument: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rendering %d notes for %.2f seconds at %d Hz...\n", len(noteList), *duration, *sampleRate)

	totalFrames := int(float64(*sampleRate) * (*duration))
	block := params.MaxSamplesPerCycle
	left := make([]float32, block)
	right := make([]float32, block)
	out := make([]float32, 0, totalFrames*2)

	frameToSec := 1.0 / float64(*sampleRate)
	rendered := 0
	for rendered < totalFrames {
		n := block
		if rendered+n > totalFrames {
			n = totalFrames - rendered
		}

		t0 := float64(rendered) * frameToSec
		t1 := float64(rendered+n) * frameToSec
		for _, ns := range noteList {
			if ns.start >= t0 && ns.start < t1 {
				ev := sampler.Event{Type: sampler.EventNoteOn, Key: uint8(ns.key), Velocity: uint8(ns.velocity)}
				engine.SendEvent(ev)
			}
			off := ns.start + ns.duration
			if off >= t0 && off < t1 {
				ev := sampler.Event{Type: sampler.EventNoteOff, Key: uint8(ns.key)}
				engine.SendEvent(ev)
			}
		}

		engine.RenderAudio(left[:n], right[:n])
		for i := 0; i < n; i++ {
			out = append(out, left[i], right[i])
		}
		rendered += n
	}

	if *fileRate != 0 && *fileRate != *sampleRate {
		out, err = wavutil.ResampleStereoIfNeeded(out, *sampleRate, *fileRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resampling: %v\n", err)
			os.Exit(1)
		}
		*sampleRate = *fileRate
	}

	if err := wavutil.WriteStereoInterleavedWAV(*output, out, *sampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%d frames", *output, len(out)/2)
	if u := engine.Underruns(); u > 0 {
		fmt.Printf(", %d stream underruns", u)
	}
	fmt.Println(")")
}
