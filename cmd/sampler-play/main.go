// Command sampler-play plays a sampled instrument in real time through
// the default audio device, cycling through a fixed note pattern.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-sampler/preset"
	"github.com/cwbudde/algo-sampler/sampler"
)

// engineReader adapts the engine's pull-model render cycle to oto's
// io.Reader callback. Read runs on oto's audio goroutine, which is the
// engine's real-time thread.
type engineReader struct {
	engine *sampler.Engine
	left   []float32
	right  []float32
}

func newEngineReader(e *sampler.Engine) *engineReader {
	return &engineReader{
		engine: e,
		left:   make([]float32, e.MaxSamplesPerCycle()),
		right:  make([]float32, e.MaxSamplesPerCycle()),
	}
}

func (r *engineReader) Read(p []byte) (int, error) {
	frames := len(p) / 8 // two float32 channels per frame
	done := 0
	for done < frames {
		n := frames - done
		if n > len(r.left) {
			n = len(r.left)
		}
		r.engine.RenderAudio(r.left[:n], r.right[:n])
		for i := 0; i < n; i++ {
			off := (done + i) * 8
			binary.LittleEndian.PutUint32(p[off:], math.Float32bits(r.left[i]))
			binary.LittleEndian.PutUint32(p[off+4:], math.Float32bits(r.right[i]))
		}
		done += n
	}
	return frames * 8, nil
}

func parseKeys(s string) ([]int, error) {
	var keys []int
	for _, part := range strings.Split(s, ",") {
		k, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || k < 0 || k > 127 {
			return nil, fmt.Errorf("bad key %q", part)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func main() {
	instrumentPath := flag.String("instrument", "", "Instrument definition JSON path")
	index := flag.Int("index", 0, "Instrument index within the definition file")
	keys := flag.String("keys", "60,64,67,72", "Keys to cycle through, comma separated")
	velocity := flag.Int("velocity", 100, "Note velocity (1-127)")
	noteMillis := flag.Int("note-ms", 400, "Note duration in milliseconds")
	sampleRate := flag.Int("sample-rate", 48000, "Engine sample rate in Hz")
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
	keyList, err := parseKeys(*keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing keys: %v\n", err)
		os.Exit(1)
	}

	params := sampler.NewDefaultParams()
	params.SampleRate = *sampleRate
	params.MaxSamplesPerCycle = 512
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

	op := &oto.NewContextOptions{
		SampleRate:   *sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audio device: %v\n", err)
		os.Exit(1)
	}
	<-ready

	player := ctx.NewPlayer(newEngineReader(engine))
	player.Play()
	defer player.Close()

	fmt.Printf("Playing %s, ctrl-c to quit...\n", *instrumentPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	noteDur := time.Duration(*noteMillis) * time.Millisecond
	i := 0
	for {
		key := uint8(keyList[i%len(keyList)])
		engine.SendEvent(sampler.Event{
			Type: sampler.EventNoteOn, Key: key, Velocity: uint8(*velocity), Time: time.Now(),
		})
		select {
		case <-sig:
			fmt.Println("\nbye")
			return
		case <-time.After(noteDur):
		}
		engine.SendEvent(sampler.Event{Type: sampler.EventNoteOff, Key: key, Time: time.Now()})
		i++
	}
}
