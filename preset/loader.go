package preset

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-sampler/resource"
	"github.com/cwbudde/algo-sampler/sampler"
	"github.com/cwbudde/algo-sampler/sndfile"
)

// Loader implements sampler.InstrumentLoader for JSON instrument
// definitions. Sample files are opened once and shared across all
// instruments that reference them; a file is closed when the last
// instrument using it is unloaded.
type Loader struct {
	preloadFrames      int
	maxSamplesPerCycle int
	maxPitchOctaves    int

	files *resource.Manager[string, *sndfile.File]

	mu       sync.Mutex
	borrowed map[*sampler.Instrument][]string // file paths held per instrument

	log *logrus.Entry
}

type fileHooks struct{ log *logrus.Entry }

func (h fileHooks) Create(path string, _ resource.Consumer, _ func(float32)) (*sndfile.File, error) {
	h.log.WithField("file", path).Debug("opening sample file")
	return sndfile.Open(path)
}

func (h fileHooks) Destroy(path string, f *sndfile.File) {
	h.log.WithField("file", path).Debug("closing sample file")
	f.Close()
}

func (h fileHooks) OnBorrow(string, *sndfile.File, resource.Consumer) {}

// NewLoader creates a loader. preloadFrames bounds the RAM cache per
// sample; maxSamplesPerCycle and maxPitchOctaves size the silence pad
// the interpolator may read past a sample's end.
func NewLoader(preloadFrames, maxSamplesPerCycle, maxPitchOctaves int, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	log := logger.WithField("component", "preset")
	return &Loader{
		preloadFrames:      preloadFrames,
		maxSamplesPerCycle: maxSamplesPerCycle,
		maxPitchOctaves:    maxPitchOctaves,
		files:              resource.NewManager[string, *sndfile.File](fileHooks{log: log}),
		borrowed:           make(map[*sampler.Instrument][]string),
		log:                log,
	}
}

// OnResourceProgress satisfies resource.Consumer for the loader's own
// file borrows.
func (l *Loader) OnResourceProgress(float32) {}

func (l *Loader) silencePad() int {
	return (l.maxSamplesPerCycle << l.maxPitchOctaves) + 3
}

// Load parses the instrument at id and caches the initial frames of
// every referenced sample. Progress runs from 0 to 1 across the
// regions.
func (l *Loader) Load(id sampler.InstrumentID, progress func(float32)) (*sampler.Instrument, error) {
	def, err := LoadFile(id.Path)
	if err != nil {
		return nil, err
	}
	if id.Index < 0 || id.Index >= len(def.Instruments) {
		return nil, fmt.Errorf("%q has no instrument with index %d", id.Path, id.Index)
	}
	isp := &def.Instruments[id.Index]
	if progress != nil {
		progress(0.1)
	}

	ins := &sampler.Instrument{Name: isp.Name}
	if isp.Attenuation != nil {
		ins.Attenuation = *isp.Attenuation
	}
	if isp.PitchBendRange != nil {
		ins.PitchBendRange = *isp.PitchBendRange
	}

	baseDir := filepath.Dir(id.Path)
	var paths []string
	samples := make(map[string]*sampler.Sample)

	fail := func(err error) (*sampler.Instrument, error) {
		for _, p := range paths {
			l.files.HandBack(p, l)
		}
		return nil, err
	}

	for i := range isp.Regions {
		rs := &isp.Regions[i]
		samplePath := rs.Sample
		if !filepath.IsAbs(samplePath) {
			samplePath = filepath.Clean(filepath.Join(baseDir, samplePath))
		}

		smp, ok := samples[sampleKey(samplePath, rs.Loop)]
		if !ok {
			file, err := l.files.Borrow(samplePath, l)
			if err != nil {
				return fail(fmt.Errorf("instrument %q region %d: %w", isp.Name, i, err))
			}
			paths = append(paths, samplePath)

			smp, err = l.buildSample(samplePath, file, rs)
			if err != nil {
				return fail(fmt.Errorf("instrument %q region %d: %w", isp.Name, i, err))
			}
			samples[sampleKey(samplePath, rs.Loop)] = smp
		}

		ins.Regions = append(ins.Regions, buildRegion(rs, smp))
		if progress != nil {
			progress(0.1 + 0.9*float32(i+1)/float32(len(isp.Regions)))
		}
	}

	if err := ins.Finalize(); err != nil {
		return fail(err)
	}

	l.mu.Lock()
	l.borrowed[ins] = paths
	l.mu.Unlock()

	l.log.WithField("instrument", ins.Name).
		WithField("regions", len(ins.Regions)).Info("instrument loaded")
	return ins, nil
}

func sampleKey(path string, loop *LoopSpec) string {
	if loop == nil {
		return path
	}
	return fmt.Sprintf("%s#%d-%d-%d", path, loop.Start, loop.End, loop.PlayCount)
}

func (l *Loader) buildSample(path string, file *sndfile.File, rs *RegionSpec) (*sampler.Sample, error) {
	info := file.Info()
	smp := &sampler.Sample{
		Path:        path,
		Frames:      info.Frames,
		Channels:    info.Channels,
		SampleRate:  info.SampleRate,
		Attenuation: 1.0,
		Reader:      file,
	}
	if rs.Loop != nil {
		if rs.Loop.End > info.Frames {
			return nil, fmt.Errorf("loop end %d past sample end %d", rs.Loop.End, info.Frames)
		}
		smp.Loops = true
		smp.Loop = sampler.Loop{
			Start:     rs.Loop.Start,
			End:       rs.Loop.End,
			PlayCount: rs.Loop.PlayCount,
		}
	}

	preload := l.preloadFrames
	if !file.Streamable() {
		// Sequential formats cannot be streamed; cache them whole.
		preload = info.Frames
	}
	if err := smp.CacheInitial(preload, l.silencePad()); err != nil {
		return nil, err
	}
	return smp, nil
}

func buildRegion(rs *RegionSpec, smp *sampler.Sample) *sampler.Region {
	r := &sampler.Region{
		Sample:            smp,
		KeyLow:            rs.KeyLow,
		KeyHigh:           rs.KeyHigh,
		VelLow:            rs.VelLow,
		VelHigh:           rs.VelHigh,
		Controller:        rs.Controller,
		CtlLow:            rs.CtlLow,
		CtlHigh:           rs.CtlHigh,
		Layer:             rs.Layer,
		ReleaseTrigger:    rs.ReleaseTrigger,
		KeyGroup:          rs.KeyGroup,
		UnityNote:         rs.UnityNote,
		FineTune:          rs.FineTune,
		PitchTrack:        !rs.NoPitchTrack,
		Pan:               rs.Pan,
		SampleStartOffset: rs.SampleStartOffset,
		VelocityResponse:  velocityCurve(rs.VelocityResponse),
		VelocityDepth:     rs.VelocityDepth,

		AttenuationController: controllerType(rs.AttenuationController),
		AttenuationCC:         rs.AttenuationCC,
		ReleaseTriggerDecay:   rs.ReleaseTriggerDecay,

		EG1:  egParams(rs.EG1),
		EG2:  egParams(rs.EG2),
		LFO1: lfoParams(rs.LFO1),
		LFO2: lfoParams(rs.LFO2),
		LFO3: lfoParams(rs.LFO3),
	}
	if rs.Attenuation != nil {
		r.Attenuation = *rs.Attenuation
	}
	if rs.EG3 != nil {
		r.EG3 = sampler.EG3Params{Depth: rs.EG3.Depth, Attack: rs.EG3.Attack}
	}
	if rs.Crossfade != nil {
		r.CrossfadeCurve = sampler.Crossfade{
			InStart:  rs.Crossfade.InStart,
			InEnd:    rs.Crossfade.InEnd,
			OutStart: rs.Crossfade.OutStart,
			OutEnd:   rs.Crossfade.OutEnd,
		}
	}
	if rs.Filter != nil {
		r.Filter = sampler.FilterParams{
			Enabled:             rs.Filter.Enabled,
			CutoffController:    rs.Filter.CutoffController,
			ResonanceController: rs.Filter.ResonanceController,
			StaticResonance:     rs.Filter.StaticResonance,
			VelocityScale:       rs.Filter.VelocityScale,
			KeyTracking:         rs.Filter.KeyTracking,
			KeyBreakpoint:       rs.Filter.KeyBreakpoint,
		}
	}
	return r
}

// Unload releases the sample files the instrument borrowed.
func (l *Loader) Unload(_ sampler.InstrumentID, ins *sampler.Instrument) {
	l.mu.Lock()
	paths := l.borrowed[ins]
	delete(l.borrowed, ins)
	l.mu.Unlock()
	for _, p := range paths {
		l.files.HandBack(p, l)
	}
}

// EnsureCached re-extends the silence pads of fully cached samples
// when a larger audio cycle shows up.
func (l *Loader) EnsureCached(ins *sampler.Instrument, maxSamplesPerCycle int) error {
	if maxSamplesPerCycle > l.maxSamplesPerCycle {
		l.maxSamplesPerCycle = maxSamplesPerCycle
	}
	for _, r := range ins.Regions {
		if err := r.Sample.EnsureSilencePad(l.silencePad()); err != nil {
			return err
		}
	}
	return nil
}

// OpenFiles returns the number of sample files currently held open,
// for monitoring and tests.
func (l *Loader) OpenFiles() int {
	return len(l.files.Keys())
}
