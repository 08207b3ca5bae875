package pipeline

import (
	"context"

	"github.com/batmetrics/swing.report/internal/imu"
	"github.com/batmetrics/swing.report/internal/swing"
	"github.com/batmetrics/swing.report/internal/timeutil"
	"github.com/batmetrics/swing.report/internal/wire"
)

// EventObserver is notified once per completed swing, after its commit
// attempt. id is empty when persistence failed. It runs on the feeding
// goroutine and must not block.
type EventObserver func(id string, ev swing.Event)

// Config collects the per-stream tuning for a Pipeline.
type Config struct {
	Decoder  wire.DecoderConfig
	Settings swing.Settings
	Geometry swing.Geometry

	// MaxEventSamples bounds the raw buffer for one swing window;
	// <= 0 selects DefaultMaxEventSamples.
	MaxEventSamples int
}

// Counters aggregates the health counters of every pipeline stage.
type Counters struct {
	Resyncs uint64 // reassembler byte discards
	Decoded uint64 // frames decoded into samples
	Drops   uint64 // frames rejected by validation
	Clamps  uint64 // non-monotonic timestamps clamped

	Commits   uint64 // events persisted with their full raw batch
	Failures  uint64 // events whose persistence failed
	Truncated uint64 // raw samples discarded at the window buffer cap
}

// Pipeline runs one sensor stream end to end: transport chunks in, persisted
// swing events out. It owns a Source, a Detector and an Assembler and is
// single-consumer like they are; callers serialise FeedChunk/Drain/Reset per
// instance and run independent streams on independent Pipelines.
type Pipeline struct {
	src *imu.Source
	det *swing.Detector
	asm *Assembler

	eventObserver EventObserver
}

// New builds a Pipeline over the given store. clock supplies sample arrival
// timestamps; pass timeutil.RealClock{} outside of tests.
func New(cfg Config, store Store, clock timeutil.Clock) (*Pipeline, error) {
	det, err := swing.NewDetector(cfg.Settings, cfg.Geometry)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		src: imu.NewSource(cfg.Decoder, clock),
		det: det,
		asm: NewAssembler(store, cfg.MaxEventSamples),
	}, nil
}

// SetSampleObserver installs a per-decoded-sample hook, for live display.
// Must be called before feeding begins.
func (p *Pipeline) SetSampleObserver(fn imu.SampleObserver) {
	p.src.SetObserver(fn)
}

// SetEventObserver installs a per-completed-swing hook. Must be called before
// feeding begins.
func (p *Pipeline) SetEventObserver(fn EventObserver) {
	p.eventObserver = fn
}

// FeedChunk consumes one transport chunk, running every sample it completes
// through detection and assembly. Malformed bytes never produce an error;
// the returned error reports a failed event commit, after which the stream
// is still live and subsequent chunks process normally.
func (p *Pipeline) FeedChunk(ctx context.Context, chunk []byte) error {
	var firstErr error
	for _, s := range p.src.Feed(chunk) {
		state, events := p.det.Process(s)
		id, err := p.asm.Observe(ctx, s, state, events)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if p.eventObserver != nil {
			for _, ev := range events {
				p.eventObserver(id, ev)
			}
		}
	}
	return firstErr
}

// Drain ends the stream. With keepPartial set, an in-flight swing is
// force-closed and committed as a degraded event; otherwise it is discarded.
// Either way the pipeline is left idle and may be fed again.
func (p *Pipeline) Drain(ctx context.Context, keepPartial bool) error {
	ev, open := p.det.ForceClose()
	if !open || !keepPartial {
		p.asm.Reset()
		return nil
	}
	id, err := p.asm.CommitDegraded(ctx, ev)
	if p.eventObserver != nil {
		p.eventObserver(id, ev)
	}
	return err
}

// Reset clears all stream state at a session boundary: detector timers,
// filter history and any buffered raw samples. Configuration is retained.
func (p *Pipeline) Reset() {
	p.det.Reset()
	p.asm.Reset()
}

// State returns the detector state after the most recent sample.
func (p *Pipeline) State() swing.State {
	return p.det.State()
}

// UpdateSettings forwards a runtime settings change to the detector; invalid
// settings are rejected and the previous ones stay active.
func (p *Pipeline) UpdateSettings(s swing.Settings) error {
	return p.det.UpdateSettings(s)
}

// UpdateGeometry forwards a runtime geometry change to the detector.
func (p *Pipeline) UpdateGeometry(g swing.Geometry) error {
	return p.det.UpdateGeometry(g)
}

// Settings returns the detector's active settings.
func (p *Pipeline) Settings() swing.Settings {
	return p.det.Settings()
}

// Geometry returns the detector's active geometry.
func (p *Pipeline) Geometry() swing.Geometry {
	return p.det.Geometry()
}

// Counters returns a snapshot across all stages.
func (p *Pipeline) Counters() Counters {
	src := p.src.Counters()
	asm := p.asm.Counters()
	return Counters{
		Resyncs:   src.Resyncs,
		Decoded:   src.Decoded,
		Drops:     src.Drops,
		Clamps:    p.det.Clamps(),
		Commits:   asm.Commits,
		Failures:  asm.Failures,
		Truncated: asm.Truncated,
	}
}
