// Package pipeline wires the wire decoder, sample source, swing detector and
// persistence into one single-consumer processing chain per sensor stream.
package pipeline

import (
	"context"

	"github.com/batmetrics/swing.report/internal/imu"
	"github.com/batmetrics/swing.report/internal/monitoring"
	"github.com/batmetrics/swing.report/internal/swing"
)

// DefaultMaxEventSamples bounds the raw buffer for one swing window. At a
// ~200Hz delivery rate this is roughly 20 seconds, far beyond any real swing;
// hitting the cap means the detector is stuck open on a noisy stream.
const DefaultMaxEventSamples = 4096

// RawSample is one sensor reading buffered for a swing window. The offset is
// relative to the window's first sample, so persisted batches are
// self-contained and replayable against their event.
type RawSample struct {
	OffsetMicros int64
	Accel        imu.Vec3
	Gyro         imu.Vec3
}

// Store is the persistence collaborator. SaveSwing stores one completed event
// and returns its opaque identifier; SaveRawBatch stores the event's raw
// samples in a single atomic write keyed by that identifier.
type Store interface {
	SaveSwing(ctx context.Context, ev swing.Event) (string, error)
	SaveRawBatch(ctx context.Context, id string, samples []RawSample) error
}

// AssemblerCounters is a snapshot of the assembler's commit accounting.
type AssemblerCounters struct {
	Commits   uint64 // events persisted with their full raw batch
	Failures  uint64 // events whose persistence failed; raw batch dropped
	Truncated uint64 // samples discarded because the window buffer was full
}

// Assembler buffers raw samples for the currently open swing window and
// commits each completed event together with its samples. It is owned by the
// feeding goroutine and is not safe for concurrent use.
type Assembler struct {
	store      Store
	maxSamples int

	buf         []RawSample
	firstMicros int64

	counters AssemblerCounters
}

// NewAssembler creates an Assembler over the given store. maxSamples <= 0
// selects DefaultMaxEventSamples.
func NewAssembler(store Store, maxSamples int) *Assembler {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxEventSamples
	}
	return &Assembler{store: store, maxSamples: maxSamples}
}

// Observe consumes one processed sample along with the detector's resulting
// state and any events it completed. The sample is buffered whenever a swing
// window is open, including the sample that confirmed the window's end, so a
// committed batch always spans the full event.
//
// The returned id is non-empty only when a commit succeeded; the returned
// error reports a failed commit. Either way the stream continues: persistence
// failures never affect buffering of the next swing.
func (a *Assembler) Observe(ctx context.Context, s imu.Sample, state swing.State, events []swing.Event) (string, error) {
	open := state == swing.StateRising || state == swing.StateSwinging
	if open || len(events) > 0 {
		a.append(s)
	}

	var id string
	var err error
	for _, ev := range events {
		id, err = a.commit(ctx, ev)
	}

	// Back to idle with nothing emitted: the candidate swing was a false
	// alarm and its buffered samples are discarded.
	if state == swing.StateIdle {
		a.clear()
	}
	return id, err
}

// CommitDegraded persists a force-closed event with whatever samples were
// buffered when the stream stopped.
func (a *Assembler) CommitDegraded(ctx context.Context, ev swing.Event) (string, error) {
	return a.commit(ctx, ev)
}

// Reset discards any in-flight buffer without persisting. Used at session
// boundaries and when a stopped stream's partial swing is not worth keeping.
func (a *Assembler) Reset() {
	a.clear()
}

// Buffered returns the number of samples currently held for the open window.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Counters returns a snapshot of the commit accounting.
func (a *Assembler) Counters() AssemblerCounters {
	return a.counters
}

func (a *Assembler) append(s imu.Sample) {
	if len(a.buf) == 0 {
		a.firstMicros = s.TimestampMicros
	}
	if len(a.buf) >= a.maxSamples {
		a.counters.Truncated++
		return
	}
	a.buf = append(a.buf, RawSample{
		OffsetMicros: s.TimestampMicros - a.firstMicros,
		Accel:        s.Accel,
		Gyro:         s.Gyro,
	})
}

// commit persists the event, then its raw batch. The buffer is cleared
// unconditionally: a failed event save drops the batch rather than retrying
// from memory, which bounds the assembler at one window of samples.
func (a *Assembler) commit(ctx context.Context, ev swing.Event) (string, error) {
	samples := a.buf
	defer a.clear()

	id, err := a.store.SaveSwing(ctx, ev)
	if err != nil {
		a.counters.Failures++
		monitoring.Logf("pipeline: dropping %d raw samples, swing save failed: %v", len(samples), err)
		return "", err
	}
	if err := a.store.SaveRawBatch(ctx, id, samples); err != nil {
		a.counters.Failures++
		monitoring.Logf("pipeline: raw batch for swing %s failed: %v", id, err)
		return id, err
	}
	a.counters.Commits++
	return id, nil
}

func (a *Assembler) clear() {
	a.buf = a.buf[:0]
	a.firstMicros = 0
}
