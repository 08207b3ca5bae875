// Package recorder runs one sensor stream: it pumps transport chunks from a
// port into the processing pipeline and serialises runtime retuning against
// the feed. The pipeline itself is single-consumer; the recorder is the one
// place that owns it once recording starts.
package recorder

import (
	"context"
	"sync"

	"github.com/batmetrics/swing.report/internal/monitoring"
	"github.com/batmetrics/swing.report/internal/pipeline"
	"github.com/batmetrics/swing.report/internal/sensorport"
	"github.com/batmetrics/swing.report/internal/swing"
)

// Recorder couples a chunk source to a pipeline. All public methods are safe
// for concurrent use with a running Run loop.
type Recorder struct {
	port sensorport.Port

	// KeepPartialOnStop decides the fate of a swing still open when the
	// stream stops: committed as a degraded event when true, discarded
	// when false. Set before Run.
	KeepPartialOnStop bool

	mu   sync.Mutex
	pipe *pipeline.Pipeline
}

// New creates a Recorder feeding pipe from port. Partial swings are kept on
// stop by default.
func New(pipe *pipeline.Pipeline, port sensorport.Port) *Recorder {
	return &Recorder{
		port:              port,
		KeepPartialOnStop: true,
		pipe:              pipe,
	}
}

// Run monitors the port and feeds the pipeline until ctx is cancelled or the
// transport fails. On exit the stream is drained per KeepPartialOnStop.
// Run is not reentrant; call it once per Recorder.
func (r *Recorder) Run(ctx context.Context) error {
	monitorErr := make(chan error, 1)
	go func() { monitorErr <- r.port.Monitor(ctx) }()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err = <-monitorErr:
			break loop
		case chunk := <-r.port.Chunks():
			if feedErr := r.feed(ctx, chunk); feedErr != nil {
				// Persistence trouble: the stream stays live, the
				// failed commit is already counted and logged.
				monitoring.Logf("recorder: %v", feedErr)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if drainErr := r.pipe.Drain(context.Background(), r.KeepPartialOnStop); drainErr != nil {
		monitoring.Logf("recorder: draining final swing: %v", drainErr)
	}
	return err
}

func (r *Recorder) feed(ctx context.Context, chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.FeedChunk(ctx, chunk)
}

// UpdateSettings retunes the detector between chunks. Invalid settings are
// rejected with the previous ones still active.
func (r *Recorder) UpdateSettings(s swing.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.UpdateSettings(s)
}

// UpdateGeometry retunes the bat geometry between chunks.
func (r *Recorder) UpdateGeometry(g swing.Geometry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.UpdateGeometry(g)
}

// Settings returns the active detector settings.
func (r *Recorder) Settings() swing.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.Settings()
}

// Geometry returns the active bat geometry.
func (r *Recorder) Geometry() swing.Geometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.Geometry()
}

// State returns the detector state after the most recent sample.
func (r *Recorder) State() swing.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.State()
}

// Counters returns a snapshot of the stream health counters.
func (r *Recorder) Counters() pipeline.Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipe.Counters()
}

// Reset clears all stream state at a session boundary.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipe.Reset()
}
