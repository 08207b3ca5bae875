package imu

import (
	"github.com/batmetrics/swing.report/internal/timeutil"
	"github.com/batmetrics/swing.report/internal/wire"
)

// SampleObserver is notified once per decoded sample, in stream order. It
// runs on the feeding goroutine and must not block.
type SampleObserver func(Sample)

// SourceCounters is a snapshot of the source's non-fatal error counters.
type SourceCounters struct {
	Resyncs uint64 // reassembler byte discards
	Decoded uint64 // frames decoded into samples
	Drops   uint64 // frames rejected by validation
}

// Source composes a frame reassembler and decoder into a continuous sample
// sequence with strictly increasing arrival timestamps.
//
// A Source serves one connection; it is single-consumer and not safe for
// concurrent use. Independent streams need independent Sources.
type Source struct {
	re    *wire.Reassembler
	dec   *wire.Decoder
	clock timeutil.Clock

	lastMicros int64
	observer   SampleObserver
}

// NewSource creates a Source for the given frame variant. clock supplies
// arrival timestamps; pass timeutil.RealClock{} outside of tests.
func NewSource(cfg wire.DecoderConfig, clock timeutil.Clock) *Source {
	dec := wire.NewDecoder(cfg)
	return &Source{
		re:    wire.NewReassembler(dec.FrameLen()),
		dec:   dec,
		clock: clock,
	}
}

// SetObserver installs the per-sample notification hook. Must be called
// before feeding begins.
func (s *Source) SetObserver(fn SampleObserver) {
	s.observer = fn
}

// Feed consumes one transport chunk and returns the samples completed by it,
// in arrival order. Malformed bytes and invalid frames are dropped and
// counted, never returned as errors.
//
// Timestamps are strictly increasing within the stream: frames decoded from
// the same chunk share one arrival instant, so later frames are bumped
// forward by a microsecond each.
func (s *Source) Feed(chunk []byte) []Sample {
	frames := s.re.Feed(chunk)
	if len(frames) == 0 {
		return nil
	}

	arrival := s.clock.Now().UnixMicro()
	samples := make([]Sample, 0, len(frames))
	for _, frame := range frames {
		m, ok := s.dec.Decode(frame)
		if !ok {
			continue
		}
		ts := arrival
		if ts <= s.lastMicros {
			ts = s.lastMicros + 1
		}
		s.lastMicros = ts

		sample := Sample{
			TimestampMicros: ts,
			Accel:           Vec3{m.Accel[0], m.Accel[1], m.Accel[2]},
			Gyro:            Vec3{m.Gyro[0], m.Gyro[1], m.Gyro[2]},
		}
		samples = append(samples, sample)
		if s.observer != nil {
			s.observer(sample)
		}
	}
	return samples
}

// Counters returns a snapshot of the stream health counters.
func (s *Source) Counters() SourceCounters {
	return SourceCounters{
		Resyncs: s.re.Resyncs(),
		Decoded: s.dec.Decoded(),
		Drops:   s.dec.Drops(),
	}
}
