package sensorport

import (
	"context"
	"time"

	"github.com/batmetrics/swing.report/internal/wire"
)

// Simulator is a Port that synthesises a plausible sensor stream: a quiet bat
// with one clean swing every few seconds. Used by the -dev mode so the whole
// pipeline runs without hardware.
type Simulator struct {
	// FrameInterval is the synthetic sample cadence; zero means 5ms (200Hz).
	FrameInterval time.Duration

	// Checksum selects the 21-byte frame variant.
	Checksum bool

	chunks chan []byte
}

// NewSimulator creates a Simulator with the default cadence.
func NewSimulator(checksum bool) *Simulator {
	return &Simulator{
		Checksum: checksum,
		chunks:   make(chan []byte),
	}
}

// Chunks returns the chunk delivery channel.
func (s *Simulator) Chunks() <-chan []byte {
	return s.chunks
}

// Monitor emits one frame per tick until ctx is cancelled.
func (s *Simulator) Monitor(ctx context.Context) error {
	interval := s.FrameInterval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame := wire.EncodeFrame(s.measurementAt(tick), s.Checksum)
		tick++
		select {
		case s.chunks <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close implements Port.
func (s *Simulator) Close() error {
	return nil
}

// measurementAt scripts a 3-second loop: rest, a hard 40ms acceleration
// burst, 60ms of fast rotation, then decay back to rest.
func (s *Simulator) measurementAt(tick int) wire.Measurement {
	const cycle = 600 // ticks per swing at the default 5ms cadence
	phase := tick % cycle

	m := wire.Measurement{Accel: [3]float64{0, 0, wire.Gravity}}
	switch {
	case phase < 8: // load and launch
		m.Accel[0] = 50
		m.Gyro = [3]float64{2, 2, -0.5}
	case phase < 20: // barrel through the zone
		m.Accel[0] = 8
		m.Gyro = [3]float64{15, 15, -3}
	case phase < 32: // follow-through decay
		m.Accel[0] = 1
		m.Gyro = [3]float64{1, 1, -0.3}
	}
	return m
}
