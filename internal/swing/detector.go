package swing

import (
	"math"

	"github.com/batmetrics/swing.report/internal/imu"
	"github.com/batmetrics/swing.report/internal/monitoring"
)

// gravityTauMicros is the time constant of the gravity-estimate low pass.
// The estimate only updates while the stream is quiet, so a long constant is
// safe and keeps slow mount-angle drift out of the dynamic signal.
const gravityTauMicros = 500_000

// Detector runs the swing hysteresis state machine over an ordered sample
// stream.
//
// The dynamic acceleration signal A(t) is the magnitude of the measured
// acceleration minus a slowly tracked gravity estimate, smoothed by
// median-of-3 and a ~20ms trailing moving average. The perpendicular angular
// rate W⊥(t) is taken from the two axes orthogonal to the bat's long (spin)
// axis, which is mounted along sensor Z.
//
// All durations are measured in wall-clock time from sample timestamp
// deltas, so the detector tolerates variable sample rate. A Detector is
// single-consumer: callers must serialise Process calls per stream.
type Detector struct {
	settings Settings
	geom     Geometry

	gravity imu.Vec3
	filter  *smoother

	state            State
	riseStartMicros  int64
	fallStartMicros  int64
	refractoryMicros int64 // entry time of the refractory window

	peakGyro    float64
	peakGyroX   float64
	peakGyroY   float64
	sampleCount int

	lastMicros int64
	clamps     uint64
}

// NewDetector validates the initial configuration and returns a Detector in
// the idle state.
func NewDetector(settings Settings, geom Geometry) (*Detector, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		settings: settings,
		geom:     geom,
		filter:   newSmoother(smoothWindowMicros),
	}
	d.seedGravity()
	return d, nil
}

// seedGravity assumes the bat is roughly at rest, sensor Z up, at session
// start. The estimate then tracks the true mount orientation while idle.
func (d *Detector) seedGravity() {
	d.gravity = imu.Vec3{X: 0, Y: 0, Z: 9.80665}
}

// UpdateSettings atomically replaces the thresholds and durations. Invalid
// settings are rejected and the previous configuration stays active.
// In-flight RISING/SWINGING state is preserved across the change.
func (d *Detector) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	d.settings = s
	return nil
}

// UpdateGeometry atomically replaces the bat geometry, with the same
// validation contract as UpdateSettings.
func (d *Detector) UpdateGeometry(g Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	d.geom = g
	return nil
}

// Settings returns the active settings.
func (d *Detector) Settings() Settings {
	return d.settings
}

// Geometry returns the active geometry.
func (d *Detector) Geometry() Geometry {
	return d.geom
}

// State returns the detector state after the most recent sample.
func (d *Detector) State() State {
	return d.state
}

// Reset clears all detector state at a session boundary. Configuration is
// retained.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.riseStartMicros = 0
	d.fallStartMicros = 0
	d.refractoryMicros = 0
	d.peakGyro = 0
	d.peakGyroX = 0
	d.peakGyroY = 0
	d.sampleCount = 0
	d.lastMicros = 0
	d.filter.reset()
	d.seedGravity()
}

// Clamps returns how many samples arrived with a non-positive timestamp
// delta and were clamped.
func (d *Detector) Clamps() uint64 {
	return d.clamps
}

// Process consumes one sample and returns the detector state after the
// sample plus any swing events it completed. The event slice is almost
// always empty or a single event; callers must treat it as a bounded list.
func (d *Detector) Process(s imu.Sample) (State, []Event) {
	ts := s.TimestampMicros
	var dt int64
	if d.lastMicros != 0 {
		dt = ts - d.lastMicros
		if dt <= 0 {
			// Out-of-order or duplicate arrival. Clamp to zero elapsed
			// time; never an error.
			monitoring.Logf("swing: clamped non-monotonic timestamp delta %dµs", dt)
			d.clamps++
			dt = 0
			ts = d.lastMicros
		}
	}
	d.lastMicros = ts

	a := d.filter.push(ts, s.Accel.Sub(d.gravity).Norm())
	wperp := math.Hypot(s.Gyro.X, s.Gyro.Y)

	var events []Event

	if d.state == StateRefractory {
		if ts-d.refractoryMicros >= d.settings.Refractory.Microseconds() {
			d.state = StateIdle
		} else {
			// Renewed rises inside the refractory window are ignored
			// entirely: one physical swing re-crossing the start
			// threshold during decay must not double-count.
			d.updateGravity(dt, s.Accel, a)
			return d.state, nil
		}
	}

	if d.state == StateIdle {
		d.updateGravity(dt, s.Accel, a)
		if a < d.settings.StartAccel {
			return d.state, nil
		}
		// Arm a candidate swing. Peak tracking starts here, on the first
		// rising sample, so the leading edge is never lost.
		d.state = StateRising
		d.riseStartMicros = ts
		d.fallStartMicros = 0
		d.peakGyro = 0
		d.sampleCount = 0
	}

	if d.state == StateRising {
		d.sampleCount++
		d.trackPeak(wperp, s.Gyro)
		if a < d.settings.StartAccel {
			// False alarm: the signal fell back before the rise time
			// elapsed. Discard, no event.
			d.state = StateIdle
			d.sampleCount = 0
			return d.state, nil
		}
		if ts-d.riseStartMicros >= d.settings.RiseTime.Microseconds() {
			d.state = StateSwinging
		}
	} else if d.state == StateSwinging {
		d.sampleCount++
		d.trackPeak(wperp, s.Gyro)
		if a < d.settings.EndAccel && wperp < d.settings.EndGyro {
			if d.fallStartMicros == 0 {
				d.fallStartMicros = ts
			}
			if ts-d.fallStartMicros >= d.settings.FallTime.Microseconds() {
				events = append(events, d.finishSwing(ts, false))
				d.state = StateRefractory
				d.refractoryMicros = ts
			}
		} else {
			d.fallStartMicros = 0
		}
	}

	return d.state, events
}

// ForceClose ends an in-flight swing at stream shutdown, emitting a degraded
// event with the metrics observed so far. It returns false when no swing is
// open. The detector lands in the idle state either way.
func (d *Detector) ForceClose() (Event, bool) {
	if d.state != StateRising && d.state != StateSwinging {
		d.state = StateIdle
		return Event{}, false
	}
	ev := d.finishSwing(d.lastMicros, true)
	d.state = StateIdle
	return ev, true
}

func (d *Detector) trackPeak(wperp float64, gyro imu.Vec3) {
	if wperp > d.peakGyro {
		d.peakGyro = wperp
		d.peakGyroX = gyro.X
		d.peakGyroY = gyro.Y
	}
}

func (d *Detector) finishSwing(endMicros int64, degraded bool) Event {
	ev := Event{
		StartMicros: d.riseStartMicros,
		EndMicros:   endMicros,
		PeakGyro:    d.peakGyro,
		TipSpeed:    d.peakGyro * d.geom.Radius * d.geom.Gain,
		SampleCount: d.sampleCount,
		Degraded:    degraded,
	}
	if dur := ev.DurationMicros(); dur > 0 {
		ev.SampleRate = float64(ev.SampleCount) / (float64(dur) / 1e6)
	}
	if !degraded && d.peakGyro > 0 {
		angle := math.Atan2(d.peakGyroY, d.peakGyroX) * 180 / math.Pi
		ev.ImpactAngleDeg = &angle
	}

	d.fallStartMicros = 0
	d.peakGyro = 0
	d.peakGyroX = 0
	d.peakGyroY = 0
	d.sampleCount = 0
	return ev
}

// updateGravity tracks the slow gravity contribution while the signal is
// quiet. The estimate is frozen during RISING/SWINGING so a long swing
// cannot bleed into it.
func (d *Detector) updateGravity(dtMicros int64, accel imu.Vec3, smoothedA float64) {
	if dtMicros <= 0 || smoothedA >= d.settings.StartAccel {
		return
	}
	alpha := float64(dtMicros) / float64(gravityTauMicros+dtMicros)
	d.gravity.X += alpha * (accel.X - d.gravity.X)
	d.gravity.Y += alpha * (accel.Y - d.gravity.Y)
	d.gravity.Z += alpha * (accel.Z - d.gravity.Z)
}
