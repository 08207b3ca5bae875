// Package swing classifies an ordered IMU sample stream into discrete swing
// events using dual-threshold hysteresis with rise/fall debouncing and
// refractory suppression, and computes the physical speed metrics for each
// completed swing.
package swing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSettings is returned when a settings update carries a
	// non-positive threshold. The previous settings stay active.
	ErrInvalidSettings = errors.New("invalid swing settings")

	// ErrInvalidGeometry is returned when a geometry update carries a
	// non-positive radius or gain. The previous geometry stays active.
	ErrInvalidGeometry = errors.New("invalid bat geometry")
)

// Settings holds the detection thresholds and debounce durations. All
// thresholds must be strictly positive; durations may be zero.
type Settings struct {
	StartAccel float64 // m/s², dynamic acceleration to arm a swing start
	EndAccel   float64 // m/s², dynamic acceleration below which a swing may end
	EndGyro    float64 // rad/s, perpendicular angular rate below which a swing may end

	RiseTime   time.Duration // continuous time above StartAccel before SWINGING
	FallTime   time.Duration // continuous time below both end thresholds before the swing ends
	Refractory time.Duration // quiet window after a swing during which new starts are ignored
}

// Validate reports whether the settings are usable.
func (s Settings) Validate() error {
	if s.StartAccel <= 0 {
		return fmt.Errorf("%w: start accel threshold %f must be > 0", ErrInvalidSettings, s.StartAccel)
	}
	if s.EndAccel <= 0 {
		return fmt.Errorf("%w: end accel threshold %f must be > 0", ErrInvalidSettings, s.EndAccel)
	}
	if s.EndGyro <= 0 {
		return fmt.Errorf("%w: end gyro threshold %f must be > 0", ErrInvalidSettings, s.EndGyro)
	}
	if s.RiseTime < 0 || s.FallTime < 0 || s.Refractory < 0 {
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidSettings)
	}
	return nil
}

// DefaultSettings are tuned for an adult baseball swing at a ~200Hz sample
// rate; they are the fallback when no configuration file overrides them.
var DefaultSettings = Settings{
	StartAccel: 3.5,
	EndAccel:   1.8,
	EndGyro:    3.0,
	RiseTime:   25 * time.Millisecond,
	FallTime:   50 * time.Millisecond,
	Refractory: 200 * time.Millisecond,
}

// Geometry describes the bat and mount: the effective radius from the
// rotation centre to the sweet spot (sweet-spot distance minus hand
// distance) and a per-player calibration gain. Both must be > 0.
type Geometry struct {
	Radius float64 // metres
	Gain   float64 // dimensionless calibration factor
}

// Validate reports whether the geometry is usable.
func (g Geometry) Validate() error {
	if g.Radius <= 0 {
		return fmt.Errorf("%w: radius %f must be > 0", ErrInvalidGeometry, g.Radius)
	}
	if g.Gain <= 0 {
		return fmt.Errorf("%w: gain %f must be > 0", ErrInvalidGeometry, g.Gain)
	}
	return nil
}

// DefaultGeometry matches a 33" bat gripped at the knob.
var DefaultGeometry = Geometry{
	Radius: 0.63,
	Gain:   1.0,
}

// Event is one completed swing. Emitted exactly once, at the moment the fall
// condition is confirmed.
type Event struct {
	StartMicros int64 // arrival time of the first rising sample
	EndMicros   int64 // arrival time of the sample that confirmed the end

	PeakGyro    float64 // rad/s, running maximum of the perpendicular angular rate
	TipSpeed    float64 // m/s, PeakGyro × radius × gain
	SampleCount int     // samples observed between start and end inclusive
	SampleRate  float64 // Hz, SampleCount over the event duration

	// ImpactAngleDeg is the swing-plane angle at peak rotation, derived
	// from the two perpendicular gyro axes. Nil when the swing was
	// force-closed before a usable peak was observed.
	ImpactAngleDeg *float64

	// Degraded marks an event force-closed at stream shutdown rather than
	// ended by the detector's fall condition.
	Degraded bool
}

// DurationMicros returns the event length in microseconds.
func (e Event) DurationMicros() int64 {
	return e.EndMicros - e.StartMicros
}

// State is the detector's hysteresis state. Process returns it alongside the
// emitted events so callers never need a separately polled "is swinging"
// flag.
type State int

const (
	StateIdle State = iota
	StateRising
	StateSwinging
	StateRefractory
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRising:
		return "rising"
	case StateSwinging:
		return "swinging"
	case StateRefractory:
		return "refractory"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
