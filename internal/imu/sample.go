// Package imu defines the typed sensor sample model and the sample source
// that turns the wire byte stream into an ordered sample sequence.
package imu

import "math"

// Vec3 is a three-axis vector; units are implied by context (m/s² for
// acceleration, rad/s for angular rate).
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean magnitude of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Sample is one decoded sensor reading. TimestampMicros is the arrival time
// in microseconds since the Unix epoch, assigned by the receiver: the sensor
// carries no synchronised clock, so inter-sample spacing reflects delivery
// jitter rather than true hardware timing.
type Sample struct {
	TimestampMicros int64
	Accel           Vec3 // m/s²
	Gyro            Vec3 // rad/s
}
