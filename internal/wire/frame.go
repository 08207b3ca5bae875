// Package wire implements the fixed-length IMU frame protocol spoken by the
// bat sensor firmware: reassembly of frames from an arbitrarily chunked byte
// stream and decoding of frames into SI-unit samples.
//
// Frame layout (20 bytes, little-endian int16 fields):
//
//	[0]     sync marker (0x55)
//	[1]     type tag
//	[2:8]   accelerometer x, y, z
//	[8:14]  gyroscope x, y, z
//	[14:20] orientation x, y, z (parsed for layout, not used)
//
// Firmware revisions since 2.1 append a single checksum byte equal to the low
// 8 bits of the sum of all preceding bytes. There is no runtime signal for
// the revision, so checksum presence is a configuration decision.
package wire

import "math"

// Frame format constants for the sensor serial protocol.
const (
	SyncByte = 0x55 // start-of-frame marker

	TypeIMU = 0x01 // accel + gyro + orientation payload

	// BaseFrameLen is the frame size without the optional trailing
	// checksum byte.
	BaseFrameLen = 20

	// ChecksumFrameLen is the frame size when the firmware appends a
	// checksum byte.
	ChecksumFrameLen = BaseFrameLen + 1
)

// Physical conversion constants. Full-scale ranges match the sensor's fixed
// accelerometer (±16 g) and gyro (±2000 °/s) configuration.
const (
	AccelFullScaleG  = 16.0
	GyroFullScaleDPS = 2000.0

	Gravity  = 9.80665               // m/s² per g
	DegToRad = math.Pi / 180.0       // degrees to radians
	rawScale = 32768.0               // int16 full-scale divisor
)

// FrameLen returns the on-wire frame length for the given checksum setting.
func FrameLen(checksum bool) int {
	if checksum {
		return ChecksumFrameLen
	}
	return BaseFrameLen
}

// Checksum computes the low 8 bits of the byte sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}
