package wire

import "encoding/binary"

// Measurement is one decoded frame payload in SI units: acceleration in m/s²
// and angular rate in rad/s, axis order x, y, z.
type Measurement struct {
	Accel [3]float64
	Gyro  [3]float64
}

// DecoderConfig configures frame validation.
type DecoderConfig struct {
	// EnforceChecksum selects the 21-byte frame variant with a trailing
	// checksum byte. Firmware 2.1+ sends checksums; older revisions do
	// not, and there is no way to detect the revision at runtime.
	EnforceChecksum bool
}

// Decoder validates one fixed-length frame at a time and converts its
// fixed-point fields to SI units. Validation failures are not errors: the
// frame is dropped, a counter is bumped, and the stream continues.
type Decoder struct {
	checksum bool

	decoded uint64
	drops   uint64
}

// NewDecoder returns a Decoder for the configured frame variant.
func NewDecoder(cfg DecoderConfig) *Decoder {
	return &Decoder{checksum: cfg.EnforceChecksum}
}

// FrameLen returns the frame length this decoder expects, for pairing with a
// Reassembler.
func (d *Decoder) FrameLen() int {
	return FrameLen(d.checksum)
}

// Decode validates frame and converts it to a Measurement. ok is false when
// the frame fails any validation step (sync byte, type tag, length,
// checksum); the caller should move on to the next frame.
func (d *Decoder) Decode(frame []byte) (m Measurement, ok bool) {
	if len(frame) != d.FrameLen() || frame[0] != SyncByte || frame[1] != TypeIMU {
		d.drops++
		return Measurement{}, false
	}
	if d.checksum && Checksum(frame[:BaseFrameLen]) != frame[BaseFrameLen] {
		d.drops++
		return Measurement{}, false
	}

	for axis := 0; axis < 3; axis++ {
		raw := int16(binary.LittleEndian.Uint16(frame[2+2*axis:]))
		m.Accel[axis] = float64(raw) / rawScale * AccelFullScaleG * Gravity
	}
	for axis := 0; axis < 3; axis++ {
		raw := int16(binary.LittleEndian.Uint16(frame[8+2*axis:]))
		m.Gyro[axis] = float64(raw) / rawScale * GyroFullScaleDPS * DegToRad
	}
	// Orientation fields occupy bytes 14-19. Read them to keep the layout
	// honest but discard the values: orientation tracking is done on the
	// phone, not here.
	for axis := 0; axis < 3; axis++ {
		_ = int16(binary.LittleEndian.Uint16(frame[14+2*axis:]))
	}

	d.decoded++
	return m, true
}

// Decoded returns the number of frames successfully decoded.
func (d *Decoder) Decoded() uint64 {
	return d.decoded
}

// Drops returns the number of frames rejected by validation.
func (d *Decoder) Drops() uint64 {
	return d.drops
}
