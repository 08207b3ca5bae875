package wire

import (
	"encoding/binary"
	"math"
)

// EncodeFrame builds a frame carrying m, the inverse of Decode. The stream
// simulator and tests use it; real sensors produce these bytes in firmware.
// Values beyond full scale saturate the way the sensor's own ADC would. The
// orientation words are zeroed.
func EncodeFrame(m Measurement, checksum bool) []byte {
	b := make([]byte, FrameLen(checksum))
	b[0] = SyncByte
	b[1] = TypeIMU
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint16(b[2+2*i:], uint16(toRaw(m.Accel[i], AccelFullScaleG*Gravity)))
		binary.LittleEndian.PutUint16(b[8+2*i:], uint16(toRaw(m.Gyro[i], GyroFullScaleDPS*DegToRad)))
	}
	if checksum {
		b[BaseFrameLen] = Checksum(b[:BaseFrameLen])
	}
	return b
}

func toRaw(v, fullScale float64) int16 {
	raw := math.Round(v / fullScale * rawScale)
	if raw > math.MaxInt16 {
		return math.MaxInt16
	}
	if raw < math.MinInt16 {
		return math.MinInt16
	}
	return int16(raw)
}
