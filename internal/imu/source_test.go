package imu

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/batmetrics/swing.report/internal/timeutil"
	"github.com/batmetrics/swing.report/internal/wire"
)

func encodeFrame(accel, gyro [3]float64, checksum bool) []byte {
	frame := make([]byte, wire.BaseFrameLen, wire.ChecksumFrameLen)
	frame[0] = wire.SyncByte
	frame[1] = wire.TypeIMU
	for i := 0; i < 3; i++ {
		a := int16(math.Round(accel[i] / wire.Gravity / wire.AccelFullScaleG * 32768))
		g := int16(math.Round(gyro[i] / wire.DegToRad / wire.GyroFullScaleDPS * 32768))
		binary.LittleEndian.PutUint16(frame[2+2*i:], uint16(a))
		binary.LittleEndian.PutUint16(frame[8+2*i:], uint16(g))
	}
	if checksum {
		frame = append(frame, wire.Checksum(frame))
	}
	return frame
}

func TestSourceFeedDecodesSamples(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	src := NewSource(wire.DecoderConfig{}, clock)

	frame := encodeFrame([3]float64{1.0, 2.0, 9.8}, [3]float64{0.5, -0.5, 0.1}, false)
	samples := src.Feed(frame)

	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	s := samples[0]
	if s.TimestampMicros != clock.Now().UnixMicro() {
		t.Errorf("timestamp = %d, want arrival time %d", s.TimestampMicros, clock.Now().UnixMicro())
	}
	if math.Abs(s.Accel.Z-9.8) > 0.01 {
		t.Errorf("accel z = %f, want ~9.8", s.Accel.Z)
	}
	if math.Abs(s.Gyro.X-0.5) > 0.01 {
		t.Errorf("gyro x = %f, want ~0.5", s.Gyro.X)
	}
}

func TestSourceTimestampsStrictlyIncrease(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	src := NewSource(wire.DecoderConfig{}, clock)

	// Three frames in one chunk arrive at the same instant; the source must
	// still produce strictly increasing timestamps.
	frame := encodeFrame([3]float64{0, 0, 9.8}, [3]float64{0, 0, 0}, false)
	chunk := append(append(append([]byte(nil), frame...), frame...), frame...)

	samples := src.Feed(chunk)
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].TimestampMicros <= samples[i-1].TimestampMicros {
			t.Fatalf("timestamps not strictly increasing: %d then %d",
				samples[i-1].TimestampMicros, samples[i].TimestampMicros)
		}
	}

	// A clock that does not advance (duplicate arrival instant) must also
	// never move timestamps backwards.
	more := src.Feed(frame)
	if len(more) != 1 {
		t.Fatalf("got %d samples, want 1", len(more))
	}
	if more[0].TimestampMicros <= samples[2].TimestampMicros {
		t.Error("timestamp regressed across Feed calls with a stalled clock")
	}
}

// TestSourceArrivalTimeIsDeliveryTime pins down the documented limitation:
// timestamps reflect when bytes were delivered, not when the sensor sampled.
// Two frames generated back-to-back on the device but delivered 40ms apart
// are 40ms apart in the stream.
func TestSourceArrivalTimeIsDeliveryTime(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	src := NewSource(wire.DecoderConfig{}, clock)
	frame := encodeFrame([3]float64{0, 0, 9.8}, [3]float64{0, 0, 0}, false)

	first := src.Feed(frame)
	clock.Advance(40 * time.Millisecond)
	second := src.Feed(frame)

	gap := second[0].TimestampMicros - first[0].TimestampMicros
	if gap != 40_000 {
		t.Errorf("inter-sample gap = %dµs, want 40000µs (delivery jitter)", gap)
	}
}

func TestSourceDropsInvalidFramesAndCounts(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	src := NewSource(wire.DecoderConfig{EnforceChecksum: true}, clock)

	good := encodeFrame([3]float64{0, 0, 9.8}, [3]float64{0, 0, 0}, true)
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF // break the checksum

	samples := src.Feed(append(append([]byte{0x01, 0x02}, bad...), good...))
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}

	c := src.Counters()
	if c.Drops != 1 {
		t.Errorf("Drops = %d, want 1", c.Drops)
	}
	if c.Decoded != 1 {
		t.Errorf("Decoded = %d, want 1", c.Decoded)
	}
	if c.Resyncs == 0 {
		t.Error("expected resyncs from leading garbage")
	}
}

func TestSourceObserver(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	src := NewSource(wire.DecoderConfig{}, clock)

	var seen []Sample
	src.SetObserver(func(s Sample) { seen = append(seen, s) })

	frame := encodeFrame([3]float64{0, 0, 9.8}, [3]float64{0, 0, 0}, false)
	src.Feed(append(append([]byte(nil), frame...), frame...))

	if len(seen) != 2 {
		t.Fatalf("observer saw %d samples, want 2", len(seen))
	}
}
