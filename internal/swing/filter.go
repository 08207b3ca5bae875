package swing

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// smoothWindowMicros is the trailing moving-average window applied to the
// dynamic acceleration magnitude. ~20ms spans 3-5 samples at typical
// delivery rates: long enough to debounce transport jitter, short enough not
// to blunt the swing's leading edge.
const smoothWindowMicros = 20_000

// smoother applies a median-of-3 pass followed by a time-windowed trailing
// moving average. The median rejects single-sample spikes (a ball impact
// reads as one wild sample); the average smooths delivery jitter. Window
// membership is decided by sample timestamps, not counts, so the filter
// tolerates variable sample rate.
type smoother struct {
	windowMicros int64

	med  [3]float64
	medN int

	times  []int64
	values []float64
}

func newSmoother(windowMicros int64) *smoother {
	return &smoother{windowMicros: windowMicros}
}

// push feeds one magnitude reading and returns the smoothed value.
func (f *smoother) push(tsMicros int64, v float64) float64 {
	f.med[f.medN%3] = v
	f.medN++
	m := v
	if f.medN >= 3 {
		m = median3(f.med)
	}

	// Evict readings older than the window, then fold in the new one.
	cutoff := tsMicros - f.windowMicros
	drop := 0
	for drop < len(f.times) && f.times[drop] < cutoff {
		drop++
	}
	f.times = append(f.times[:0], f.times[drop:]...)
	f.values = append(f.values[:0], f.values[drop:]...)
	f.times = append(f.times, tsMicros)
	f.values = append(f.values, m)

	return stat.Mean(f.values, nil)
}

// reset clears all filter history.
func (f *smoother) reset() {
	f.medN = 0
	f.times = f.times[:0]
	f.values = f.values[:0]
}

func median3(v [3]float64) float64 {
	s := []float64{v[0], v[1], v[2]}
	sort.Float64s(s)
	return s[1]
}
