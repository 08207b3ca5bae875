package db

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SwingStats summarises the tip-speed distribution of the recorded swings.
// Degraded events are excluded: their metrics stop at whatever the stream
// delivered before shutdown.
type SwingStats struct {
	Count int `json:"count"`

	MeanTipSpeed   float64 `json:"mean_tip_speed"`
	MedianTipSpeed float64 `json:"median_tip_speed"`
	StdDevTipSpeed float64 `json:"stddev_tip_speed"`
	MaxTipSpeed    float64 `json:"max_tip_speed"`
	P90TipSpeed    float64 `json:"p90_tip_speed"`

	MeanPeakGyro float64 `json:"mean_peak_gyro"`
}

// Stats computes the summary over all non-degraded swings.
func (db *DB) Stats(ctx context.Context) (SwingStats, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT tip_speed, peak_gyro FROM swings WHERE degraded = 0`)
	if err != nil {
		return SwingStats{}, err
	}
	defer rows.Close()

	var tips, peaks []float64
	for rows.Next() {
		var tip, peak float64
		if err := rows.Scan(&tip, &peak); err != nil {
			return SwingStats{}, err
		}
		tips = append(tips, tip)
		peaks = append(peaks, peak)
	}
	if err := rows.Err(); err != nil {
		return SwingStats{}, err
	}
	if len(tips) == 0 {
		return SwingStats{}, nil
	}

	sort.Float64s(tips)
	s := SwingStats{
		Count:          len(tips),
		MeanTipSpeed:   stat.Mean(tips, nil),
		MedianTipSpeed: stat.Quantile(0.5, stat.Empirical, tips, nil),
		MaxTipSpeed:    tips[len(tips)-1],
		P90TipSpeed:    stat.Quantile(0.9, stat.Empirical, tips, nil),
		MeanPeakGyro:   stat.Mean(peaks, nil),
	}
	if len(tips) > 1 {
		s.StdDevTipSpeed = stat.StdDev(tips, nil)
	}
	return s, nil
}
