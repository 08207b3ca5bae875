// Command swing-report renders an HTML report from a recorded swing database:
// tip speed per swing over the session, and the raw sensor trace of the best
// swing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/batmetrics/swing.report/internal/db"
	"github.com/batmetrics/swing.report/internal/pipeline"
	"github.com/batmetrics/swing.report/internal/units"
)

var (
	dbFile     = flag.String("db", "swing_data.db", "SQLite database path")
	outFile    = flag.String("out", "swing_report.html", "Output HTML file")
	limit      = flag.Int("limit", 200, "Maximum swings to include")
	speedUnits = flag.String("units", units.MPS, "Tip speed units: "+units.GetValidUnitsString())
)

func main() {
	flag.Parse()

	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid units %q (want %s)", *speedUnits, units.GetValidUnitsString())
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	swings, err := database.ListSwings(ctx, *limit)
	if err != nil {
		log.Fatalf("failed to list swings: %v", err)
	}
	if len(swings) == 0 {
		log.Fatal("no swings recorded yet")
	}
	stats, err := database.Stats(ctx)
	if err != nil {
		log.Fatalf("failed to compute stats: %v", err)
	}

	page := components.NewPage()
	page.SetPageTitle("Swing Report")
	page.AddCharts(tipSpeedChart(swings, stats, *speedUnits))

	if best := bestSwing(swings); best != nil {
		samples, err := database.RawSamples(ctx, best.ID)
		if err != nil {
			log.Fatalf("failed to load raw samples: %v", err)
		}
		if len(samples) > 0 {
			page.AddCharts(traceChart(best, samples))
		}
	}

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (%d swings)", *outFile, len(swings))
}

// bestSwing returns the fastest non-degraded swing, or nil.
func bestSwing(swings []db.Swing) *db.Swing {
	var best *db.Swing
	for i := range swings {
		if swings[i].Degraded {
			continue
		}
		if best == nil || swings[i].TipSpeed > best.TipSpeed {
			best = &swings[i]
		}
	}
	return best
}

// tipSpeedChart plots tip speed per swing in session order, with the mean as
// a reference line in the subtitle.
func tipSpeedChart(swings []db.Swing, stats db.SwingStats, speedUnits string) *charts.Bar {
	// ListSwings returns newest first; the report reads left to right.
	xAxis := make([]string, 0, len(swings))
	speeds := make([]opts.BarData, 0, len(swings))
	for i := len(swings) - 1; i >= 0; i-- {
		sw := swings[i]
		xAxis = append(xAxis, sw.CreatedAt.Format("15:04:05"))
		speeds = append(speeds, opts.BarData{Value: units.ConvertSpeed(sw.TipSpeed, speedUnits)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Swing Report", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Tip speed per swing",
			Subtitle: fmt.Sprintf("%d swings, mean %.2f %s, best %.2f %s",
				stats.Count,
				units.ConvertSpeed(stats.MeanTipSpeed, speedUnits), speedUnits,
				units.ConvertSpeed(stats.MaxTipSpeed, speedUnits), speedUnits),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "tip speed (" + speedUnits + ")"}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("tip speed", speeds)
	return bar
}

// traceChart plots the raw sensor trace of one swing: perpendicular angular
// rate and acceleration magnitude against time from the swing start.
func traceChart(sw *db.Swing, samples []pipeline.RawSample) *charts.Line {
	xAxis := make([]string, 0, len(samples))
	gyro := make([]opts.LineData, 0, len(samples))
	accel := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		xAxis = append(xAxis, fmt.Sprintf("%.1f", float64(s.OffsetMicros)/1000))
		gyro = append(gyro, opts.LineData{Value: math.Hypot(s.Gyro.X, s.Gyro.Y)})
		accel = append(accel, opts.LineData{Value: s.Accel.Norm()})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Best swing trace",
			Subtitle: fmt.Sprintf("swing %s, tip %.2f m/s, %d samples", sw.ID, sw.TipSpeed, len(samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (ms)"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("angular rate (rad/s)", gyro)
	line.AddSeries("acceleration (m/s²)", accel)
	return line
}
