// Command swingd records bat-sensor streams: it reads IMU frames from the
// serial port, detects swings, persists them, and serves the history API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/batmetrics/swing.report/internal/api"
	"github.com/batmetrics/swing.report/internal/config"
	"github.com/batmetrics/swing.report/internal/db"
	"github.com/batmetrics/swing.report/internal/monitoring"
	"github.com/batmetrics/swing.report/internal/pipeline"
	"github.com/batmetrics/swing.report/internal/recorder"
	"github.com/batmetrics/swing.report/internal/sensorport"
	"github.com/batmetrics/swing.report/internal/swing"
	"github.com/batmetrics/swing.report/internal/timeutil"
	"github.com/batmetrics/swing.report/internal/units"
	"github.com/batmetrics/swing.report/internal/version"
	"github.com/batmetrics/swing.report/internal/wire"
)

var (
	devMode        = flag.Bool("dev", false, "Run against a simulated sensor instead of hardware")
	listen         = flag.String("listen", ":8080", "Listen address")
	serialPort     = flag.String("port", "/dev/ttyUSB0", "Sensor serial port")
	baudRate       = flag.Int("baud", sensorport.DefaultBaudRate, "Sensor baud rate")
	dbFile         = flag.String("db", "swing_data.db", "SQLite database path")
	configPath     = flag.String("config", "", "Tuning config JSON (defaults apply when unset)")
	speedUnits     = flag.String("units", units.MPS, "Tip speed units for API responses: "+units.GetValidUnitsString())
	discardPartial = flag.Bool("discard-partial", false, "Discard an in-flight swing on shutdown instead of saving it as degraded")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	var port sensorport.Port
	if *devMode {
		monitoring.Logf("dev mode: simulating a sensor stream")
		port = sensorport.NewSimulator(tuning.GetEnforceChecksum())
	} else {
		var err error
		port, err = sensorport.Open(*serialPort, *baudRate)
		if err != nil {
			log.Fatalf("failed to open sensor port %s: %v", *serialPort, err)
		}
	}
	defer port.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	pipe, err := pipeline.New(pipeline.Config{
		Decoder:         wire.DecoderConfig{EnforceChecksum: tuning.GetEnforceChecksum()},
		Settings:        tuning.GetSettings(),
		Geometry:        tuning.GetGeometry(),
		MaxEventSamples: tuning.GetMaxEventSamples(),
	}, database, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	pipe.SetEventObserver(func(id string, ev swing.Event) {
		if id == "" {
			monitoring.Logf("swing detected but not persisted: tip %.2f m/s", ev.TipSpeed)
			return
		}
		monitoring.Logf("swing %s: tip %.2f m/s, peak %.2f rad/s, %d samples",
			id, ev.TipSpeed, ev.PeakGyro, ev.SampleCount)
	})

	rec := recorder.New(pipe, port)
	rec.KeepPartialOnStop = !*discardPartial

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("swingd %s starting (db=%s listen=%s)", version.Version, *dbFile, *listen)

	// run the recorder routine to pump the sensor stream into the pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rec.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("sensor stream failed: %v", err)
			stop()
		}
		monitoring.Logf("recorder routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if err := database.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("admin routes unavailable: %v", err)
		}

		apiMux := api.NewServer(database, rec, *speedUnits).ServeMux()
		mux.Handle("/", api.LoggingMiddleware(apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
		monitoring.Logf("HTTP server routine stopped")
	}()

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
}
