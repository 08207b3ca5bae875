// Package api serves the swing history and tuning surface over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/batmetrics/swing.report/internal/db"
	"github.com/batmetrics/swing.report/internal/httputil"
	"github.com/batmetrics/swing.report/internal/monitoring"
	"github.com/batmetrics/swing.report/internal/recorder"
	"github.com/batmetrics/swing.report/internal/units"
	"github.com/batmetrics/swing.report/internal/version"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the recorded swings and the live recorder over HTTP. The
// recorder may be nil when serving history only (report tooling).
type Server struct {
	db    *db.DB
	rec   *recorder.Recorder
	units string
}

// NewServer creates a Server. units selects the tip-speed unit for responses;
// invalid values fall back to m/s.
func NewServer(database *db.DB, rec *recorder.Recorder, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{
		db:    database,
		rec:   rec,
		units: speedUnits,
	}
}

// ServeMux returns the API route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /api/swings", s.listSwings)
	mux.HandleFunc("GET /api/swings/{id}", s.getSwing)
	mux.HandleFunc("GET /api/swings/{id}/samples", s.getSwingSamples)
	mux.HandleFunc("GET /api/stats", s.showStats)
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("GET /api/settings", s.showSettings)
	mux.HandleFunc("POST /api/settings", s.updateSettings)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
