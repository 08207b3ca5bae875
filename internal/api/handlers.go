package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/batmetrics/swing.report/internal/config"
	"github.com/batmetrics/swing.report/internal/db"
	"github.com/batmetrics/swing.report/internal/httputil"
	"github.com/batmetrics/swing.report/internal/units"
)

// convertSwingSpeed applies the server's unit selection to a swing record.
func (s *Server) convertSwingSpeed(sw db.Swing) db.Swing {
	sw.TipSpeed = units.ConvertSpeed(sw.TipSpeed, s.units)
	return sw
}

func (s *Server) listSwings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	swings, err := s.db.ListSwings(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	for i := range swings {
		swings[i] = s.convertSwingSpeed(swings[i])
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":  s.units,
		"swings": swings,
	})
}

func (s *Server) getSwing(w http.ResponseWriter, r *http.Request) {
	sw, err := s.db.GetSwing(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.convertSwingSpeed(sw))
}

func (s *Server) getSwingSamples(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	samples, err := s.db.RawSamples(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"swing_id": id,
		"samples":  samples,
	})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	stats.MeanTipSpeed = units.ConvertSpeed(stats.MeanTipSpeed, s.units)
	stats.MedianTipSpeed = units.ConvertSpeed(stats.MedianTipSpeed, s.units)
	stats.StdDevTipSpeed = units.ConvertSpeed(stats.StdDevTipSpeed, s.units)
	stats.MaxTipSpeed = units.ConvertSpeed(stats.MaxTipSpeed, s.units)
	stats.P90TipSpeed = units.ConvertSpeed(stats.P90TipSpeed, s.units)
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units": s.units,
		"stats": stats,
	})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		httputil.WriteJSONOK(w, map[string]interface{}{"recording": false})
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"recording": true,
		"state":     s.rec.State().String(),
		"counters":  s.rec.Counters(),
	})
}

func (s *Server) showSettings(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		httputil.NotFound(w, "no active recorder")
		return
	}
	settings := s.rec.Settings()
	geom := s.rec.Geometry()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"start_accel": settings.StartAccel,
		"end_accel":   settings.EndAccel,
		"end_gyro":    settings.EndGyro,
		"rise_time":   settings.RiseTime.String(),
		"fall_time":   settings.FallTime.String(),
		"refractory":  settings.Refractory.String(),
		"bat_radius":  geom.Radius,
		"bat_gain":    geom.Gain,
	})
}

// updateSettings applies a partial tuning update. The body uses the same
// schema as the tuning config file: fields left out keep their current
// values, and an invalid update leaves everything untouched.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		httputil.NotFound(w, "no active recorder")
		return
	}

	var patch config.TuningConfig
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid settings body: %v", err))
		return
	}
	if err := patch.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	settings := s.rec.Settings()
	if patch.StartAccel != nil {
		settings.StartAccel = *patch.StartAccel
	}
	if patch.EndAccel != nil {
		settings.EndAccel = *patch.EndAccel
	}
	if patch.EndGyro != nil {
		settings.EndGyro = *patch.EndGyro
	}
	if patch.RiseTime != nil {
		settings.RiseTime = patch.GetRiseTime()
	}
	if patch.FallTime != nil {
		settings.FallTime = patch.GetFallTime()
	}
	if patch.Refractory != nil {
		settings.Refractory = patch.GetRefractory()
	}

	geom := s.rec.Geometry()
	if patch.BatRadius != nil {
		geom.Radius = *patch.BatRadius
	}
	if patch.BatGain != nil {
		geom.Gain = *patch.BatGain
	}

	// Validate both halves before applying either, so a bad geometry does
	// not leave new thresholds half-installed.
	if err := settings.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := geom.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.rec.UpdateSettings(settings); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.rec.UpdateGeometry(geom); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.showSettings(w, r)
}
