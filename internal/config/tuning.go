// Package config loads the detection tuning parameters from JSON. Fields are
// pointers so a partial file overrides only what it names; the Get* accessors
// supply the defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/batmetrics/swing.report/internal/swing"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning schema. It matches the /api/settings
// endpoint so the same JSON works for startup configuration and runtime
// updates.
type TuningConfig struct {
	// Detection thresholds
	StartAccel *float64 `json:"start_accel,omitempty"` // m/s²
	EndAccel   *float64 `json:"end_accel,omitempty"`   // m/s²
	EndGyro    *float64 `json:"end_gyro,omitempty"`    // rad/s

	// Debounce durations, duration strings like "25ms"
	RiseTime   *string `json:"rise_time,omitempty"`
	FallTime   *string `json:"fall_time,omitempty"`
	Refractory *string `json:"refractory,omitempty"`

	// Bat geometry
	BatRadius *float64 `json:"bat_radius,omitempty"` // metres
	BatGain   *float64 `json:"bat_gain,omitempty"`   // calibration factor

	// Wire protocol
	EnforceChecksum *bool `json:"enforce_checksum,omitempty"`

	// Raw buffering
	MaxEventSamples *int `json:"max_event_samples,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset, meaning
// every accessor reports its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set field is usable. The assembled settings and
// geometry are validated as a whole so a partial file cannot sneak a
// non-positive threshold past the detector.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*string{
		"rise_time":  c.RiseTime,
		"fall_time":  c.FallTime,
		"refractory": c.Refractory,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if err := c.GetSettings().Validate(); err != nil {
		return err
	}
	if err := c.GetGeometry().Validate(); err != nil {
		return err
	}
	if c.MaxEventSamples != nil && *c.MaxEventSamples <= 0 {
		return fmt.Errorf("max_event_samples must be positive, got %d", *c.MaxEventSamples)
	}
	return nil
}

// GetSettings assembles the detector settings from the configured fields and
// defaults.
func (c *TuningConfig) GetSettings() swing.Settings {
	return swing.Settings{
		StartAccel: c.GetStartAccel(),
		EndAccel:   c.GetEndAccel(),
		EndGyro:    c.GetEndGyro(),
		RiseTime:   c.GetRiseTime(),
		FallTime:   c.GetFallTime(),
		Refractory: c.GetRefractory(),
	}
}

// GetGeometry assembles the bat geometry from the configured fields and
// defaults.
func (c *TuningConfig) GetGeometry() swing.Geometry {
	return swing.Geometry{
		Radius: c.GetBatRadius(),
		Gain:   c.GetBatGain(),
	}
}

// GetStartAccel returns the start_accel value or the default.
func (c *TuningConfig) GetStartAccel() float64 {
	if c.StartAccel == nil {
		return swing.DefaultSettings.StartAccel
	}
	return *c.StartAccel
}

// GetEndAccel returns the end_accel value or the default.
func (c *TuningConfig) GetEndAccel() float64 {
	if c.EndAccel == nil {
		return swing.DefaultSettings.EndAccel
	}
	return *c.EndAccel
}

// GetEndGyro returns the end_gyro value or the default.
func (c *TuningConfig) GetEndGyro() float64 {
	if c.EndGyro == nil {
		return swing.DefaultSettings.EndGyro
	}
	return *c.EndGyro
}

// GetRiseTime parses and returns the rise_time as a time.Duration.
func (c *TuningConfig) GetRiseTime() time.Duration {
	return durationOr(c.RiseTime, swing.DefaultSettings.RiseTime)
}

// GetFallTime parses and returns the fall_time as a time.Duration.
func (c *TuningConfig) GetFallTime() time.Duration {
	return durationOr(c.FallTime, swing.DefaultSettings.FallTime)
}

// GetRefractory parses and returns the refractory window as a time.Duration.
func (c *TuningConfig) GetRefractory() time.Duration {
	return durationOr(c.Refractory, swing.DefaultSettings.Refractory)
}

// GetBatRadius returns the bat_radius value or the default.
func (c *TuningConfig) GetBatRadius() float64 {
	if c.BatRadius == nil {
		return swing.DefaultGeometry.Radius
	}
	return *c.BatRadius
}

// GetBatGain returns the bat_gain value or the default.
func (c *TuningConfig) GetBatGain() float64 {
	if c.BatGain == nil {
		return swing.DefaultGeometry.Gain
	}
	return *c.BatGain
}

// GetEnforceChecksum returns the enforce_checksum value or the default.
// Checksum presence is firmware-revision dependent, so it is configuration,
// never sniffed from the stream.
func (c *TuningConfig) GetEnforceChecksum() bool {
	if c.EnforceChecksum == nil {
		return false
	}
	return *c.EnforceChecksum
}

// GetMaxEventSamples returns the max_event_samples value, or 0 to select the
// pipeline default.
func (c *TuningConfig) GetMaxEventSamples() int {
	if c.MaxEventSamples == nil {
		return 0
	}
	return *c.MaxEventSamples
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
