// Package config loads and validates the backfill configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AutoTuneConfig controls the pre-run calibration benchmark.
type AutoTuneConfig struct {
	Enabled    bool `yaml:"enabled"`
	ProbeCount int  `yaml:"probe_count" validate:"gte=0"`
	ExitAfter  bool `yaml:"exit_after"`
}

// BBoxConfig is the coordinate filter box.
type BBoxConfig struct {
	LatMin float64 `yaml:"lat_min"`
	LatMax float64 `yaml:"lat_max"`
	LonMin float64 `yaml:"lon_min"`
	LonMax float64 `yaml:"lon_max"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the full configuration surface consumed by the backfill
// binary. Durations are expressed as integer seconds.
type Config struct {
	OSRMURL   string `yaml:"osrm_url" validate:"required,url"`
	SourceDir string `yaml:"source_dir" validate:"required"`
	OutputDir string `yaml:"output_dir" validate:"required"`

	RouteCache string `yaml:"route_cache" validate:"required"`
	StateFile  string `yaml:"state_file" validate:"required"`
	PauseFile  string `yaml:"pause_file" validate:"required"`

	StartMonth string `yaml:"start_month" validate:"required"`
	// EndMonth is "YYYY-MM", or "latest" to probe backward for the most
	// recent month with source data.
	EndMonth string `yaml:"end_month"`

	Workers         int     `yaml:"workers" validate:"gt=0"`
	QPS             float64 `yaml:"qps" validate:"gt=0"`
	RequestTimeoutS int     `yaml:"request_timeout_s" validate:"gt=0"`
	MaxNewRoutes    int     `yaml:"max_new_routes" validate:"gte=0"`
	Resume          bool    `yaml:"resume"`
	ContinueOnError bool    `yaml:"continue_on_error"`

	AutoTune AutoTuneConfig `yaml:"auto_tune"`
	BBox     BBoxConfig     `yaml:"bbox"`
	Log      LogConfig      `yaml:"log"`

	// MetricsAddr enables a Prometheus listener when non-empty (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr"`
}

// applyDefaults fills unset fields with the pipeline defaults.
func (c *Config) applyDefaults() {
	if c.EndMonth == "" {
		c.EndMonth = "latest"
	}
	if c.Workers == 0 {
		c.Workers = 8
	}
	if c.QPS == 0 {
		c.QPS = 10
	}
	if c.RequestTimeoutS == 0 {
		c.RequestTimeoutS = 20
	}
	if c.AutoTune.ProbeCount == 0 {
		c.AutoTune.ProbeCount = 120
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.BBox == (BBoxConfig{}) {
		c.BBox = BBoxConfig{LatMin: 51.20, LatMax: 51.75, LonMin: -0.60, LonMax: 0.35}
	}
	if c.RouteCache == "" {
		c.RouteCache = "output/route_cache.parquet"
	}
	if c.StateFile == "" {
		c.StateFile = "output/backfill_state.json"
	}
	if c.PauseFile == "" {
		c.PauseFile = "output/.backfill_pause"
	}
}

// Load reads, defaults, and validates the configuration at path.
// Configuration errors are fatal before any network activity.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
