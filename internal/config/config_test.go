package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
osrm_url: http://localhost:5000
source_dir: data/source
output_dir: output/parquet
route_cache: output/route_cache.parquet
state_file: output/backfill_state.json
pause_file: output/.backfill_pause
start_month: "2024-01"
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want default 8", cfg.Workers)
	}
	if cfg.QPS != 10 {
		t.Errorf("QPS = %v, want default 10", cfg.QPS)
	}
	if cfg.RequestTimeoutS != 20 {
		t.Errorf("RequestTimeoutS = %d, want default 20", cfg.RequestTimeoutS)
	}
	if cfg.EndMonth != "latest" {
		t.Errorf("EndMonth = %q, want default %q", cfg.EndMonth, "latest")
	}
	if cfg.AutoTune.ProbeCount != 120 {
		t.Errorf("AutoTune.ProbeCount = %d, want default 120", cfg.AutoTune.ProbeCount)
	}
	if cfg.BBox.LatMin != 51.20 || cfg.BBox.LonMax != 0.35 {
		t.Errorf("BBox = %+v, want London defaults", cfg.BBox)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
end_month: "2024-06"
workers: 24
qps: 120.5
request_timeout_s: 30
max_new_routes: 5000
resume: true
continue_on_error: true
auto_tune:
  enabled: true
  probe_count: 200
  exit_after: true
metrics_addr: ":9090"
log:
  level: debug
  pretty: true
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EndMonth != "2024-06" {
		t.Errorf("EndMonth = %q, want 2024-06", cfg.EndMonth)
	}
	if cfg.Workers != 24 || cfg.QPS != 120.5 || cfg.RequestTimeoutS != 30 {
		t.Errorf("tuning = %d/%v/%d, want 24/120.5/30", cfg.Workers, cfg.QPS, cfg.RequestTimeoutS)
	}
	if cfg.MaxNewRoutes != 5000 {
		t.Errorf("MaxNewRoutes = %d, want 5000", cfg.MaxNewRoutes)
	}
	if !cfg.Resume || !cfg.ContinueOnError {
		t.Error("resume/continue_on_error not honored")
	}
	if !cfg.AutoTune.Enabled || cfg.AutoTune.ProbeCount != 200 || !cfg.AutoTune.ExitAfter {
		t.Errorf("AutoTune = %+v", cfg.AutoTune)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing osrm url", content: `
source_dir: data
output_dir: out
start_month: "2024-01"
`},
		{name: "negative qps", content: minimalConfig + "qps: -3\n"},
		{name: "bad log level", content: minimalConfig + "log:\n  level: loud\n"},
		{name: "not yaml", content: "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}
