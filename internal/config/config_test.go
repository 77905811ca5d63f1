package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log level", cfg.Log.Level, "info"},
		{"script", cfg.Script, "dashboard.lua"},
		{"history instance", cfg.History.Instance, "history.0"},
		{"history step", cfg.History.Step.Duration(), 30 * time.Minute},
		{"aggregate", cfg.History.Aggregate, "minmax"},
		{"debounce", cfg.Binding.Debounce.Duration(), 50 * time.Millisecond},
		{"update interval", cfg.Binding.UpdateInterval.Duration(), 60 * time.Second},
		{"time interval", cfg.Binding.TimeInterval, 12},
		{"server port", cfg.Server.Port, 8080},
		{"language", cfg.System.Language, "en"},
		{"shutdown timeout", cfg.ShutdownTimeout.Duration(), 5 * time.Second},
		{"bus workers", cfg.EventBus.GetWorkers(), 1},
		{"database disabled", cfg.Database.Path, ""},
		{"burst without rate limit", cfg.History.Burst, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("VISBIND_PORT", "9100")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log:
  level: debug
server:
  enabled: true
  port: ${VISBIND_PORT}
database:
  path: ${VISBIND_DB:./visbind.sqlite}
history:
  rate_limit_rps: 5
binding:
  debounce: 100ms
system:
  float_comma: true
  language: de
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 || !cfg.Server.Enabled {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Database.Path != "./visbind.sqlite" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.History.Burst != 1 {
		t.Errorf("burst = %d, want 1 when rate limited", cfg.History.Burst)
	}
	if cfg.Binding.Debounce.Duration() != 100*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Binding.Debounce.Duration())
	}
	if !cfg.System.FloatComma || cfg.System.Language != "de" {
		t.Errorf("system = %+v", cfg.System)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	if _, err := Parse([]byte("binding:\n  debounce: soon\n")); err == nil {
		t.Error("Parse accepted an invalid duration")
	}
}
