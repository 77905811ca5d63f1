package lua

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dokzlo13/visbind/internal/widgets"
)

const script = `
local dashboard = require("dashboard")
local log = require("log")

dashboard.system({ float_comma = true })

dashboard.actual("climate", {
  title = "Living room",
  main = { oid = "hvac.0.living.temperature" },
  secondary = { oid = "hvac.0.living.humidity", title = "Humidity" },
  time_interval = 24,
})

dashboard.thermostat("hall", {
  setpoint = "hvac.0.hall.setpoint",
  mode = "hvac.0.hall.mode",
  power = dashboard.unbound,
  step = 0.5,
  count = 4,
  modes = { [2] = { hide = true }, [3] = { title = "Warm" } },
})

dashboard.switches("lights", {
  all_switch = true,
  items = {
    { oid = "light.0.kitchen.on", icon_enabled = "bulb_on.svg" },
    { oid = "light.0.hall.level", step = 5 },
  },
})

log.info("dashboard declared", { widgets = 3 })
`

func TestRuntime_DeclaresWidgets(t *testing.T) {
	r := NewRuntime("test.lua")
	defer r.Close()

	if err := r.LoadString(script); err != nil {
		t.Fatal(err)
	}

	ws := r.Widgets()
	if len(ws) != 3 {
		t.Fatalf("declared %d widgets, want 3", len(ws))
	}

	a, ok := ws[0].(*widgets.Actual)
	if !ok || a.ID() != "climate" || a.Secondary.Title != "Humidity" || a.TimeInterval != 24 {
		t.Errorf("actual = %+v", ws[0])
	}

	th, ok := ws[1].(*widgets.Thermostat)
	if !ok {
		t.Fatalf("widget 1 = %T", ws[1])
	}
	if th.Step != 0.5 || th.Count != 4 || th.Power != "nothing_selected" {
		t.Errorf("thermostat = %+v", th)
	}
	if len(th.Modes) != 3 || th.Modes[0].Hide || !th.Modes[1].Hide || th.Modes[2].Title != "Warm" {
		t.Errorf("modes = %+v", th.Modes)
	}

	sw, ok := ws[2].(*widgets.Switches)
	if !ok || !sw.AllSwitch || len(sw.Items) != 2 || sw.Items[1].Step != 5 {
		t.Errorf("switches = %+v", ws[2])
	}

	f := r.Formatter(widgets.Formatter{Language: "de"})
	if !f.FloatComma || f.Language != "de" {
		t.Errorf("formatter = %+v", f)
	}
}

func TestRuntime_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "duplicate id",
			src:  `local d = require("dashboard"); d.actual("x", {}); d.switches("x", {})`,
			want: `declared twice`,
		},
		{
			name: "bad field type",
			src:  `require("dashboard").thermostat("t", { count = "many" })`,
			want: `widget t`,
		},
		{
			name: "syntax",
			src:  `dashboard.actual(`,
			want: `failed to execute`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRuntime("")
			defer r.Close()

			err := r.LoadString(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadString = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.lua")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	ws, f, err := Load(path, widgets.Formatter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ws) != 3 || !f.FloatComma {
		t.Errorf("Load = %d widgets, %+v", len(ws), f)
	}

	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.lua"), widgets.Formatter{}); err == nil {
		t.Error("Load of a missing script succeeded")
	}
}
