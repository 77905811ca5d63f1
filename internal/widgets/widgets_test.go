package widgets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/visbind/internal/binding"
	"github.com/dokzlo13/visbind/internal/objects"
)

func TestFormatter_Format(t *testing.T) {
	tests := []struct {
		name  string
		f     Formatter
		v     any
		round int
		want  string
	}{
		{"two decimals", Formatter{}, 21.456, RoundDefault, "21.46"},
		{"integer", Formatter{}, 54.6, RoundInteger, "55"},
		{"float comma", Formatter{FloatComma: true}, 21.5, RoundDefault, "21,5"},
		{"whole number", Formatter{}, 20.0, RoundDefault, "20"},
		{"string untouched", Formatter{FloatComma: true}, "1.5", RoundDefault, "1.5"},
		{"bool", Formatter{}, true, RoundDefault, "true"},
		{"nil", Formatter{}, nil, RoundDefault, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Format(tt.v, tt.round); got != tt.want {
				t.Errorf("Format(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	w, err := Decode(KindThermostat, "hall", map[string]any{
		"setpoint":        "hvac.0.set",
		"step":            0.5,
		"count":           3,
		"modes":           []any{map[string]any{"hide": true}, map[string]any{"title": "Comfort"}},
		"update_interval": 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	th, ok := w.(*Thermostat)
	if !ok {
		t.Fatalf("Decode returned %T", w)
	}
	if th.ID() != "hall" || th.Setpoint != "hvac.0.set" || th.Count != 3 || len(th.Modes) != 2 {
		t.Errorf("thermostat = %+v", th)
	}
	cfg := th.Binding()
	if cfg.UpdateInterval != 30*time.Second {
		t.Errorf("UpdateInterval = %v", cfg.UpdateInterval)
	}
	sp, _ := cfg.Point("setpoint")
	if sp.Step != 0.5 || *sp.DefaultMin != SetpointMin || *sp.DefaultMax != SetpointMax {
		t.Errorf("setpoint slot = %+v", sp)
	}

	if _, err := Decode("gauge", "x", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Decode(gauge) = %v, want ErrUnknownKind", err)
	}
}

func TestThermostat_ModeDescriptors(t *testing.T) {
	mode := binding.Point{States: []binding.StateOption{
		{Value: "0", Label: "OFF"},
		{Value: "1", Label: "AUTO"},
		{Value: "2", Label: "Comfort"},
		{Value: "3", Label: "HEAT"},
		{Value: "4", Label: "Night"},
	}}
	th := &Thermostat{
		Count: 4,
		Modes: []ModeConfig{
			{},
			{Hide: true},
			{Tooltip: "Day mode", Color: "#f00"},
			{Title: "Warm"},
		},
	}

	got := th.ModeDescriptors(mode)
	want := []ModeDescriptor{
		{Value: "0", Tooltip: "OFF", StandardIcon: true, Original: "OFF"},
		{Value: "2", Label: "Comfort", Tooltip: "Day mode", Color: "#f00", Original: "Comfort"},
		{Value: "3", Label: "Warm", Tooltip: "HEAT", StandardIcon: true, Original: "HEAT"},
	}
	if len(got) != len(want) {
		t.Fatalf("modes = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("modes[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	custom := &Thermostat{Modes: []ModeConfig{{Icon: "eco.svg", NoText: true}, {IconSmall: "s.png"}}}
	got = custom.ModeDescriptors(binding.Point{States: []binding.StateOption{{Value: "a", Label: "A"}, {Value: "b", Label: "B"}}})
	if got[0].Label != "" || got[0].Icon != "eco.svg" {
		t.Errorf("icon only mode = %+v", got[0])
	}
	if got[1].Label != "B" || got[1].Icon != "s.png" || got[1].StandardIcon {
		t.Errorf("small icon mode = %+v", got[1])
	}
}

func thermostatSnapshot(power any) binding.Snapshot {
	snap := binding.Snapshot{
		Points: map[string]binding.Point{
			"setpoint": {Key: "setpoint", ID: "s", Bound: true, Found: true, Kind: binding.KindNumeric, ValueType: objects.ValueNumber, Min: 12, Max: 30, Unit: "°C"},
			"mode": {Key: "mode", ID: "m", Bound: true, Found: true, Kind: binding.KindEnumerated, ValueType: objects.ValueNumber,
				States: []binding.StateOption{{Value: "0", Label: "OFF"}, {Value: "1", Label: "HEAT"}}},
			"power": {Key: "power", ID: "p", Bound: true, Found: true, Kind: binding.KindBoolean},
		},
		Values: map[string]binding.Value{
			"setpoint": {Val: 35.0},
			"mode":     {Val: 1.0},
		},
	}
	if power != nil {
		snap.Values["power"] = binding.Value{Val: power}
	}
	return snap
}

func TestThermostat_View(t *testing.T) {
	th := &Thermostat{WidgetID: "hall", Setpoint: "s", Mode: "m", Power: "p"}

	view := th.View(thermostatSnapshot(true), Formatter{}).(ThermostatView)
	if view.Setpoint == nil || view.Setpoint.Value != 30 || view.Setpoint.Display != "30" {
		t.Errorf("setpoint = %+v, want clamped to 30", view.Setpoint)
	}
	if len(view.Modes) != 2 || view.Modes[0].Active || !view.Modes[1].Active {
		t.Errorf("modes = %+v", view.Modes)
	}
	if !view.WithModeButtons {
		t.Error("mode buttons hidden with power on")
	}
	if view.Power == nil || !*view.Power {
		t.Errorf("power = %v", view.Power)
	}

	off := th.View(thermostatSnapshot(false), Formatter{}).(ThermostatView)
	if off.WithModeButtons {
		t.Error("mode buttons shown with power off")
	}

	noPower := &Thermostat{Setpoint: "s", Party: "party.0"}
	if !noPower.WithModeButtons(binding.Snapshot{}, nil) {
		t.Error("party switch alone should show the mode row")
	}
}

func TestActual_View(t *testing.T) {
	a := &Actual{WidgetID: "a", Main: Slot{OID: "t"}, Secondary: Slot{OID: "h"}}
	start := time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC)
	snap := binding.Snapshot{
		Points: map[string]binding.Point{
			"main":      {Key: "main", Found: true, Name: "Temp", Unit: "°C"},
			"secondary": {Key: "secondary", Found: true, Name: "Humidity", Role: "value.humidity", Unit: "%"},
		},
		Values: map[string]binding.Value{
			"main":      {Val: 21.456},
			"secondary": {Val: 54.6},
		},
		Series: map[string]*binding.Series{
			"main": {Start: start, Anchored: true, Points: []binding.SeriesPoint{{Ts: start.Add(time.Hour), Val: 21}}},
		},
	}

	view := a.View(snap, Formatter{}).(ActualView)
	if view.Main == nil || view.Main.Value != "21.46" || view.Main.BuiltinIcon != IconThermostat {
		t.Errorf("main = %+v", view.Main)
	}
	if view.Secondary == nil || view.Secondary.Value != "55" || view.Secondary.BuiltinIcon != IconHumidity {
		t.Errorf("secondary = %+v", view.Secondary)
	}
	if len(view.Chart) != 1 || view.Chart[0].Key != "main" || !view.Chart[0].Anchored {
		t.Errorf("chart = %+v", view.Chart)
	}

	if _, err := a.Control(context.Background(), nil, Action{Type: ActionToggle}); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("Control = %v, want ErrUnsupportedAction", err)
	}
}

func TestSwitches_View(t *testing.T) {
	s := &Switches{
		WidgetID:  "sw",
		AllSwitch: true,
		Items: []SwitchItem{
			{OID: "lamp", IconEnabled: "on.svg", Icon: "off.svg", ColorEnabled: "yellow"},
			{OID: "dimmer"},
		},
	}
	snap := binding.Snapshot{
		Points: map[string]binding.Point{
			"1": {Key: "1", Found: true, Bound: true, Kind: binding.KindBoolean, ValueType: objects.ValueBoolean, Name: "Lamp"},
			"2": {Key: "2", Found: true, Bound: true, Kind: binding.KindNumeric, ValueType: objects.ValueNumber, Min: 0, Max: 100, Color: "blue"},
		},
		Values: map[string]binding.Value{
			"1": {Val: true},
			"2": {Val: 0.0},
		},
	}

	view := s.View(snap, Formatter{}).(SwitchesView)
	if len(view.Items) != 2 {
		t.Fatalf("items = %+v", view.Items)
	}
	lamp, dimmer := view.Items[0], view.Items[1]
	if !lamp.On || lamp.Icon != "./files/on.svg" || lamp.Color != "yellow" {
		t.Errorf("lamp = %+v", lamp)
	}
	if dimmer.On || dimmer.BuiltinIcon != IconLightbulbOff || dimmer.Color != "blue" || dimmer.Dialog {
		t.Errorf("dimmer = %+v", dimmer)
	}
	if view.All == nil || view.All.On || !view.All.Intermediate {
		t.Errorf("all = %+v", view.All)
	}

	s.Layout = LayoutButtons
	view = s.View(snap, Formatter{}).(SwitchesView)
	if !view.Items[1].Dialog {
		t.Error("numeric button should open a dialog")
	}
	if view.All.Intermediate {
		t.Error("button layout reports intermediate")
	}
}

type fakeController struct {
	snap    binding.Snapshot
	calls   []string
	session binding.SessionState
	setAll  *bool
}

func (c *fakeController) Snapshot() binding.Snapshot { return c.snap }

func (c *fakeController) Toggle(_ context.Context, key string) error {
	c.calls = append(c.calls, "toggle:"+key)
	return nil
}

func (c *fakeController) SetOnOff(_ context.Context, key string, on bool) error {
	if on {
		c.calls = append(c.calls, "on:"+key)
	} else {
		c.calls = append(c.calls, "off:"+key)
	}
	return nil
}

func (c *fakeController) SetState(_ context.Context, key, raw string) error {
	c.calls = append(c.calls, "state:"+key+"="+raw)
	return nil
}

func (c *fakeController) SetAll(_ context.Context, _ []string, on bool) error {
	c.setAll = &on
	return nil
}

func (c *fakeController) BeginAdjust(_ context.Context, key string) (binding.SessionState, error) {
	c.calls = append(c.calls, "begin:"+key)
	c.session = binding.SessionState{ID: "s1", Key: key, Value: 20}
	return c.session, nil
}

func (c *fakeController) Adjust(_ context.Context, id string, v float64) (binding.SessionState, error) {
	if id != c.session.ID {
		return binding.SessionState{}, binding.ErrNoSession
	}
	c.session.Value = v
	return c.session, nil
}

func (c *fakeController) EndAdjust(_ context.Context, id string) (float64, error) {
	if id != c.session.ID {
		return 0, binding.ErrNoSession
	}
	c.calls = append(c.calls, "end:"+c.session.Key)
	return c.session.Value, nil
}

func (c *fakeController) CancelAdjust(_ context.Context, id string) error {
	if id != c.session.ID {
		return binding.ErrNoSession
	}
	return nil
}

func TestThermostat_Control(t *testing.T) {
	th := &Thermostat{Setpoint: "s", Mode: "m", Power: "p"}
	c := &fakeController{snap: thermostatSnapshot(true)}
	ctx := context.Background()

	res, err := th.Control(ctx, c, Action{Type: ActionBeginAdjust})
	if err != nil || res.Session == nil {
		t.Fatalf("begin = %+v, %v", res, err)
	}
	v := 22.5
	if _, err := th.Control(ctx, c, Action{Type: ActionAdjust, Session: res.Session.ID, Value: &v}); err != nil {
		t.Fatal(err)
	}
	res, err = th.Control(ctx, c, Action{Type: ActionEndAdjust, Session: res.Session.ID})
	if err != nil || res.Value == nil || *res.Value != 22.5 {
		t.Fatalf("end = %+v, %v", res, err)
	}

	if _, err := th.Control(ctx, c, Action{Type: ActionMode, State: "0"}); err != nil {
		t.Fatal(err)
	}
	if _, err := th.Control(ctx, c, Action{Type: ActionMode, State: "9"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("unknown mode = %v, want ErrInvalidAction", err)
	}
	if _, err := th.Control(ctx, c, Action{Type: ActionToggle, Key: "power"}); err != nil {
		t.Fatal(err)
	}
	if _, err := th.Control(ctx, c, Action{Type: ActionToggle, Key: "setpoint"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("toggle setpoint = %v, want ErrInvalidAction", err)
	}

	want := []string{"begin:setpoint", "end:setpoint", "state:mode=0", "toggle:power"}
	if len(c.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", c.calls, want)
	}
	for i := range want {
		if c.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, c.calls[i], want[i])
		}
	}
}

func TestSwitches_ControlAll(t *testing.T) {
	s := &Switches{AllSwitch: true, Items: []SwitchItem{{OID: "a"}, {OID: "b"}}}
	c := &fakeController{snap: binding.Snapshot{
		Points: map[string]binding.Point{
			"1": {Found: true, Bound: true},
			"2": {Found: true, Bound: true},
		},
		Values: map[string]binding.Value{"1": {Val: true}, "2": {Val: true}},
	}}

	if _, err := s.Control(context.Background(), c, Action{Type: ActionSetAll}); err != nil {
		t.Fatal(err)
	}
	if c.setAll == nil || *c.setAll {
		t.Errorf("all on group switched to %v, want off", c.setAll)
	}

	s.AllSwitch = false
	if _, err := s.Control(context.Background(), c, Action{Type: ActionSetAll}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("disabled group switch = %v, want ErrInvalidAction", err)
	}
}
