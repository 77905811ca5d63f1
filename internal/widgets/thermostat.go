package widgets

import (
	"context"
	"fmt"

	"github.com/dokzlo13/visbind/internal/binding"
)

// Setpoint defaults when the setpoint object declares no bounds.
const (
	SetpointMin = 12.0
	SetpointMax = 30.0
)

// DefaultModeCount caps the listed modes when no count is configured.
const DefaultModeCount = 10

// standardModeIcons are mode labels that have a builtin icon.
var standardModeIcons = map[string]bool{
	"AUTO":     true,
	"MANUAL":   true,
	"VACATION": true,
	"COOL":     true,
	"DRY":      true,
	"ECO":      true,
	"FAN_ONLY": true,
	"HEAT":     true,
	"OFF":      true,
}

// ModeConfig customizes the mode button at one position.
type ModeConfig struct {
	Hide      bool   `json:"hide,omitempty"`
	Title     string `json:"title,omitempty"`
	Tooltip   string `json:"tooltip,omitempty"`
	Icon      string `json:"icon,omitempty"`
	IconSmall string `json:"icon_small,omitempty"`
	Color     string `json:"color,omitempty"`
	NoText    bool   `json:"no_text,omitempty"`
}

// ModeDescriptor is one selectable operating mode.
type ModeDescriptor struct {
	Value   string `json:"value"`
	Label   string `json:"label,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
	// Icon is an explicit image; StandardIcon selects the builtin icon
	// named by Original.
	Icon         string `json:"icon,omitempty"`
	StandardIcon bool   `json:"standard_icon,omitempty"`
	Color        string `json:"color,omitempty"`
	Original     string `json:"original"`
}

// Thermostat drives a setpoint with a drag control and shows the actual
// temperature, operating modes and party/boost/power switches.
type Thermostat struct {
	WidgetID string `json:"-"`
	Title    string `json:"title,omitempty"`
	Setpoint string `json:"setpoint"`
	Actual   string `json:"actual,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Power    string `json:"power,omitempty"`
	Party    string `json:"party,omitempty"`
	Boost    string `json:"boost,omitempty"`
	Unit     string `json:"unit,omitempty"`
	// Step is the setpoint granularity, 0.5 or 1.
	Step  float64      `json:"step,omitempty"`
	Count int          `json:"count,omitempty"`
	Modes []ModeConfig `json:"modes,omitempty"`
	History
}

// SetpointView is the drag control state.
type SetpointView struct {
	Value     float64 `json:"value"`
	Display   string  `json:"display"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Step      float64 `json:"step"`
	Unit      string  `json:"unit,omitempty"`
	Adjusting bool    `json:"adjusting,omitempty"`
}

// ModeView is a mode button.
type ModeView struct {
	ModeDescriptor
	Active bool `json:"active"`
}

// ThermostatView is the rendered state of a Thermostat widget.
type ThermostatView struct {
	ID              string                `json:"id"`
	Kind            Kind                  `json:"kind"`
	Title           string                `json:"title,omitempty"`
	Setpoint        *SetpointView         `json:"setpoint,omitempty"`
	Actual          *Reading              `json:"actual,omitempty"`
	Modes           []ModeView            `json:"modes,omitempty"`
	Power           *bool                 `json:"power,omitempty"`
	Party           *bool                 `json:"party,omitempty"`
	Boost           *bool                 `json:"boost,omitempty"`
	WithModeButtons bool                  `json:"with_mode_buttons"`
	Session         *binding.SessionState `json:"session,omitempty"`
	Chart           []ChartSeries         `json:"chart,omitempty"`
}

func (t *Thermostat) ID() string { return t.WidgetID }
func (t *Thermostat) Kind() Kind { return KindThermostat }

func (t *Thermostat) step() float64 {
	if t.Step == 0.5 {
		return 0.5
	}
	return 1
}

func (t *Thermostat) Binding() binding.Config {
	lo, hi := SetpointMin, SetpointMax
	setpoint := slot("setpoint", t.Setpoint)
	setpoint.DefaultMin, setpoint.DefaultMax = &lo, &hi
	setpoint.Step = t.step()
	setpoint.Unit = t.Unit
	actual := slot("actual", t.Actual)
	actual.Unit = t.Unit

	return t.History.apply(binding.Config{
		Points: []binding.PointConfig{
			setpoint,
			actual,
			slot("mode", t.Mode),
			slot("power", t.Power),
			slot("party", t.Party),
			slot("boost", t.Boost),
		},
	})
}

// ModeDescriptors lists the selectable modes of the mode point, skipping
// hidden positions and those beyond the configured count.
func (t *Thermostat) ModeDescriptors(mode binding.Point) []ModeDescriptor {
	limit := t.Count
	if limit <= 0 {
		limit = DefaultModeCount
	}

	var out []ModeDescriptor
	for i, opt := range mode.States {
		mc := t.modeConfig(i)
		if mc.Hide || i >= limit {
			continue
		}

		d := ModeDescriptor{
			Value:    opt.Value,
			Tooltip:  mc.Tooltip,
			Icon:     mc.Icon,
			Color:    mc.Color,
			Original: opt.Label,
		}
		if d.Tooltip == "" {
			d.Tooltip = opt.Label
		}
		if d.Icon == "" {
			d.Icon = mc.IconSmall
		}
		d.StandardIcon = d.Icon == "" && standardModeIcons[opt.Label]
		hasIcon := d.Icon != "" || d.StandardIcon

		switch {
		case mc.Title != "":
			d.Label = mc.Title
		case hasIcon && mc.NoText:
			// icon only
		case d.StandardIcon:
			// builtin icons replace the label unless a title is given
		default:
			d.Label = opt.Label
		}
		out = append(out, d)
	}
	return out
}

func (t *Thermostat) modeConfig(i int) ModeConfig {
	if i < len(t.Modes) {
		return t.Modes[i]
	}
	return ModeConfig{}
}

// WithModeButtons reports whether the mode row is shown: there must be
// something to show, and a configured power switch must be on.
func (t *Thermostat) WithModeButtons(snap binding.Snapshot, modes []ModeDescriptor) bool {
	if len(modes) == 0 && !isBound(t.Party) && !isBound(t.Boost) {
		return false
	}
	if !isBound(t.Power) {
		return true
	}
	v, ok := snap.Values["power"]
	return ok && binding.Truthy(v.Val)
}

func (t *Thermostat) View(snap binding.Snapshot, f Formatter) any {
	view := ThermostatView{ID: t.WidgetID, Kind: KindThermostat, Title: t.Title, Session: snap.Session}

	if pt, ok := snap.Points["setpoint"]; ok && pt.Found {
		sp := &SetpointView{Min: pt.Min, Max: pt.Max, Step: t.step(), Unit: pt.Unit}
		sp.Value = (pt.Min + pt.Max) / 2
		if v, ok := value(snap, "setpoint"); ok {
			if n, ok := binding.ToFloat(v.Val); ok {
				sp.Value = binding.Clamp(n, pt.Min, pt.Max)
			}
			sp.Adjusting = v.Adjusting
		}
		sp.Display = f.Format(sp.Value, RoundDefault)
		view.Setpoint = sp
	}

	if r, ok := reading(snap, "actual", f, RoundDefault); ok {
		view.Actual = &r
	}

	var modes []ModeDescriptor
	if pt, ok := snap.Points["mode"]; ok && pt.Found {
		modes = t.ModeDescriptors(pt)
		current := ""
		if v, ok := value(snap, "mode"); ok {
			current = rawString(v.Val)
		}
		for _, m := range modes {
			view.Modes = append(view.Modes, ModeView{ModeDescriptor: m, Active: m.Value == current})
		}
	}

	view.Power = switchState(snap, "power")
	view.Party = switchState(snap, "party")
	view.Boost = switchState(snap, "boost")
	view.WithModeButtons = t.WithModeButtons(snap, modes)

	if s, ok := chartSeries(snap, "setpoint", "", false); ok {
		view.Chart = append(view.Chart, s)
	}
	if s, ok := chartSeries(snap, "actual", "", true); ok {
		view.Chart = append(view.Chart, s)
	}
	return view
}

func switchState(snap binding.Snapshot, key string) *bool {
	pt, ok := snap.Points[key]
	if !ok || !pt.Bound {
		return nil
	}
	on := false
	if v, ok := snap.Values[key]; ok {
		on = binding.Truthy(v.Val)
	}
	return &on
}

// Control handles setpoint drags, mode selection and the power, party and
// boost switches.
func (t *Thermostat) Control(ctx context.Context, c Controller, a Action) (Result, error) {
	switch a.Type {
	case ActionBeginAdjust:
		s, err := c.BeginAdjust(ctx, "setpoint")
		if err != nil {
			return Result{}, err
		}
		return Result{Session: &s}, nil

	case ActionAdjust:
		if a.Value == nil {
			return Result{}, fmt.Errorf("%w: adjust needs a value", ErrInvalidAction)
		}
		s, err := c.Adjust(ctx, a.Session, *a.Value)
		if err != nil {
			return Result{}, err
		}
		return Result{Session: &s}, nil

	case ActionEndAdjust:
		v, err := c.EndAdjust(ctx, a.Session)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: &v}, nil

	case ActionCancelAdjust:
		return Result{}, c.CancelAdjust(ctx, a.Session)

	case ActionMode:
		pt, ok := c.Snapshot().Points["mode"]
		if !ok || !pt.Found {
			return Result{}, fmt.Errorf("%w: no mode point", ErrInvalidAction)
		}
		for _, m := range t.ModeDescriptors(pt) {
			if m.Value == a.State {
				return Result{}, c.SetState(ctx, "mode", a.State)
			}
		}
		return Result{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidAction, a.State)

	case ActionToggle:
		switch a.Key {
		case "power", "party", "boost":
			return Result{}, c.Toggle(ctx, a.Key)
		}
		return Result{}, fmt.Errorf("%w: cannot toggle %q", ErrInvalidAction, a.Key)
	}
	return Result{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedAction, a.Type, KindThermostat)
}
