package widgets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dokzlo13/visbind/internal/binding"
)

// Switch layouts.
const (
	LayoutSwitches = "switches"
	LayoutButtons  = "buttons"
)

// SwitchItem configures one switch. Icons are file names under the
// dashboard's files directory.
type SwitchItem struct {
	OID          string  `json:"oid"`
	Title        string  `json:"title,omitempty"`
	Icon         string  `json:"icon,omitempty"`
	IconEnabled  string  `json:"icon_enabled,omitempty"`
	Color        string  `json:"color,omitempty"`
	ColorEnabled string  `json:"color_enabled,omitempty"`
	Unit         string  `json:"unit,omitempty"`
	Step         float64 `json:"step,omitempty"`
}

// Switches is a list of switches or a grid of buttons, with an optional
// switch for the whole group.
type Switches struct {
	WidgetID  string       `json:"-"`
	Title     string       `json:"title,omitempty"`
	Layout    string       `json:"layout,omitempty"`
	AllSwitch bool         `json:"all_switch,omitempty"`
	Items     []SwitchItem `json:"items"`
}

// SwitchView is one rendered switch.
type SwitchView struct {
	Key         string                `json:"key"`
	Name        string                `json:"name"`
	Kind        binding.Kind          `json:"kind"`
	On          bool                  `json:"on"`
	Value       string                `json:"value"`
	Label       string                `json:"label,omitempty"`
	Unit        string                `json:"unit,omitempty"`
	Icon        string                `json:"icon,omitempty"`
	BuiltinIcon string                `json:"builtin_icon,omitempty"`
	Color       string                `json:"color,omitempty"`
	Min         float64               `json:"min"`
	Max         float64               `json:"max"`
	States      []binding.StateOption `json:"states,omitempty"`
	// Dialog is set when a press opens a dialog instead of toggling.
	Dialog bool `json:"dialog,omitempty"`
}

// GroupView is the switch for the whole group.
type GroupView struct {
	On           bool `json:"on"`
	Intermediate bool `json:"intermediate"`
}

// SwitchesView is the rendered state of a Switches widget.
type SwitchesView struct {
	ID      string                `json:"id"`
	Kind    Kind                  `json:"kind"`
	Title   string                `json:"title,omitempty"`
	Layout  string                `json:"layout"`
	All     *GroupView            `json:"all,omitempty"`
	Items   []SwitchView          `json:"items"`
	Session *binding.SessionState `json:"session,omitempty"`
}

func (s *Switches) ID() string { return s.WidgetID }
func (s *Switches) Kind() Kind { return KindSwitches }

func (s *Switches) layout() string {
	if s.Layout == LayoutButtons {
		return LayoutButtons
	}
	return LayoutSwitches
}

// itemKey is the 1-based position of an item.
func itemKey(i int) string {
	return strconv.Itoa(i + 1)
}

func (s *Switches) Binding() binding.Config {
	cfg := binding.Config{}
	for i, item := range s.Items {
		pc := slot(itemKey(i), item.OID)
		pc.Title = item.Title
		pc.Unit = item.Unit
		pc.Step = item.Step
		cfg.Points = append(cfg.Points, pc)
	}
	return cfg
}

func (s *Switches) View(snap binding.Snapshot, f Formatter) any {
	view := SwitchesView{ID: s.WidgetID, Kind: KindSwitches, Title: s.Title, Layout: s.layout(), Session: snap.Session}

	var values []any
	for i, item := range s.Items {
		key := itemKey(i)
		pt, ok := snap.Points[key]
		if !ok || !pt.Found {
			continue
		}
		v := snap.Values[key]
		values = append(values, v.Val)

		sv := SwitchView{
			Key:    key,
			Name:   pt.Name,
			Kind:   pt.Kind,
			On:     binding.IsOn(pt, v.Val),
			Value:  f.Format(v.Val, RoundDefault),
			Unit:   pt.Unit,
			Min:    pt.Min,
			Max:    pt.Max,
			States: pt.States,
		}
		if label, ok := pt.Label(rawString(v.Val)); ok {
			sv.Label = label
		}
		sv.Icon, sv.BuiltinIcon = switchIcon(item, pt, sv.On)
		sv.Color = item.Color
		if sv.On {
			sv.Color = item.ColorEnabled
		}
		if sv.Color == "" {
			sv.Color = pt.Color
		}
		sv.Dialog = s.opensDialog(pt)
		view.Items = append(view.Items, sv)
	}

	if s.AllSwitch {
		on, intermediate := binding.GroupState(values)
		view.All = &GroupView{On: on, Intermediate: intermediate && s.layout() == LayoutSwitches}
	}
	return view
}

func switchIcon(item SwitchItem, pt binding.Point, on bool) (icon, builtin string) {
	if on && item.IconEnabled != "" {
		icon = "./files/" + item.IconEnabled
	} else if !on && item.Icon != "" {
		icon = "./files/" + item.Icon
	}
	if icon == "" {
		icon = pt.Icon
	}
	if icon != "" {
		return icon, ""
	}
	if on {
		return "", IconLightbulbOn
	}
	return "", IconLightbulbOff
}

// opensDialog reports whether pressing the item shows a value dialog. Only
// the button layout does so, for numeric and enumerated points.
func (s *Switches) opensDialog(pt binding.Point) bool {
	return s.layout() == LayoutButtons && pt.Kind != binding.KindBoolean
}

// Control handles item toggles, dialog actions and the group switch.
func (s *Switches) Control(ctx context.Context, c Controller, a Action) (Result, error) {
	switch a.Type {
	case ActionToggle:
		return Result{}, c.Toggle(ctx, a.Key)

	case ActionOn, ActionOff:
		return Result{}, c.SetOnOff(ctx, a.Key, a.Type == ActionOn)

	case ActionSetState:
		return Result{}, c.SetState(ctx, a.Key, a.State)

	case ActionSetAll:
		if !s.AllSwitch {
			return Result{}, fmt.Errorf("%w: group switch disabled", ErrInvalidAction)
		}
		on := false
		if a.On != nil {
			on = *a.On
		} else {
			snap := c.Snapshot()
			var values []any
			for i := range s.Items {
				if pt, ok := snap.Points[itemKey(i)]; ok && pt.Found {
					values = append(values, snap.Values[itemKey(i)].Val)
				}
			}
			allOn, _ := binding.GroupState(values)
			on = !allOn
		}
		return Result{}, c.SetAll(ctx, nil, on)

	case ActionBeginAdjust:
		st, err := c.BeginAdjust(ctx, a.Key)
		if err != nil {
			return Result{}, err
		}
		return Result{Session: &st}, nil

	case ActionAdjust:
		if a.Value == nil {
			return Result{}, fmt.Errorf("%w: adjust needs a value", ErrInvalidAction)
		}
		st, err := c.Adjust(ctx, a.Session, *a.Value)
		if err != nil {
			return Result{}, err
		}
		return Result{Session: &st}, nil

	case ActionEndAdjust:
		v, err := c.EndAdjust(ctx, a.Session)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: &v}, nil

	case ActionCancelAdjust:
		return Result{}, c.CancelAdjust(ctx, a.Session)
	}
	return Result{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedAction, a.Type, KindSwitches)
}
