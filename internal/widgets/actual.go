package widgets

import (
	"context"
	"fmt"
	"strings"

	"github.com/dokzlo13/visbind/internal/binding"
)

// Builtin icon names used when a point has no icon of its own.
const (
	IconThermostat   = "thermostat"
	IconHumidity     = "humidity"
	IconLightbulbOn  = "lightbulb_on"
	IconLightbulbOff = "lightbulb_off"
)

const (
	actualMainColor      = "rgba(243,177,31,0.65)"
	actualSecondaryColor = "rgba(77,134,255,0.44)"
)

// Slot configures one displayed point.
type Slot struct {
	OID   string `json:"oid"`
	Title string `json:"title,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// Actual shows a main and a secondary reading, typically temperature and
// humidity, with their history.
type Actual struct {
	WidgetID  string `json:"-"`
	Title     string `json:"title,omitempty"`
	Main      Slot   `json:"main"`
	Secondary Slot   `json:"secondary"`
	History
}

// Reading is one displayed value.
type Reading struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Raw         any    `json:"raw"`
	Unit        string `json:"unit,omitempty"`
	Icon        string `json:"icon,omitempty"`
	BuiltinIcon string `json:"builtin_icon,omitempty"`
	Optimistic  bool   `json:"optimistic,omitempty"`
}

// ActualView is the rendered state of an Actual widget.
type ActualView struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Title     string        `json:"title,omitempty"`
	Main      *Reading      `json:"main,omitempty"`
	Secondary *Reading      `json:"secondary,omitempty"`
	Chart     []ChartSeries `json:"chart,omitempty"`
}

func (a *Actual) ID() string { return a.WidgetID }
func (a *Actual) Kind() Kind { return KindActual }

func (a *Actual) Binding() binding.Config {
	main := slot("main", a.Main.OID)
	main.Title, main.Icon, main.Unit = a.Main.Title, a.Main.Icon, a.Main.Unit
	secondary := slot("secondary", a.Secondary.OID)
	secondary.Title, secondary.Icon, secondary.Unit = a.Secondary.Title, a.Secondary.Icon, a.Secondary.Unit

	return a.History.apply(binding.Config{
		Points: []binding.PointConfig{main, secondary},
	})
}

func (a *Actual) View(snap binding.Snapshot, f Formatter) any {
	view := ActualView{ID: a.WidgetID, Kind: KindActual, Title: a.Title}

	if r, ok := reading(snap, "main", f, RoundDefault); ok {
		pt := snap.Points["main"]
		if r.Icon == "" && (strings.Contains(pt.Role, "temperature") || strings.Contains(pt.Unit, "°")) {
			r.BuiltinIcon = IconThermostat
		}
		view.Main = &r
	}
	if r, ok := reading(snap, "secondary", f, RoundInteger); ok {
		if r.Icon == "" && strings.Contains(snap.Points["secondary"].Role, "humidity") {
			r.BuiltinIcon = IconHumidity
		}
		view.Secondary = &r
	}

	if s, ok := chartSeries(snap, "main", actualMainColor, false); ok {
		view.Chart = append(view.Chart, s)
	}
	if s, ok := chartSeries(snap, "secondary", actualSecondaryColor, false); ok {
		view.Chart = append(view.Chart, s)
	}
	return view
}

// Control rejects every action; the widget is read-only.
func (a *Actual) Control(_ context.Context, _ Controller, act Action) (Result, error) {
	return Result{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedAction, act.Type, KindActual)
}

func reading(snap binding.Snapshot, key string, f Formatter, round int) (Reading, bool) {
	v, ok := value(snap, key)
	if !ok {
		return Reading{}, false
	}
	pt := snap.Points[key]
	return Reading{
		Name:       pt.Name,
		Value:      f.Format(v.Val, round),
		Raw:        v.Val,
		Unit:       pt.Unit,
		Icon:       pt.Icon,
		Optimistic: v.Optimistic,
	}, true
}
