// Package widgets implements the dashboard widget types. Each widget
// declares which points it binds, renders a view from a binding snapshot,
// and maps user actions onto binding controls.
package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dokzlo13/visbind/internal/binding"
)

var (
	// ErrUnknownKind is returned by Decode for an unregistered widget kind.
	ErrUnknownKind = errors.New("unknown widget kind")
	// ErrUnsupportedAction is returned when a widget has no such control.
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrInvalidAction is returned when an action's arguments do not fit.
	ErrInvalidAction = errors.New("invalid action")
)

// Kind names a widget type.
type Kind string

const (
	KindActual     Kind = "actual"
	KindThermostat Kind = "thermostat"
	KindSwitches   Kind = "switches"
)

// Action types.
const (
	ActionToggle       = "toggle"
	ActionOn           = "on"
	ActionOff          = "off"
	ActionSetState     = "set_state"
	ActionSetAll       = "all"
	ActionMode         = "mode"
	ActionBeginAdjust  = "begin_adjust"
	ActionAdjust       = "adjust"
	ActionEndAdjust    = "end_adjust"
	ActionCancelAdjust = "cancel_adjust"
)

// Action is a user interaction with a widget.
type Action struct {
	Type    string   `json:"type"`
	Key     string   `json:"key,omitempty"`
	State   string   `json:"state,omitempty"`
	Value   *float64 `json:"value,omitempty"`
	On      *bool    `json:"on,omitempty"`
	Session string   `json:"session,omitempty"`
}

// Result reports what an action did.
type Result struct {
	Session *binding.SessionState `json:"session,omitempty"`
	Value   *float64              `json:"value,omitempty"`
}

// Controller is the part of a binding widgets drive.
type Controller interface {
	Snapshot() binding.Snapshot
	Toggle(ctx context.Context, key string) error
	SetOnOff(ctx context.Context, key string, on bool) error
	SetState(ctx context.Context, key, raw string) error
	SetAll(ctx context.Context, keys []string, on bool) error
	BeginAdjust(ctx context.Context, key string) (binding.SessionState, error)
	Adjust(ctx context.Context, sessionID string, value float64) (binding.SessionState, error)
	EndAdjust(ctx context.Context, sessionID string) (float64, error)
	CancelAdjust(ctx context.Context, sessionID string) error
}

// Widget is one dashboard widget.
type Widget interface {
	ID() string
	Kind() Kind
	Binding() binding.Config
	View(snap binding.Snapshot, f Formatter) any
	Control(ctx context.Context, c Controller, a Action) (Result, error)
}

// Decode builds a widget of kind from a declaration map.
func Decode(kind Kind, id string, decl map[string]any) (Widget, error) {
	data, err := json.Marshal(decl)
	if err != nil {
		return nil, fmt.Errorf("widget %s: %w", id, err)
	}

	var w Widget
	switch kind {
	case KindActual:
		a := &Actual{}
		err = json.Unmarshal(data, a)
		a.WidgetID = id
		w = a
	case KindThermostat:
		t := &Thermostat{}
		err = json.Unmarshal(data, t)
		t.WidgetID = id
		w = t
	case KindSwitches:
		s := &Switches{}
		err = json.Unmarshal(data, s)
		s.WidgetID = id
		w = s
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("widget %s: %w", id, err)
	}
	return w, nil
}

// History holds the chart settings shared by widgets with history.
type History struct {
	// TimeInterval is the chart window in hours.
	TimeInterval int `json:"time_interval,omitempty"`
	// UpdateInterval is the chart refresh period in seconds.
	UpdateInterval int `json:"update_interval,omitempty"`
}

func (h History) apply(cfg binding.Config) binding.Config {
	cfg.TimeInterval = h.TimeInterval
	if h.UpdateInterval > 0 {
		cfg.UpdateInterval = time.Duration(h.UpdateInterval) * time.Second
	}
	return cfg
}

// ChartSeries is one charted line.
type ChartSeries struct {
	Key      string                `json:"key"`
	Name     string                `json:"name"`
	Color    string                `json:"color,omitempty"`
	Unit     string                `json:"unit,omitempty"`
	Step     bool                  `json:"step,omitempty"`
	Start    time.Time             `json:"start"`
	Anchored bool                  `json:"anchored"`
	Points   []binding.SeriesPoint `json:"points"`
}

func chartSeries(snap binding.Snapshot, key, color string, step bool) (ChartSeries, bool) {
	s, ok := snap.Series[key]
	if !ok || s == nil {
		return ChartSeries{}, false
	}
	pt := snap.Points[key]
	return ChartSeries{
		Key:      key,
		Name:     pt.Name,
		Color:    color,
		Unit:     pt.Unit,
		Step:     step,
		Start:    s.Start,
		Anchored: s.Anchored,
		Points:   s.Points,
	}, true
}

// value returns the displayed value of a found point.
func value(snap binding.Snapshot, key string) (binding.Value, bool) {
	pt, ok := snap.Points[key]
	if !ok || !pt.Found {
		return binding.Value{}, false
	}
	v, ok := snap.Values[key]
	if !ok || v.Val == nil {
		return binding.Value{}, false
	}
	return v, true
}

func slot(key, oid string) binding.PointConfig {
	return binding.PointConfig{Key: key, ID: oid}
}

func isBound(oid string) bool {
	return oid != "" && oid != binding.Unbound
}
