package binding

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dokzlo13/visbind/internal/objects"
)

// Unbound is the identifier a configuration uses for an empty slot.
const Unbound = "nothing_selected"

// Default numeric bounds.
const (
	DefaultMin = 0.0
	DefaultMax = 100.0
)

// Kind is how a point is controlled and displayed.
type Kind string

const (
	KindBoolean    Kind = "boolean"
	KindNumeric    Kind = "numeric"
	KindEnumerated Kind = "enumerated"
)

// StateOption is one selectable value of an enumerated point.
type StateOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// PointConfig is one configured reference to an external value, plus the
// display overrides the widget declares for it.
type PointConfig struct {
	Key        string   `json:"key"`
	ID         string   `json:"id"`
	Title      string   `json:"title,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	Color      string   `json:"color,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	DefaultMin *float64 `json:"default_min,omitempty"`
	DefaultMax *float64 `json:"default_max,omitempty"`
	Step       float64  `json:"step,omitempty"`
}

// IsBound reports whether the slot references an identifier.
func (pc PointConfig) IsBound() bool {
	return pc.ID != "" && pc.ID != Unbound
}

// Config is the binding-relevant subset of a widget configuration.
type Config struct {
	Points []PointConfig `json:"points"`
	// TimeInterval is the trailing history window in hours.
	TimeInterval int `json:"time_interval"`
	// UpdateInterval is the history refresh period.
	UpdateInterval  time.Duration `json:"update_interval"`
	HistoryInstance string        `json:"history_instance,omitempty"`
	Language        string        `json:"language,omitempty"`
}

// Point returns the slot configured under key.
func (c Config) Point(key string) (PointConfig, bool) {
	for _, pc := range c.Points {
		if pc.Key == key {
			return pc, true
		}
	}
	return PointConfig{}, false
}

// Signature is a structural snapshot of cfg. Two configurations with equal
// signatures resolve to the same points.
func Signature(cfg Config) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		// Config only holds marshalable fields.
		panic(err)
	}
	return string(data)
}

// Point is a resolved reference to one external value. It is rebuilt on
// every resolution and never mutated afterwards.
type Point struct {
	Key            string            `json:"key"`
	ID             string            `json:"id"`
	Bound          bool              `json:"bound"`
	Found          bool              `json:"found"`
	Kind           Kind              `json:"kind"`
	ValueType      objects.ValueType `json:"value_type,omitempty"`
	Role           string            `json:"role,omitempty"`
	Min            float64           `json:"min"`
	Max            float64           `json:"max"`
	Step           float64           `json:"step,omitempty"`
	States         []StateOption     `json:"states,omitempty"`
	Icon           string            `json:"icon,omitempty"`
	Color          string            `json:"color,omitempty"`
	Unit           string            `json:"unit,omitempty"`
	Name           string            `json:"name,omitempty"`
	HistoryEnabled bool              `json:"history_enabled"`
	// Bounded marks a slot whose widget declares its own value range.
	Bounded bool `json:"bounded,omitempty"`
}

// Label returns the display label of an enumerated raw value.
func (p Point) Label(raw string) (string, bool) {
	for _, s := range p.States {
		if s.Value == raw {
			return s.Label, true
		}
	}
	return "", false
}

// Truthy reports whether v counts as "on" for a non-numeric point.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "on":
			return true
		}
		return false
	default:
		f, ok := ToFloat(v)
		return ok && f != 0
	}
}

// IsOn reports whether v is the "on" state of p. A numeric point is on
// whenever it differs from its minimum.
func IsOn(p Point, v any) bool {
	if p.ValueType == objects.ValueNumber {
		f, ok := ToFloat(v)
		return ok && f != p.Min
	}
	return Truthy(v)
}

// ToFloat converts a numeric-looking value. Booleans map to 0/1.
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint8:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// Clamp limits v to [min, max].
func Clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Quantize rounds v to the nearest multiple of step. A non-positive step
// leaves v unchanged.
func Quantize(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}

// Coerce converts a displayed option key to the point's primitive type.
func Coerce(p Point, raw string) any {
	switch p.ValueType {
	case objects.ValueNumber:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f
		}
	case objects.ValueBoolean:
		if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			return b
		}
	}
	return raw
}
