// Package objects models the home-automation object tree that widgets bind to:
// object metadata, live states and history samples.
package objects

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when an identifier resolves to no object.
var ErrNotFound = errors.New("object not found")

// Type is the structural type of an object in the tree.
type Type string

const (
	TypeState    Type = "state"
	TypeChannel  Type = "channel"
	TypeDevice   Type = "device"
	TypeFolder   Type = "folder"
	TypeInstance Type = "instance"
	TypeAdapter  Type = "adapter"
)

// ValueType is the primitive type declared for a state's value.
type ValueType string

const (
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueString  ValueType = "string"
	ValueMixed   ValueType = "mixed"
)

// Object is one node of the object tree.
type Object struct {
	ID     string `json:"_id" yaml:"_id"`
	Type   Type   `json:"type" yaml:"type"`
	Common Common `json:"common" yaml:"common"`
}

// Common holds the display and typing metadata of an object.
type Common struct {
	Name   Text           `json:"name,omitempty" yaml:"name,omitempty"`
	Icon   string         `json:"icon,omitempty" yaml:"icon,omitempty"`
	Type   ValueType      `json:"type,omitempty" yaml:"type,omitempty"`
	Role   string         `json:"role,omitempty" yaml:"role,omitempty"`
	Unit   string         `json:"unit,omitempty" yaml:"unit,omitempty"`
	Color  string         `json:"color,omitempty" yaml:"color,omitempty"`
	Min    *float64       `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64       `json:"max,omitempty" yaml:"max,omitempty"`
	States States         `json:"states,omitempty" yaml:"states,omitempty"`
	Custom map[string]any `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// State is the live value of a state object.
type State struct {
	Val any       `json:"val"`
	Ts  time.Time `json:"ts"`
	Ack bool      `json:"ack"`
}

// Sample is one historical (timestamp, value) pair. Val may be nil.
type Sample struct {
	Ts  time.Time `json:"ts"`
	Val any       `json:"val"`
}

// ParentID returns the identifier `levels` segments above id.
// It reports false when id has no such ancestor.
func ParentID(id string, levels int) (string, bool) {
	parts := strings.Split(id, ".")
	if levels <= 0 || len(parts) <= levels {
		return "", false
	}
	return strings.Join(parts[:len(parts)-levels], "."), true
}
