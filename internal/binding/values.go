package binding

import (
	"time"

	"github.com/dokzlo13/visbind/internal/objects"
)

// Value is the displayed value of one point.
type Value struct {
	Val any       `json:"val"`
	Ts  time.Time `json:"ts,omitempty"`
	// Optimistic marks a locally written value not yet echoed by the store.
	Optimistic bool `json:"optimistic,omitempty"`
	// Adjusting marks the working value of an open adjust session.
	Adjusting bool `json:"adjusting,omitempty"`
}

// Values layers local state over the canonical live values, keyed by object
// identifier. Reads see the session overlay first, then optimistic writes,
// then the canonical value. Not safe for concurrent use.
type Values struct {
	canonical  map[string]objects.State
	optimistic map[string]any
	overlay    map[string]any
}

// NewValues creates an empty cache.
func NewValues() *Values {
	return &Values{
		canonical:  make(map[string]objects.State),
		optimistic: make(map[string]any),
		overlay:    make(map[string]any),
	}
}

// Apply records a live value. An update older than the stored one is
// ignored. Any optimistic value for id is superseded.
func (v *Values) Apply(id string, st objects.State) bool {
	if cur, ok := v.canonical[id]; ok && !st.Ts.IsZero() && st.Ts.Before(cur.Ts) {
		return false
	}
	v.canonical[id] = st
	delete(v.optimistic, id)
	return true
}

// SetOptimistic records a value written locally.
func (v *Values) SetOptimistic(id string, val any) {
	v.optimistic[id] = val
}

// SetOverlay records a session's working value.
func (v *Values) SetOverlay(id string, val any) {
	v.overlay[id] = val
}

// ClearOverlay drops a session's working value.
func (v *Values) ClearOverlay(id string) {
	delete(v.overlay, id)
}

// Canonical returns the last live value.
func (v *Values) Canonical(id string) (objects.State, bool) {
	st, ok := v.canonical[id]
	return st, ok
}

// Get returns the displayed value of id.
func (v *Values) Get(id string) (Value, bool) {
	st, hasCanonical := v.canonical[id]
	if val, ok := v.overlay[id]; ok {
		return Value{Val: val, Ts: st.Ts, Adjusting: true}, true
	}
	if val, ok := v.optimistic[id]; ok {
		return Value{Val: val, Ts: st.Ts, Optimistic: true}, true
	}
	if hasCanonical {
		return Value{Val: st.Val, Ts: st.Ts}, true
	}
	return Value{}, false
}

// Retain drops every entry whose id is not in keep.
func (v *Values) Retain(keep map[string]bool) {
	for id := range v.canonical {
		if !keep[id] {
			delete(v.canonical, id)
		}
	}
	for id := range v.optimistic {
		if !keep[id] {
			delete(v.optimistic, id)
		}
	}
	for id := range v.overlay {
		if !keep[id] {
			delete(v.overlay, id)
		}
	}
}
