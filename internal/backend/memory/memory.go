// Package memory is an in-process object store. It serves object metadata,
// live states and recorded history to bindings and publishes state changes
// on the event bus. Nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/binding"
	"github.com/dokzlo13/visbind/internal/eventbus"
	"github.com/dokzlo13/visbind/internal/objects"
)

// Supported history aggregates.
const (
	AggregateNone   = "none"
	AggregateMinMax = "minmax"
)

// DefaultRetention bounds how long recorded samples are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Change is the payload of an eventbus.TopicState event.
type Change struct {
	ID    string
	State objects.State
}

// Options configures a Store.
type Options struct {
	// Instance is the history instance the store answers for. Empty
	// accepts any instance.
	Instance  string
	Retention time.Duration
	Now       func() time.Time
}

// Store holds the object tree in memory.
type Store struct {
	bus  *eventbus.Bus
	opts Options

	mu      sync.RWMutex
	objects map[string]*objects.Object
	states  map[string]objects.State
	samples map[string][]objects.Sample
}

var _ binding.Client = (*Store)(nil)

// New creates an empty store publishing changes on bus.
func New(bus *eventbus.Bus, opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		bus:     bus,
		opts:    opts,
		objects: make(map[string]*objects.Object),
		states:  make(map[string]objects.State),
		samples: make(map[string][]objects.Sample),
	}
}

// AddObject stores obj, replacing any object with the same identifier.
func (s *Store) AddObject(obj objects.Object) {
	s.mu.Lock()
	o := obj
	s.objects[obj.ID] = &o
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicObject, Data: obj.ID})
}

// DeleteObject removes an object with its state and samples.
func (s *Store) DeleteObject(id string) {
	s.mu.Lock()
	delete(s.objects, id)
	delete(s.states, id)
	delete(s.samples, id)
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicObject, Data: id})
}

// IDs returns the identifiers of all stored objects, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) GetObject(ctx context.Context, id string) (*objects.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, objects.ErrNotFound)
	}
	o := *obj
	return &o, nil
}

func (s *Store) GetObjectsByID(ctx context.Context, ids []string) (map[string]*objects.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*objects.Object, len(ids))
	for _, id := range ids {
		if obj, ok := s.objects[id]; ok {
			o := *obj
			out[id] = &o
		}
	}
	return out, nil
}

func (s *Store) GetState(ctx context.Context, id string) (*objects.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// SetState accepts a command for a state object. The new value is
// acknowledged and delivered to subscribers asynchronously.
func (s *Store) SetState(ctx context.Context, id string, val any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	_, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("set %s: %w", id, objects.ErrNotFound)
	}

	log.Debug().Str("oid", id).Interface("val", val).Msg("State command accepted")
	s.Put(id, val)
	return nil
}

// Put records an acknowledged value, as a device reporting it would.
func (s *Store) Put(id string, val any) objects.State {
	st := objects.State{Val: val, Ts: s.opts.Now(), Ack: true}
	s.put(id, st)
	return st
}

// PutState records st as is.
func (s *Store) PutState(id string, st objects.State) {
	s.put(id, st)
}

func (s *Store) put(id string, st objects.State) {
	s.mu.Lock()
	if prev, ok := s.states[id]; !ok || !st.Ts.Before(prev.Ts) {
		s.states[id] = st
	}
	s.recordLocked(id, objects.Sample{Ts: st.Ts, Val: st.Val})
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicState, Data: Change{ID: id, State: st}})
}

// Record appends samples to the history of id without changing its state.
func (s *Store) Record(id string, samples ...objects.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, smp := range samples {
		s.recordLocked(id, smp)
	}
}

func (s *Store) recordLocked(id string, smp objects.Sample) {
	list := s.samples[id]
	// keep the list ordered; samples mostly arrive in order
	i := sort.Search(len(list), func(i int) bool { return list[i].Ts.After(smp.Ts) })
	list = append(list, objects.Sample{})
	copy(list[i+1:], list[i:])
	list[i] = smp

	cutoff := s.opts.Now().Add(-s.opts.Retention)
	drop := sort.Search(len(list), func(i int) bool { return !list[i].Ts.Before(cutoff) })
	s.samples[id] = list[drop:]
}

// SubscribeStates delivers changes of ids in publish order.
func (s *Store) SubscribeStates(ids []string, fn binding.StateHandler) (unsubscribe func()) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.bus.Subscribe(eventbus.TopicState, func(e eventbus.Event) {
		c, ok := e.Data.(Change)
		if !ok || !want[c.ID] {
			return
		}
		fn(c.ID, c.State)
	})
}

// GetHistory returns the samples of id within [q.Start, q.End], aggregated
// by q.Aggregate over q.Step buckets.
func (s *Store) GetHistory(ctx context.Context, id string, q binding.HistoryQuery) ([]objects.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.opts.Instance != "" && q.Instance != s.opts.Instance {
		return nil, fmt.Errorf("unknown history instance %q", q.Instance)
	}

	s.mu.RLock()
	list := s.samples[id]
	lo := sort.Search(len(list), func(i int) bool { return !list[i].Ts.Before(q.Start) })
	hi := len(list)
	if !q.End.IsZero() {
		hi = sort.Search(len(list), func(i int) bool { return list[i].Ts.After(q.End) })
	}
	var window []objects.Sample
	if lo < hi {
		window = append(window, list[lo:hi]...)
	}
	s.mu.RUnlock()

	switch q.Aggregate {
	case "", AggregateNone:
		return window, nil
	case AggregateMinMax:
		return minMax(window, q.Start, q.Step), nil
	}
	return nil, fmt.Errorf("unsupported aggregate %q", q.Aggregate)
}

// minMax keeps, per step bucket, the lowest and highest numeric samples in
// time order. Non-numeric samples are dropped.
func minMax(samples []objects.Sample, start time.Time, step time.Duration) []objects.Sample {
	if step <= 0 {
		return samples
	}

	var out []objects.Sample
	flush := func(lo, hi *objects.Sample) {
		if lo == nil {
			return
		}
		switch {
		case lo.Ts.Equal(hi.Ts):
			out = append(out, *lo)
		case lo.Ts.Before(hi.Ts):
			out = append(out, *lo, *hi)
		default:
			out = append(out, *hi, *lo)
		}
	}

	bucket := int64(-1)
	var lo, hi *objects.Sample
	var loV, hiV float64
	for i := range samples {
		v, ok := binding.ToFloat(samples[i].Val)
		if !ok {
			continue
		}
		b := int64(samples[i].Ts.Sub(start) / step)
		if b != bucket {
			flush(lo, hi)
			bucket = b
			lo, hi = nil, nil
		}
		smp := objects.Sample{Ts: samples[i].Ts, Val: v}
		if lo == nil || v < loV {
			lo, loV = &smp, v
		}
		if hi == nil || v > hiV {
			s2 := smp
			hi, hiV = &s2, v
		}
	}
	flush(lo, hi)
	return out
}
