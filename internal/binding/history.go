package binding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/dokzlo13/visbind/internal/objects"
)

// History query defaults.
const (
	DefaultHistoryStep      = 30 * time.Minute
	DefaultHistoryAggregate = "minmax"
	DefaultTimeInterval     = 12
	DefaultUpdateInterval   = 60 * time.Second
)

// SeriesPoint is one charted sample.
type SeriesPoint struct {
	Ts  time.Time `json:"ts"`
	Val float64   `json:"val"`
}

// Series is the normalized history of one point. Points are ordered by
// time with unique timestamps and hold real samples only; no placeholder is
// stored for the window start. Charts must use Start as the left edge of
// the x axis. Anchored reports that Points[0] is later than Start.
type Series struct {
	ID       string        `json:"id"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Anchored bool          `json:"anchored"`
	Points   []SeriesPoint `json:"points"`
}

// Last returns the most recent sample.
func (s *Series) Last() (SeriesPoint, bool) {
	if s == nil || len(s.Points) == 0 {
		return SeriesPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// WindowStart returns now minus hours, floored to the start of that hour in
// now's location.
func WindowStart(now time.Time, hours int) time.Time {
	t := now.Add(-time.Duration(hours) * time.Hour)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// BuildSeries normalizes stored samples for [start, end] and appends the
// live value. Null and non-numeric samples are dropped, booleans become
// 0/1 and duplicate timestamps keep the later sample.
func BuildSeries(id string, start, end time.Time, samples []objects.Sample, live *objects.State) *Series {
	s := &Series{ID: id, Start: start, End: end}

	sorted := make([]objects.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ts.Before(sorted[j].Ts)
	})
	if len(sorted) > 0 && !sorted[0].Ts.Equal(start) {
		s.Anchored = true
	}

	for _, smp := range sorted {
		v, ok := ToFloat(smp.Val)
		if smp.Val == nil || !ok {
			continue
		}
		if n := len(s.Points); n > 0 && s.Points[n-1].Ts.Equal(smp.Ts) {
			s.Points[n-1].Val = v
			continue
		}
		s.Points = append(s.Points, SeriesPoint{Ts: smp.Ts, Val: v})
	}

	if live != nil && live.Val != nil {
		if v, ok := ToFloat(live.Val); ok {
			ts := end
			if last, ok := s.Last(); ok && last.Ts.After(ts) {
				ts = last.Ts
			}
			s.Points = append(s.Points, SeriesPoint{Ts: ts, Val: v})
		}
	}
	return s
}

// Synchronizer fetches one refresh cycle of history for a point.
type Synchronizer struct {
	history   HistoryReader
	states    StateReader
	limiter   *rate.Limiter
	step      time.Duration
	aggregate string
	now       func() time.Time
}

// SynchronizerConfig tunes history queries. Zero values select defaults.
type SynchronizerConfig struct {
	Step      time.Duration
	Aggregate string
	// Limiter throttles history queries across all points. Nil is unlimited.
	Limiter *rate.Limiter
	Now     func() time.Time
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(history HistoryReader, states StateReader, cfg SynchronizerConfig) *Synchronizer {
	s := &Synchronizer{
		history:   history,
		states:    states,
		limiter:   cfg.Limiter,
		step:      cfg.Step,
		aggregate: cfg.Aggregate,
		now:       cfg.Now,
	}
	if s.step <= 0 {
		s.step = DefaultHistoryStep
	}
	if s.aggregate == "" {
		s.aggregate = DefaultHistoryAggregate
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Fetch runs one refresh cycle for id over the trailing window of hours.
func (s *Synchronizer) Fetch(ctx context.Context, id, instance string, hours int) (*Series, error) {
	if hours <= 0 {
		hours = DefaultTimeInterval
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("history rate limit: %w", err)
		}
	}

	now := s.now()
	start := WindowStart(now, hours)
	samples, err := s.history.GetHistory(ctx, id, HistoryQuery{
		Instance:  instance,
		Start:     start,
		End:       now,
		Step:      s.step,
		Aggregate: s.aggregate,
	})
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}

	live, err := s.states.GetState(ctx, id)
	if err != nil {
		// The series is still usable without the trailing live sample.
		live = nil
	}
	return BuildSeries(id, start, now, samples, live), nil
}
