package binding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/objects"
)

// DefaultStep is the commit granularity of a point without a configured step.
const DefaultStep = 1.0

// SessionState is an open adjust session. Value is the working value; it is
// never written until the session ends.
type SessionState struct {
	ID    string  `json:"id"`
	Key   string  `json:"key"`
	OID   string  `json:"oid"`
	Start float64 `json:"start"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
}

// Commit returns the value the session would write now.
func (s SessionState) Commit() float64 {
	return Clamp(Quantize(s.Value, s.Step), s.Min, s.Max)
}

// BeginAdjust opens an adjust session on a numeric point, or on any point
// whose slot declares its own range (a thermostat setpoint). The working value
// starts at the current value clamped to the point's bounds, or at the
// middle of the bounds when there is no value. An open session on the
// binding is cancelled first.
func (b *Binding) BeginAdjust(ctx context.Context, key string) (SessionState, error) {
	var out SessionState
	err := b.call(ctx, func(context.Context) error {
		if b.closed {
			return ErrClosed
		}
		pt, err := b.boundPoint(key)
		if err != nil {
			return err
		}
		if pt.ValueType != objects.ValueNumber && pt.Kind != KindNumeric && !pt.Bounded {
			return fmt.Errorf("%w: %s", ErrNotAdjustable, key)
		}
		if b.session != nil {
			b.values.ClearOverlay(b.session.OID)
			b.session = nil
		}

		start := (pt.Min + pt.Max) / 2
		if cur, ok := b.values.Get(pt.ID); ok {
			if f, ok := ToFloat(cur.Val); ok && cur.Val != nil {
				start = Clamp(f, pt.Min, pt.Max)
			}
		}
		step := pt.Step
		if step <= 0 {
			step = DefaultStep
		}

		b.session = &SessionState{
			ID:    uuid.NewString(),
			Key:   key,
			OID:   pt.ID,
			Start: start,
			Value: start,
			Min:   pt.Min,
			Max:   pt.Max,
			Step:  step,
		}
		b.values.SetOverlay(pt.ID, start)
		b.publish()
		out = *b.session

		log.Debug().
			Str("binding", b.id).
			Str("session", out.ID).
			Str("oid", pt.ID).
			Float64("start", start).
			Msg("Adjust session opened")
		return nil
	})
	return out, err
}

// Adjust moves the working value of an open session. Nothing is written.
func (b *Binding) Adjust(ctx context.Context, sessionID string, value float64) (SessionState, error) {
	var out SessionState
	err := b.call(ctx, func(context.Context) error {
		s, err := b.openSession(sessionID)
		if err != nil {
			return err
		}
		s.Value = Clamp(value, s.Min, s.Max)
		b.values.SetOverlay(s.OID, s.Commit())
		b.publish()
		out = *s
		return nil
	})
	return out, err
}

// EndAdjust closes a session and writes its final value, quantized to the
// session step and clamped, exactly once.
func (b *Binding) EndAdjust(ctx context.Context, sessionID string) (float64, error) {
	var w Write
	err := b.call(ctx, func(context.Context) error {
		s, err := b.openSession(sessionID)
		if err != nil {
			return err
		}
		final := s.Commit()
		b.values.ClearOverlay(s.OID)
		b.values.SetOptimistic(s.OID, final)
		b.session = nil
		b.publish()

		w = Write{
			Mode:      WriteCommit,
			BindingID: b.id,
			Owner:     b.owner,
			Key:       s.Key,
			OID:       s.OID,
			Value:     final,
			SessionID: s.ID,
			At:        b.now(),
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	final := w.Value.(float64)
	return final, b.submit(ctx, []Write{w})
}

// CancelAdjust closes a session without writing.
func (b *Binding) CancelAdjust(ctx context.Context, sessionID string) error {
	return b.call(ctx, func(context.Context) error {
		s, err := b.openSession(sessionID)
		if err != nil {
			return err
		}
		b.values.ClearOverlay(s.OID)
		b.session = nil
		b.publish()
		log.Debug().Str("binding", b.id).Str("session", s.ID).Msg("Adjust session cancelled")
		return nil
	})
}

func (b *Binding) openSession(id string) (*SessionState, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if b.session == nil || b.session.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return b.session, nil
}
