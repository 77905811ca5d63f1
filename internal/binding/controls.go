package binding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/objects"
)

// Toggle flips a point between on and off. Numeric points switch between
// their own bounds, everything else between true and false.
func (b *Binding) Toggle(ctx context.Context, key string) error {
	return b.writeThrough(ctx, func() ([]Write, error) {
		pt, err := b.boundPoint(key)
		if err != nil {
			return nil, err
		}
		cur, _ := b.values.Get(pt.ID)
		return []Write{b.discrete(pt, OnOffValue(pt, !IsOn(pt, cur.Val)))}, nil
	})
}

// SetOnOff switches a point on or off explicitly.
func (b *Binding) SetOnOff(ctx context.Context, key string, on bool) error {
	return b.writeThrough(ctx, func() ([]Write, error) {
		pt, err := b.boundPoint(key)
		if err != nil {
			return nil, err
		}
		return []Write{b.discrete(pt, OnOffValue(pt, on))}, nil
	})
}

// SetState writes a displayed option key, coerced to the point's value type.
func (b *Binding) SetState(ctx context.Context, key, raw string) error {
	return b.writeThrough(ctx, func() ([]Write, error) {
		pt, err := b.boundPoint(key)
		if err != nil {
			return nil, err
		}
		return []Write{b.discrete(pt, Coerce(pt, raw))}, nil
	})
}

// SetValue writes val as is.
func (b *Binding) SetValue(ctx context.Context, key string, val any) error {
	return b.writeThrough(ctx, func() ([]Write, error) {
		pt, err := b.boundPoint(key)
		if err != nil {
			return nil, err
		}
		return []Write{b.discrete(pt, val)}, nil
	})
}

// SetAll switches every listed point on or off. An empty list means every
// bound point.
func (b *Binding) SetAll(ctx context.Context, keys []string, on bool) error {
	return b.writeThrough(ctx, func() ([]Write, error) {
		if len(keys) == 0 {
			for key, pt := range b.points {
				if pt.Bound {
					keys = append(keys, key)
				}
			}
			sort.Strings(keys)
		}
		writes := make([]Write, 0, len(keys))
		for _, key := range keys {
			pt, err := b.boundPoint(key)
			if err != nil {
				return nil, err
			}
			writes = append(writes, b.discrete(pt, OnOffValue(pt, on)))
		}
		return writes, nil
	})
}

// OnOffValue is the value written to switch p on or off.
func OnOffValue(p Point, on bool) any {
	if p.ValueType == objects.ValueNumber {
		if on {
			return p.Max
		}
		return p.Min
	}
	return on
}

// GroupState summarizes a switch group. allOn holds when every value is
// truthy. intermediate holds when some value is not the boolean allOn.
//
// Numeric members are judged by truthiness here, not against their minimum
// as IsOn does, so a dimmer at its minimum of 10 counts as on for allOn and
// every numeric member counts as differing for intermediate. Callers that
// need per-point semantics should use IsOn.
func GroupState(values []any) (allOn, intermediate bool) {
	allOn = true
	for _, v := range values {
		if !Truthy(v) {
			allOn = false
			break
		}
	}
	for _, v := range values {
		if bv, ok := v.(bool); !ok || bv != allOn {
			intermediate = true
			break
		}
	}
	return allOn, intermediate
}

// writeThrough computes writes on the loop, applies them optimistically and
// submits them from the caller's goroutine.
func (b *Binding) writeThrough(ctx context.Context, build func() ([]Write, error)) error {
	var writes []Write
	err := b.call(ctx, func(context.Context) error {
		if b.closed {
			return ErrClosed
		}
		w, err := build()
		if err != nil {
			return err
		}
		for _, wr := range w {
			b.values.SetOptimistic(wr.OID, wr.Value)
		}
		b.publish()
		writes = w
		return nil
	})
	if err != nil {
		return err
	}
	return b.submit(ctx, writes)
}

func (b *Binding) boundPoint(key string) (Point, error) {
	pt, ok := b.points[key]
	if !ok || !pt.Bound {
		return Point{}, fmt.Errorf("%w: %s", ErrUnknownPoint, key)
	}
	return pt, nil
}

func (b *Binding) discrete(pt Point, val any) Write {
	return Write{
		Mode:      WriteThrough,
		BindingID: b.id,
		Owner:     b.owner,
		Key:       pt.Key,
		OID:       pt.ID,
		Value:     val,
		At:        b.now(),
	}
}

// submit sends writes without waiting for their echo. A failed write is
// not retried; the optimistic value stays until the next live update.
func (b *Binding) submit(ctx context.Context, writes []Write) error {
	var errs []error
	for _, w := range writes {
		if err := b.client.SetState(ctx, w.OID, w.Value); err != nil {
			log.Warn().Err(err).Str("binding", b.id).Str("oid", w.OID).Msg("Write failed")
			errs = append(errs, fmt.Errorf("set %s: %w", w.OID, err))
			continue
		}
		log.Debug().
			Str("binding", b.id).
			Str("oid", w.OID).
			Str("mode", string(w.Mode)).
			Interface("value", w.Value).
			Msg("Write submitted")
		if b.journal != nil {
			if err := b.journal.Record(ctx, w); err != nil {
				log.Warn().Err(err).Str("binding", b.id).Str("oid", w.OID).Msg("Failed to journal write")
			}
		}
	}
	return errors.Join(errs...)
}
