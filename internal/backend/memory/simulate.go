package memory

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/binding"
	"github.com/dokzlo13/visbind/internal/objects"
)

// DriftStep is the largest change Drift applies to a value.
const DriftStep = 0.2

// Drift moves each numeric state in ids by a random step within its bounds,
// the way a sensor reports small changes.
func (s *Store) Drift(ids []string) {
	for _, id := range ids {
		s.mu.RLock()
		obj, ok := s.objects[id]
		st, hasState := s.states[id]
		s.mu.RUnlock()
		if !ok || !hasState || obj.Common.Type != objects.ValueNumber {
			continue
		}

		v, ok := binding.ToFloat(st.Val)
		if !ok {
			continue
		}
		v += (rand.Float64()*2 - 1) * DriftStep
		if obj.Common.Min != nil && v < *obj.Common.Min {
			v = *obj.Common.Min
		}
		if obj.Common.Max != nil && v > *obj.Common.Max {
			v = *obj.Common.Max
		}
		s.Put(id, math.Round(v*100)/100)
	}
}

// Simulate drifts ids every interval until ctx is done.
func (s *Store) Simulate(ctx context.Context, ids []string, interval time.Duration) {
	if interval <= 0 || len(ids) == 0 {
		return
	}
	log.Info().Strs("ids", ids).Dur("interval", interval).Msg("Sensor simulation started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Sensor simulation stopped")
			return
		case <-ticker.C:
			s.Drift(ids)
		}
	}
}
