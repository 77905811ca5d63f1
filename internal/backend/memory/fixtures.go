package memory

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/visbind/internal/objects"
)

// Fixtures is the YAML document seeding a store.
//
//	objects:
//	  - _id: hvac.0.living.temperature
//	    type: state
//	    common: {name: Temperature, type: number, role: value.temperature, unit: °C}
//	states:
//	  hvac.0.living.temperature: 21.4
//	history:
//	  hvac.0.living.temperature:
//	    every: 15m
//	    span: 24h
//	    values: [20.8, 21.1, 21.4, 21.9]
//	simulate:
//	  - hvac.0.living.temperature
type Fixtures struct {
	Objects  []objects.Object          `yaml:"objects"`
	States   map[string]any            `yaml:"states"`
	History  map[string]HistoryFixture `yaml:"history"`
	Simulate []string                  `yaml:"simulate"`
}

// HistoryFixture generates samples every Every over the Span before load
// time, cycling through Values.
type HistoryFixture struct {
	Every  string `yaml:"every"`
	Span   string `yaml:"span"`
	Values []any  `yaml:"values"`
}

// LoadFile reads fixtures from path into s.
func (s *Store) LoadFile(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures: %w", err)
	}
	defer f.Close()
	return s.Load(f)
}

// Load reads fixtures from r into s.
func (s *Store) Load(r io.Reader) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	for _, obj := range fx.Objects {
		if obj.ID == "" {
			return nil, fmt.Errorf("fixture object without _id")
		}
		s.AddObject(obj)
	}

	now := s.opts.Now()
	for id, h := range fx.History {
		samples, err := h.samples(now)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", id, err)
		}
		s.Record(id, samples...)
	}

	for id, val := range fx.States {
		s.PutState(id, objects.State{Val: val, Ts: now, Ack: true})
	}

	log.Info().
		Int("objects", len(fx.Objects)).
		Int("states", len(fx.States)).
		Int("histories", len(fx.History)).
		Msg("Fixtures loaded")
	return &fx, nil
}

func (h HistoryFixture) samples(now time.Time) ([]objects.Sample, error) {
	if len(h.Values) == 0 {
		return nil, nil
	}
	every, err := time.ParseDuration(h.Every)
	if err != nil || every <= 0 {
		return nil, fmt.Errorf("invalid every %q", h.Every)
	}
	span, err := time.ParseDuration(h.Span)
	if err != nil || span <= 0 {
		return nil, fmt.Errorf("invalid span %q", h.Span)
	}

	var out []objects.Sample
	i := 0
	for ts := now.Add(-span); ts.Before(now); ts = ts.Add(every) {
		out = append(out, objects.Sample{Ts: ts, Val: h.Values[i%len(h.Values)]})
		i++
	}
	return out, nil
}
