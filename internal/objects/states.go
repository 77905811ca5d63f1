package objects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StateEntry maps one raw value to its display label.
type StateEntry struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// States is the raw "states" attribute of an object as stored by the source.
// Exactly one of List or Entries is populated: List when the source stored a
// sequence, Entries (in source order) when it stored a mapping or the legacy
// "value:label;value:label" string.
type States struct {
	List    []string
	Entries []StateEntry
}

// IsZero reports whether no states are declared.
func (s States) IsZero() bool {
	return len(s.List) == 0 && len(s.Entries) == 0
}

// UnmarshalJSON decodes a sequence, a mapping or a legacy string, keeping
// mapping keys in document order.
func (s *States) UnmarshalJSON(data []byte) error {
	*s = States{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("states: %w", err)
	}

	switch t := tok.(type) {
	case nil:
		return nil
	case string:
		s.Entries = parseLegacyStates(t)
		return nil
	case json.Delim:
		switch t {
		case '[':
			s.List = []string{}
			for dec.More() {
				var v any
				if err := dec.Decode(&v); err != nil {
					return fmt.Errorf("states: %w", err)
				}
				s.List = append(s.List, scalarString(v))
			}
			return nil
		case '{':
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return fmt.Errorf("states: %w", err)
				}
				key, _ := keyTok.(string)
				var v any
				if err := dec.Decode(&v); err != nil {
					return fmt.Errorf("states: %w", err)
				}
				s.Entries = append(s.Entries, StateEntry{Value: key, Label: scalarString(v)})
			}
			return nil
		}
	}
	return fmt.Errorf("states: unexpected token %v", tok)
}

// MarshalJSON writes the states back in their source shape.
func (s States) MarshalJSON() ([]byte, error) {
	if s.List != nil {
		return json.Marshal(s.List)
	}
	if len(s.Entries) == 0 {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a sequence, a mapping or a legacy string.
func (s *States) UnmarshalYAML(value *yaml.Node) error {
	*s = States{}
	switch value.Kind {
	case yaml.SequenceNode:
		s.List = make([]string, 0, len(value.Content))
		for _, n := range value.Content {
			s.List = append(s.List, n.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			s.Entries = append(s.Entries, StateEntry{
				Value: value.Content[i].Value,
				Label: value.Content[i+1].Value,
			})
		}
	case yaml.ScalarNode:
		if value.Tag != "!!null" {
			s.Entries = parseLegacyStates(value.Value)
		}
	default:
		return fmt.Errorf("states: unsupported yaml node kind %d", value.Kind)
	}
	return nil
}

// MarshalYAML writes the states back in their source shape.
func (s States) MarshalYAML() (interface{}, error) {
	if s.List != nil {
		return s.List, nil
	}
	if len(s.Entries) == 0 {
		return nil, nil
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range s.Entries {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Value},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Label},
		)
	}
	return node, nil
}

// parseLegacyStates parses "0:off;1:on".
func parseLegacyStates(raw string) []StateEntry {
	var entries []StateEntry
	for _, part := range strings.Split(raw, ";") {
		if part == "" {
			continue
		}
		value, label, found := strings.Cut(part, ":")
		if !found {
			label = value
		}
		entries = append(entries, StateEntry{Value: strings.TrimSpace(value), Label: strings.TrimSpace(label)})
	}
	return entries
}
