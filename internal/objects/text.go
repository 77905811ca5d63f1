package objects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Text is a display string that is either plain or translated per language.
type Text struct {
	Plain string
	Langs map[string]string
}

// PlainText returns a Text holding a single untranslated string.
func PlainText(s string) Text {
	return Text{Plain: s}
}

// IsZero reports whether the text is empty.
func (t Text) IsZero() bool {
	return t.Plain == "" && len(t.Langs) == 0
}

// String returns the text for lang, falling back to English and then to
// the first language in key order.
func (t Text) String(lang string) string {
	if t.Plain != "" || len(t.Langs) == 0 {
		return t.Plain
	}
	if s, ok := t.Langs[lang]; ok && s != "" {
		return s
	}
	if s, ok := t.Langs["en"]; ok && s != "" {
		return s
	}
	keys := make([]string, 0, len(t.Langs))
	for k := range t.Langs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return t.Langs[keys[0]]
}

// UnmarshalJSON accepts a string or an object of language -> string.
func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &t.Plain)
	}
	var langs map[string]any
	if err := json.Unmarshal(data, &langs); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	t.Langs = make(map[string]string, len(langs))
	for k, v := range langs {
		t.Langs[k] = scalarString(v)
	}
	return nil
}

// MarshalJSON writes the plain string or the language map.
func (t Text) MarshalJSON() ([]byte, error) {
	if len(t.Langs) > 0 && t.Plain == "" {
		return json.Marshal(t.Langs)
	}
	return json.Marshal(t.Plain)
}

// UnmarshalYAML accepts a scalar or a mapping of language -> string.
func (t *Text) UnmarshalYAML(value *yaml.Node) error {
	*t = Text{}
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil
		}
		t.Plain = value.Value
	case yaml.MappingNode:
		t.Langs = make(map[string]string, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			t.Langs[value.Content[i].Value] = value.Content[i+1].Value
		}
	default:
		return fmt.Errorf("name: unsupported yaml node kind %d", value.Kind)
	}
	return nil
}

// MarshalYAML writes the plain string or the language map.
func (t Text) MarshalYAML() (interface{}, error) {
	if len(t.Langs) > 0 && t.Plain == "" {
		return t.Langs, nil
	}
	return t.Plain, nil
}

// scalarString renders a decoded scalar as the string a user would see.
func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
