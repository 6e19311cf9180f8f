package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Snapshot is one point-in-time telemetry poll result of arbitrary shape.
// Key order is preserved from the wire because headline metrics are taken in
// document order. Nested objects decode as Snapshot, arrays as []any.
type Snapshot struct {
	keys   []string
	values map[string]any
}

// NewSnapshot builds a snapshot from a map; keys are ordered lexically.
func NewSnapshot(fields map[string]any) Snapshot {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	snapshot := Snapshot{}
	for _, key := range keys {
		snapshot.Set(key, fields[key])
	}
	return snapshot
}

// ParseSnapshot decodes a JSON object into a Snapshot.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	err := json.Unmarshal(data, &snapshot)
	return snapshot, err
}

// Set adds or replaces a field; new keys are appended to the order.
func (s *Snapshot) Set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the value stored under key.
func (s Snapshot) Get(key string) (any, bool) {
	value, ok := s.values[key]
	return value, ok
}

// Keys returns the field names in document order.
func (s Snapshot) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of fields.
func (s Snapshot) Len() int { return len(s.keys) }

// Map returns a shallow copy of the fields as a plain map.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.keys))
	for _, key := range s.keys {
		out[key] = s.values[key]
	}
	return out
}

// Error returns the upstream fault reported by the device's plugin, if any.
func (s Snapshot) Error() (string, bool) {
	value, ok := s.values["error"]
	if !ok || value == nil {
		return "", false
	}
	if text, isString := value.(string); isString {
		return text, text != ""
	}
	if flag, isBool := value.(bool); isBool {
		return "plugin reported an error", flag
	}
	return fmt.Sprint(value), true
}

// MarshalJSON writes the fields in document order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		encodedValue, err := json.Marshal(s.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("snapshot: expected JSON object")
	}
	decoded, err := decodeObject(decoder)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// decodeObject reads object members after the opening brace.
func decodeObject(decoder *json.Decoder) (Snapshot, error) {
	snapshot := Snapshot{values: make(map[string]any)}
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return snapshot, err
		}
		key, ok := tok.(string)
		if !ok {
			return snapshot, fmt.Errorf("snapshot: unexpected key token %v", tok)
		}
		value, err := decodeValue(decoder)
		if err != nil {
			return snapshot, err
		}
		snapshot.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

func decodeValue(decoder *json.Decoder) (any, error) {
	tok, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		return decodeObject(decoder)
	case '[':
		items := make([]any, 0)
		for decoder.More() {
			item, err := decodeValue(decoder)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := decoder.Token(); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("snapshot: unexpected delimiter %v", delim)
	}
}
