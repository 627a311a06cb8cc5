// Package exportmap synthesizes the "exports" field of a package manifest
// from a classified build output tree.
package exportmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Value is either a plain file reference, an ordered set of conditions, or
// raw JSON carried over from an existing manifest.
type Value struct {
	Ref        string
	Conditions []Condition
	Raw        json.RawMessage
}

// Condition is one key of a structured value.
type Condition struct {
	Key   string
	Value Value
}

// Plain returns a file-reference value.
func Plain(ref string) Value {
	return Value{Ref: ref}
}

// Structured returns a value made of conditions.
func Structured(conds ...Condition) Value {
	return Value{Conditions: conds}
}

// IsStructured reports whether v has conditions.
func (v Value) IsStructured() bool {
	return v.Conditions != nil
}

// Lookup returns the value of a condition key.
func (v Value) Lookup(key string) (Value, bool) {
	for _, cond := range v.Conditions {
		if cond.Key == key {
			return cond.Value, true
		}
	}

	return Value{}, false
}

// Leaves returns every string referenced anywhere inside v.
func (v Value) Leaves() []string {
	switch {
	case v.Raw != nil:
		return rawLeaves(v.Raw)
	case v.IsStructured():
		var out []string
		for _, cond := range v.Conditions {
			out = append(out, cond.Value.Leaves()...)
		}

		return out
	default:
		return []string{v.Ref}
	}
}

func rawLeaves(raw json.RawMessage) []string {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}

	var out []string

	var walk func(any)

	walk = func(node any) {
		switch n := node.(type) {
		case string:
			out = append(out, n)
		case map[string]any:
			for _, child := range n {
				walk(child)
			}
		case []any:
			for _, child := range n {
				walk(child)
			}
		}
	}

	walk(decoded)

	return out
}

// MarshalJSON renders conditions in order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Raw != nil:
		return slices.Clone(v.Raw), nil
	case v.IsStructured():
		return marshalOrdered(len(v.Conditions), func(i int) (string, any) {
			return v.Conditions[i].Key, v.Conditions[i].Value
		})
	default:
		return json.Marshal(v.Ref)
	}
}

// Entry is one key of an export map.
type Entry struct {
	Key   string
	Value Value
}

// Map is an ordered export map.
type Map []Entry

// Keys returns the keys in order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}

	return keys
}

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}

	return Value{}, false
}

// MarshalJSON renders the map as an object with keys in order.
func (m Map) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(m), func(i int) (string, any) {
		return m[i].Key, m[i].Value
	})
}

func marshalOrdered(n int, at func(int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i := range n {
		key, value := at(i)

		if i > 0 {
			buf.WriteByte(',')
		}

		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", key, err)
		}

		valueJSON, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value of %q: %w", key, err)
		}

		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valueJSON)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
