package bench

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Results is an insertion-ordered string-keyed mapping of benchmark values.
// The zero value is ready to use.
type Results struct {
	keys   []string
	values map[string]any
}

// NewResults returns an empty Results.
func NewResults() *Results {
	return &Results{values: make(map[string]any)}
}

// Set stores v under key. An existing key keeps its position.
func (r *Results) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r *Results) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Float returns the value under key as float64 if it is numeric.
func (r *Results) Float(key string) (float64, bool) {
	switch x := r.values[key].(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Keys returns the keys in insertion order.
func (r *Results) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r *Results) Len() int { return len(r.keys) }

// Merge sets every entry of m, visiting keys in sorted order. Existing keys
// are overwritten in place.
func (r *Results) Merge(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Set(k, m[k])
	}
}

// MarshalJSON encodes the results as a JSON object in key order.
func (r *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
