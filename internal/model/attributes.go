package model

import "strings"

// Attributes is the string-keyed structured data attached to a span.
// Values are scalars, map[string]any, []any, or []byte under the reserved
// binary keys.
type Attributes map[string]any

// String returns the value under key if it is a string.
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Bytes returns the raw buffer stored under key.
func (a Attributes) Bytes(key string) []byte {
	switch v := a[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// Truthy reports whether the value under key is set and not a zero value.
func (a Attributes) Truthy(key string) bool {
	switch v := a[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && !strings.EqualFold(v, "false")
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

// Merge copies every key of src into a, overwriting on collision.
func (a Attributes) Merge(src map[string]any) {
	for k, v := range src {
		a[k] = v
	}
}

// Clone returns a deep copy. Nested maps, lists and byte buffers are copied
// so the result shares no mutable state with a.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Attributes(t).Clone())
	case Attributes:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
