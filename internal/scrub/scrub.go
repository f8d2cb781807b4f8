// Package scrub redacts attribute values whose key looks sensitive. Keys are
// matched, never values, so redaction preserves the document shape.
package scrub

import (
	"fmt"
	"regexp"

	"github.com/ppiankov/tapwire/internal/model"
)

// Scrubber redacts sensitive values from an attribute map.
type Scrubber interface {
	Scrub(attrs model.Attributes) model.Attributes
}

// Default redacts values under keys matching its sensitive pattern set.
// It holds no per-call state and is safe for concurrent use.
type Default struct {
	patterns *PatternSet
	re       *regexp.Regexp
	groups   []int // submatch index of each pattern's group
}

// New builds a Default scrubber from the built-in patterns plus extra.
// An extra pattern that matches the protected set is rejected immediately.
func New(extra ...string) (*Default, error) {
	return NewWithBase(DefaultSensitivePatterns, extra...)
}

// NewWithBase is New with a caller-supplied base pattern list.
func NewWithBase(base []string, extra ...string) (*Default, error) {
	set, err := sensitiveSet(base, extra)
	if err != nil {
		return nil, err
	}
	re, err := set.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile scrub patterns: %w", err)
	}
	d := &Default{patterns: set, re: re}
	if re != nil {
		d.groups = make([]int, len(set.order))
		for i := range set.order {
			d.groups[i] = re.SubexpIndex(GroupName(i))
		}
	}
	return d, nil
}

// MustNew is New for package-level defaults; it panics on error.
func MustNew(extra ...string) *Default {
	d, err := New(extra...)
	if err != nil {
		panic(err)
	}
	return d
}

// Patterns returns the sensitive patterns in match order.
func (d *Default) Patterns() []string {
	return d.patterns.Patterns()
}

// Scrub returns a copy of attrs with sensitive values replaced by a marker.
func (d *Default) Scrub(attrs model.Attributes) model.Attributes {
	if attrs == nil {
		return nil
	}
	return model.Attributes(d.scrubMap(attrs))
}

func (d *Default) scrubMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if p, ok := d.match(k); ok {
			out[k] = Marker(p)
			continue
		}
		out[k] = d.scrubValue(v)
	}
	return out
}

func (d *Default) scrubValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return d.scrubMap(t)
	case model.Attributes:
		return model.Attributes(d.scrubMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			switch m := e.(type) {
			case map[string]any:
				out[i] = d.scrubMap(m)
			case model.Attributes:
				out[i] = model.Attributes(d.scrubMap(m))
			default:
				out[i] = e
			}
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = d.scrubMap(m)
		}
		return out
	default:
		return v
	}
}

// match returns the first pattern matching key.
func (d *Default) match(key string) (string, bool) {
	if d.re == nil {
		return "", false
	}
	loc := d.re.FindStringSubmatchIndex(key)
	if loc == nil {
		return "", false
	}
	for i, g := range d.groups {
		if g > 0 && loc[2*g] >= 0 {
			return d.patterns.order[i], true
		}
	}
	return "sensitive pattern", true
}

// Marker is the replacement value for a key matched by pattern.
func Marker(pattern string) string {
	return "[Scrubbed due to " + pattern + "]"
}

// NoOp passes attributes through unchanged.
type NoOp struct{}

// Scrub returns attrs as is.
func (NoOp) Scrub(attrs model.Attributes) model.Attributes { return attrs }
