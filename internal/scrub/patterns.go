package scrub

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrProtectedPattern is returned when an extra pattern would redact a key
// the pipeline depends on.
var ErrProtectedPattern = errors.New("pattern is protected and cannot be scrubbed")

// DefaultSensitivePatterns are matched case-insensitively against attribute keys.
var DefaultSensitivePatterns = []string{
	`password`,
	`passwd`,
	`secret`,
	`api[._-]?key`,
	`apikey`,
	`auth[._-]?token`,
	`access[._-]?token`,
	`private[._-]?key`,
	`encryption[._-]?key`,
	`bearer`,
	`credential`,
	`user[._-]?name`,
	`first[._-]?name`,
	`last[._-]?name`,
	`email`,
	`email[._-]?address`,
	`phone[._-]?number`,
	`ip[._-]?address`,
}

// ProtectedPatterns guard the span's own attribute container and the
// reserved namespace.
var ProtectedPatterns = []string{
	`\battributes\b`,
	`tapwire`,
}

// PatternSet is an ordered set of regular expression sources. Insertion
// order is preserved and duplicates are ignored.
type PatternSet struct {
	order []string
	index map[string]struct{}
}

// NewPatternSet builds a set from patterns in order.
func NewPatternSet(patterns ...string) *PatternSet {
	ps := &PatternSet{index: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		ps.Add(p)
	}
	return ps
}

// Add appends p if it is not already present. It reports whether p was added.
func (ps *PatternSet) Add(p string) bool {
	if _, ok := ps.index[p]; ok {
		return false
	}
	ps.index[p] = struct{}{}
	ps.order = append(ps.order, p)
	return true
}

// Contains reports whether p is in the set.
func (ps *PatternSet) Contains(p string) bool {
	_, ok := ps.index[p]
	return ok
}

// Len returns the number of patterns.
func (ps *PatternSet) Len() int { return len(ps.order) }

// Patterns returns a copy of the patterns in insertion order.
func (ps *PatternSet) Patterns() []string {
	return append([]string(nil), ps.order...)
}

// Compile joins every pattern into one case-insensitive alternation with
// one named group per pattern, in order. Groups inside a pattern do not
// shift the names; see GroupName.
func (ps *PatternSet) Compile() (*regexp.Regexp, error) {
	if len(ps.order) == 0 {
		return nil, nil
	}
	groups := make([]string, len(ps.order))
	for i, p := range ps.order {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		groups[i] = "(?P<" + GroupName(i) + ">" + p + ")"
	}
	return regexp.Compile("(?i)" + strings.Join(groups, "|"))
}

// GroupName names the group Compile wraps around the i-th pattern.
func GroupName(i int) string {
	return "tapwire_p" + strconv.Itoa(i)
}

// sensitiveSet builds the sensitive set from the defaults plus extra,
// rejecting any extra pattern that itself matches the protected set.
func sensitiveSet(base []string, extra []string) (*PatternSet, error) {
	protected, err := NewPatternSet(ProtectedPatterns...).Compile()
	if err != nil {
		return nil, err
	}

	set := NewPatternSet(base...)
	for _, p := range extra {
		if protected.MatchString(p) {
			return nil, fmt.Errorf("%w: %q", ErrProtectedPattern, p)
		}
		set.Add(p)
	}
	return set, nil
}
