// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package urlpattern

import (
	"net/url"
	"slices"
)

// Set is an ordered, de-duplicated collection of patterns. The zero value is
// an empty set ready for use. Sets are not safe for concurrent mutation.
type Set struct {
	patterns []*Pattern
}

// NewSet returns a set holding patterns.
func NewSet(patterns ...*Pattern) *Set {
	s := &Set{}
	for _, p := range patterns {
		s.Add(p)
	}
	return s
}

// Add inserts p unless an equal pattern is already present. It reports
// whether the set changed.
func (s *Set) Add(p *Pattern) bool {
	if p == nil {
		return false
	}
	key := p.String()
	for _, existing := range s.patterns {
		if existing.String() == key {
			return false
		}
	}
	s.patterns = append(s.patterns, p)
	return true
}

func (s *Set) Clear() { s.patterns = nil }

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

func (s *Set) IsEmpty() bool { return s.Len() == 0 }

// Patterns returns the patterns in insertion order.
func (s *Set) Patterns() []*Pattern {
	if s == nil {
		return nil
	}
	return slices.Clone(s.patterns)
}

// Strings returns the canonical text of every pattern in insertion order.
func (s *Set) Strings() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.String())
	}
	return out
}

// MatchesURL reports whether any pattern matches u.
func (s *Set) MatchesURL(u *url.URL) bool {
	if s == nil {
		return false
	}
	for _, p := range s.patterns {
		if p.MatchesURL(u) {
			return true
		}
	}
	return false
}

// MatchesString parses raw and reports whether any pattern matches it.
func (s *Set) MatchesString(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return s.MatchesURL(u)
}

// Clone returns an independent copy. Patterns are immutable and shared.
func (s *Set) Clone() *Set {
	if s == nil {
		return &Set{}
	}
	return &Set{patterns: slices.Clone(s.patterns)}
}

// Equal reports whether both sets hold the same patterns regardless of order.
func (s *Set) Equal(other *Set) bool {
	a, b := s.Strings(), other.Strings()
	if len(a) != len(b) {
		return false
	}
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
