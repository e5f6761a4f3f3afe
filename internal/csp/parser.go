// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package csp parses, sanitizes and validates extension Content Security
// Policies. All functions are pure and safe for concurrent use.
package csp

import "strings"

// Directive is one "name value value..." clause of a policy.
type Directive struct {
	// Name is the lowercased directive name.
	Name string
	// Values are the source tokens in their original case.
	Values []string
	// Text is the trimmed clause without its terminating ";".
	Text string
}

// Parse splits policy into directives. Empty clauses are dropped; duplicate
// names are kept in order.
func Parse(policy string) []Directive {
	var out []Directive
	for _, segment := range strings.Split(policy, ";") {
		segment = strings.TrimFunc(segment, isASCIISpace)
		if segment == "" {
			continue
		}
		tokens := strings.FieldsFunc(segment, isASCIISpace)
		out = append(out, Directive{
			Name:   strings.ToLower(tokens[0]),
			Values: tokens[1:],
			Text:   segment,
		})
	}
	return out
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// First returns the first directive named name.
func First(directives []Directive, name string) (Directive, bool) {
	for _, d := range directives {
		if d.Name == name {
			return d, true
		}
	}
	return Directive{}, false
}
