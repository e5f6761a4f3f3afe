// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package csp

import "strings"

// SecureValuesFunc rewrites one directive, keeping only secure values. It
// returns the rewritten clause (terminated by ";") and appends a warning per
// dropped value when warn is true.
type SecureValuesFunc func(name string, values []string, warn bool) (string, []Warning)

// Enforcer rewrites the directives it cares about and synthesizes missing
// ones. An Enforcer holds no per-call state and may be shared.
type Enforcer struct {
	manifestKey  string
	showMissing  bool
	directives   [][]string
	secureValues SecureValuesFunc
	defaultValue func(names []string) string
}

// directiveStatus tracks one alias set during a single Enforce pass.
type directiveStatus struct {
	names []string
	seen  bool
}

func (s *directiveStatus) matches(name string) bool {
	for _, n := range s.names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Enforce rewrites directives and returns the joined policy and warnings.
func (e *Enforcer) Enforce(directives []Directive) (string, []Warning) {
	statuses := make([]*directiveStatus, 0, len(e.directives))
	for _, names := range e.directives {
		statuses = append(statuses, &directiveStatus{names: names})
	}
	defaultSrc := &directiveStatus{names: []string{DirectiveDefaultSrc}}

	var (
		parts           []string
		warnings        []Warning
		defaultWarnings []Warning
	)
	for _, d := range directives {
		handled := false
		for _, status := range statuses {
			if !status.matches(d.Name) {
				continue
			}
			clause, w := e.secureValues(d.Name, d.Values, !status.seen)
			parts = append(parts, clause)
			warnings = append(warnings, w...)
			status.seen = true
			handled = true
			break
		}
		if handled {
			continue
		}

		if defaultSrc.matches(d.Name) {
			clause, w := e.secureValues(d.Name, d.Values, !defaultSrc.seen)
			parts = append(parts, clause)
			defaultWarnings = append(defaultWarnings, w...)
			defaultSrc.seen = true
			continue
		}

		parts = append(parts, d.Text+";")
	}

	if defaultSrc.seen {
		// Unseen directives fall back to default-src, so its warnings apply.
		for _, status := range statuses {
			if !status.seen {
				warnings = append(warnings, defaultWarnings...)
				break
			}
		}
	} else {
		for _, status := range statuses {
			if status.seen {
				continue
			}
			parts = append(parts, e.defaultValue(status.names))
			if e.showMissing {
				warnings = append(warnings, missingDirectiveWarning(e.manifestKey, status.names[0]))
			}
		}
	}

	return strings.Join(parts, " "), warnings
}
