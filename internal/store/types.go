// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "time"

// ReportKind distinguishes the tracker callbacks a report came from.
type ReportKind string

const (
	ReportKindFailure       ReportKind = "failure"
	ReportKindStage         ReportKind = "installation_stage"
	ReportKindCreationStage ReportKind = "creation_stage"
)

// Report is one tracker event for an extension.
type Report struct {
	ID          string
	Timestamp   time.Time
	Kind        ReportKind
	ExtensionID string
	// Value holds the failure reason or stage name.
	Value   string
	Details map[string]any
}

// ReportFilter specifies criteria for querying reports. Zero fields match
// everything.
type ReportFilter struct {
	ExtensionID string
	Kind        ReportKind
	Value       string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// DefaultQueryLimit caps Query results when the filter sets no limit.
const DefaultQueryLimit = 1000

func (f ReportFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

// Matches reports whether r satisfies every set field of f. Limit and
// Offset are not considered.
func (f ReportFilter) Matches(r *Report) bool {
	if f.ExtensionID != "" && r.ExtensionID != f.ExtensionID {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Value != "" && r.Value != f.Value {
		return false
	}
	if !f.From.IsZero() && r.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.Timestamp.Before(f.To) {
		return false
	}
	return true
}
