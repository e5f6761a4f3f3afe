// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// Valid reports whether k is a known report kind.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportKindFailure, ReportKindStage, ReportKindCreationStage:
		return true
	default:
		return false
	}
}

// Validate checks that the Report has all required fields set correctly.
func (r Report) Validate() error {
	if r.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreReportAppendInvalid, "report: ID is required")
	}
	if r.ExtensionID == "" {
		return sigilerr.New(sigilerr.CodeStoreReportAppendInvalid, "report: ExtensionID is required",
			sigilerr.Field("report_id", r.ID))
	}
	if !r.Kind.Valid() {
		return sigilerr.Errorf(sigilerr.CodeStoreReportAppendInvalid, "report: invalid kind %q", r.Kind)
	}
	if r.Value == "" {
		return sigilerr.New(sigilerr.CodeStoreReportAppendInvalid, "report: Value is required",
			sigilerr.Field("report_id", r.ID))
	}
	if r.Timestamp.IsZero() {
		return sigilerr.New(sigilerr.CodeStoreReportAppendInvalid, "report: Timestamp is required",
			sigilerr.Field("report_id", r.ID))
	}
	return nil
}

// Validate checks the filter for values no backend can serve.
func (f ReportFilter) Validate() error {
	if f.Kind != "" && !f.Kind.Valid() {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "report filter: invalid kind %q", f.Kind)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "report filter: limit and offset must not be negative")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "report filter: To is before From")
	}
	return nil
}
