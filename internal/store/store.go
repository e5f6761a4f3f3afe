// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// ReportStore keeps the install-stage and failure reports emitted while
// resolving extension policy.
type ReportStore interface {
	Append(ctx context.Context, report *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	Query(ctx context.Context, filter ReportFilter) ([]*Report, error)
	Count(ctx context.Context, filter ReportFilter) (int64, error)
	Close() error
}
