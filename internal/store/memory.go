// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var _ ReportStore = (*MemoryReportStore)(nil)

// MemoryReportStore keeps reports in process memory, ordered by timestamp
// then insertion.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports []*Report
	byID    map[string]*Report
	closed  bool
}

func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{byID: make(map[string]*Report)}
}

func (m *MemoryReportStore) Append(_ context.Context, report *Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.byID[report.ID]; ok {
		return fmt.Errorf("report %s: %w", report.ID, ErrConflict)
	}

	c := cloneReport(report)
	i, _ := slices.BinarySearchFunc(m.reports, c, func(a, b *Report) int {
		if a.Timestamp.After(b.Timestamp) {
			return 1
		}
		// Equal timestamps sort after existing entries.
		return -1
	})
	m.reports = slices.Insert(m.reports, i, c)
	m.byID[c.ID] = c
	return nil
}

func (m *MemoryReportStore) Get(_ context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	r, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return cloneReport(r), nil
}

func (m *MemoryReportStore) Query(_ context.Context, filter ReportFilter) ([]*Report, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var out []*Report
	skipped := 0
	for _, r := range m.reports {
		if !filter.Matches(r) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, cloneReport(r))
		if len(out) == filter.limit() {
			break
		}
	}
	return out, nil
}

func (m *MemoryReportStore) Count(_ context.Context, filter ReportFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	var n int64
	for _, r := range m.reports {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryReportStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.reports = nil
	m.byID = nil
	return nil
}

func cloneReport(r *Report) *Report {
	c := *r
	c.Details = maps.Clone(r.Details)
	return &c
}
