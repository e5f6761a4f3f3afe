// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import (
	"sync"
	"time"
)

// Metrics exposes the load state of the policy source for monitoring and
// operator visibility. All fields are point-in-time snapshots safe to
// serialize to JSON.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Available     bool       `json:"available"`
}

// Tracker records policy load outcomes. The source is available until a
// load fails and becomes available again on the next success; the settings
// from the last good load keep being served in between.
type Tracker struct {
	mu           sync.RWMutex
	healthy      bool
	succeededAt  time.Time
	failedAt     time.Time
	lastErr      string
	failureCount int64
	nowFunc      func() time.Time // for testing
}

// NewTracker creates a Tracker that starts healthy.
func NewTracker() *Tracker {
	return &Tracker{healthy: true, nowFunc: time.Now}
}

func (t *Tracker) IsHealthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthy
}

// RecordSuccess marks the source as healthy.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	t.healthy = true
	t.succeededAt = t.nowFunc()
	t.mu.Unlock()
}

// RecordFailure marks the source as unhealthy and increments the cumulative
// failure count.
func (t *Tracker) RecordFailure(err error) {
	t.mu.Lock()
	t.healthy = false
	t.failedAt = t.nowFunc()
	t.failureCount++
	if err != nil {
		t.lastErr = err.Error()
	}
	t.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

// Snapshot returns the current state. The returned struct holds no
// references to tracker state.
func (t *Tracker) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := Metrics{
		FailureCount: t.failureCount,
		Available:    t.healthy,
	}
	if !t.succeededAt.IsZero() {
		s := t.succeededAt
		m.LastSuccessAt = &s
	}
	if t.failureCount > 0 {
		f := t.failedAt
		m.LastFailureAt = &f
		m.LastError = t.lastErr
	}
	return m
}
