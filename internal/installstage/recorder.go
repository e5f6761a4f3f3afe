// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package installstage persists the failures and install stages reported by
// the settings resolver.
package installstage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sigil-dev/extpolicy/internal/management"
	"github.com/sigil-dev/extpolicy/internal/store"
)

// FailureEscalationThreshold is the number of consecutive append failures
// after which they are logged at Error instead of Warn.
const FailureEscalationThreshold = 3

// DefaultAppendTimeout bounds a single report append.
const DefaultAppendTimeout = 2 * time.Second

var _ management.Tracker = (*Recorder)(nil)

// Recorder is a management.Tracker that appends every report to a store.
// Appends are best-effort: failures are logged and never reach the
// resolver.
type Recorder struct {
	store   store.ReportStore
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	consecutiveFailures atomic.Int64
	recorded            atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout overrides DefaultAppendTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock sets the timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func New(rs store.ReportStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:   rs,
		logger:  slog.Default(),
		timeout: DefaultAppendTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) ReportFailure(id string, reason management.FailureReason) {
	r.record(store.ReportKindFailure, id, string(reason))
}

func (r *Recorder) ReportInstallationStage(id string, stage management.Stage) {
	r.record(store.ReportKindStage, id, string(stage))
}

func (r *Recorder) ReportInstallCreationStage(id string, stage management.CreationStage) {
	r.record(store.ReportKindCreationStage, id, string(stage))
}

// Recorded returns the number of reports appended successfully.
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

func (r *Recorder) record(kind store.ReportKind, id, value string) {
	// Tracker callbacks carry no context; each append gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	report := &store.Report{
		ID:          uuid.New().String(),
		Timestamp:   r.now().UTC(),
		Kind:        kind,
		ExtensionID: id,
		Value:       value,
	}
	if err := r.store.Append(ctx, report); err != nil {
		consecutive := r.consecutiveFailures.Add(1)
		level := slog.LevelWarn
		if consecutive >= FailureEscalationThreshold {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "recording install stage report failed",
			"extension_id", id,
			"kind", kind,
			"value", value,
			"error", err,
			"consecutive_failures", consecutive,
		)
		return
	}
	r.consecutiveFailures.Store(0)
	r.recorded.Add(1)
}

// Tee fans tracker callbacks out to every non-nil tracker, in order.
func Tee(trackers ...management.Tracker) management.Tracker {
	var live tee
	for _, t := range trackers {
		if t != nil {
			live = append(live, t)
		}
	}
	return live
}

type tee []management.Tracker

func (t tee) ReportFailure(id string, reason management.FailureReason) {
	for _, tr := range t {
		tr.ReportFailure(id, reason)
	}
}

func (t tee) ReportInstallationStage(id string, stage management.Stage) {
	for _, tr := range t {
		tr.ReportInstallationStage(id, stage)
	}
}

func (t tee) ReportInstallCreationStage(id string, stage management.CreationStage) {
	for _, tr := range t {
		tr.ReportInstallCreationStage(id, stage)
	}
}

// LogTracker logs every report at debug level, failures at warn.
type LogTracker struct {
	Logger *slog.Logger
}

func (l LogTracker) log() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LogTracker) ReportFailure(id string, reason management.FailureReason) {
	l.log().Warn("extension policy entry not honored", "extension_id", id, "reason", reason)
}

func (l LogTracker) ReportInstallationStage(id string, stage management.Stage) {
	l.log().Debug("extension installation stage", "extension_id", id, "stage", stage)
}

func (l LogTracker) ReportInstallCreationStage(id string, stage management.CreationStage) {
	l.log().Debug("extension install creation stage", "extension_id", id, "stage", stage)
}
