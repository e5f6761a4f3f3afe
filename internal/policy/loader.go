// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package policy keeps a preference document in sync with the policy files
// on disk and tells listeners when it changes.
package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sigil-dev/extpolicy/internal/prefs"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/sigil-dev/extpolicy/pkg/health"
)

// Loader owns the live preference document. A failed reload keeps the
// previous contents.
type Loader struct {
	files  []string
	doc    *prefs.Document
	health *health.Tracker
	logger *slog.Logger

	mu        sync.Mutex
	listeners []func()
}

// Option configures a Loader.
type Option func(*Loader)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithHealthTracker records reload outcomes on t instead of a private
// tracker.
func WithHealthTracker(t *health.Tracker) Option {
	return func(l *Loader) {
		if t != nil {
			l.health = t
		}
	}
}

// NewLoader creates a Loader over files. Call Reload to read them.
func NewLoader(files []string, opts ...Option) *Loader {
	l := &Loader{
		files:  append([]string(nil), files...),
		doc:    prefs.NewDocument(),
		health: health.NewTracker(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Document returns the live document. Its contents are swapped in place on
// every successful reload, so it can be handed to a resolver once.
func (l *Loader) Document() *prefs.Document { return l.doc }

// Files returns the policy files in merge order.
func (l *Loader) Files() []string { return append([]string(nil), l.files...) }

// OnReload registers fn to run after every successful reload.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Reload reads and merges every policy file. Reloads are serialized.
func (l *Loader) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := prefs.LoadFiles(l.files...)
	if err != nil {
		l.health.RecordFailure(err)
		l.logger.Warn("policy reload failed, keeping previous preferences",
			"files", l.files, "error", err)
		return sigilerr.With(err, sigilerr.Field("files", l.files))
	}

	l.doc.Replace(next)
	l.health.RecordSuccess()
	managed, user := next.Names()
	l.logger.Info("policy reloaded", "files", len(l.files), "managed", len(managed), "user", len(user))

	for _, fn := range l.listeners {
		fn()
	}
	return nil
}

// Health returns the reload state.
func (l *Loader) Health() health.Metrics { return l.health.Snapshot() }

// Watch reloads whenever a policy file changes until ctx is cancelled.
// Reload failures are logged and do not stop the watch.
func (l *Loader) Watch(ctx context.Context, debounce time.Duration) error {
	if len(l.files) == 0 {
		<-ctx.Done()
		return nil
	}
	return prefs.WatchDebounced(ctx, debounce, func() {
		_ = l.Reload()
	}, l.files...)
}
