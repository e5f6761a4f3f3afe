// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package prefs

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// DefaultWatchDebounce coalesces bursts of writes (editors often write,
// truncate and rename in quick succession).
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch calls onChange after any of paths is written, created or renamed.
// The parent directories are watched so atomic replace-by-rename is seen.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, onChange func(), paths ...string) error {
	return WatchDebounced(ctx, DefaultWatchDebounce, onChange, paths...)
}

// WatchDebounced is Watch with an explicit debounce interval. A non-positive
// interval uses DefaultWatchDebounce.
func WatchDebounced(ctx context.Context, debounce time.Duration, onChange func(), paths ...string) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodePrefsWatchFailure, "creating file watcher")
	}
	defer watcher.Close() //nolint:errcheck

	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return sigilerr.Wrap(err, sigilerr.CodePrefsWatchFailure, "resolving watched path",
				sigilerr.Field("path", p))
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return sigilerr.Wrap(err, sigilerr.CodePrefsWatchFailure, "watching directory",
				sigilerr.Field("path", dir))
		}
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("preference watcher error", "error", err)
		}
	}
}
