// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package config

import "log/slog"

// WarnWritablePermissions is a no-op on Windows, which uses ACLs rather than
// Unix mode bits.
func WarnWritablePermissions(path string) {
	if path != "" {
		slog.Debug("policy permission check not implemented on Windows", "path", path)
	}
}
