// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnWritablePermissions logs a warning when a policy or config file is
// writable by its group or by other users. Managed policy that any local
// user can edit is not managed. This is best-effort and never fails startup.
func WarnWritablePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupWrite fs.FileMode = 0o020
	const otherWrite fs.FileMode = 0o002

	if perm&(groupWrite|otherWrite) != 0 {
		slog.Warn(
			"policy file is writable by other users",
			"path", path,
			"mode", mode,
			"recommended", "0644",
		)
	}
}
