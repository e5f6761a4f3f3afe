// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "errors"

// Sentinel errors shared by every backend. Check them with errors.Is.
var (
	// ErrNotFound indicates the requested report does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a report with the same ID was already stored.
	ErrConflict = errors.New("conflict")

	// ErrClosed indicates the store was used after Close.
	ErrClosed = errors.New("store closed")
)
