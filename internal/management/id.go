// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import "strings"

// IDLength is the number of characters in an extension ID.
const IDLength = 32

// IsValidID reports whether id is 32 characters drawn from a-p. Uppercase
// input is accepted and compared case-insensitively.
func IsValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i] | 0x20
		if c < 'a' || c > 'p' {
			return false
		}
	}
	return true
}

// splitIDs splits a comma-separated dictionary key into trimmed, non-empty
// parts. Validation is left to the caller.
func splitIDs(key string) []string {
	var ids []string
	for _, part := range strings.Split(key, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
