// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	"strconv"
	"strings"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// Version is a dotted numeric version such as "1.2.0.15".
type Version struct {
	components []uint32
}

// ParseVersion parses one or more dot-separated non-negative integers.
// A leading zero is rejected in the first component only, so "01" is
// invalid while "1.01" parses as 1.1.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, sigilerr.New(sigilerr.CodeSettingsVersionInvalidFormat, "empty version")
	}
	parts := strings.Split(s, ".")
	components := make([]uint32, 0, len(parts))
	for i, part := range parts {
		if part == "" || (i == 0 && len(part) > 1 && part[0] == '0') || part[0] == '+' || part[0] == '-' {
			return Version{}, sigilerr.New(sigilerr.CodeSettingsVersionInvalidFormat,
				"invalid version component", sigilerr.Field("version", s))
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Version{}, sigilerr.Wrap(err, sigilerr.CodeSettingsVersionInvalidFormat,
				"invalid version component", sigilerr.Field("version", s))
		}
		components = append(components, uint32(n))
	}
	return Version{components: components}, nil
}

// MustParseVersion is ParseVersion that panics on error. Use in tests and
// for constants only.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsValid reports whether v was produced by a successful parse.
func (v Version) IsValid() bool { return len(v.components) > 0 }

// Compare returns -1, 0 or 1. Missing trailing components count as zero, so
// "1.1" equals "1.1.0".
func (v Version) Compare(other Version) int {
	n := max(len(v.components), len(other.components))
	for i := 0; i < n; i++ {
		a, b := componentAt(v.components, i), componentAt(other.components, i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func componentAt(c []uint32, i int) uint32 {
	if i < len(c) {
		return c[i]
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, len(v.components))
	for i, c := range v.components {
		parts[i] = strconv.FormatUint(uint64(c), 10)
	}
	return strings.Join(parts, ".")
}
