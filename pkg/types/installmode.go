// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// InstallationMode is the resolved decision for whether and how an extension
// may be installed. Names match the ExtensionSettings policy values.
type InstallationMode string

const (
	InstallationAllowed     InstallationMode = "allowed"
	InstallationBlocked     InstallationMode = "blocked"
	InstallationForced      InstallationMode = "force_installed"
	InstallationRecommended InstallationMode = "normal_installed"
	InstallationRemoved     InstallationMode = "removed"
)

// Valid reports whether m is a recognized installation mode.
func (m InstallationMode) Valid() bool {
	switch m {
	case InstallationAllowed, InstallationBlocked, InstallationForced,
		InstallationRecommended, InstallationRemoved:
		return true
	default:
		return false
	}
}

// ParseInstallationMode parses a policy value. Matching is exact; the policy
// schema does not accept other spellings.
func ParseInstallationMode(s string) (InstallationMode, error) {
	m := InstallationMode(s)
	if !m.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"invalid installation mode: %q", s)
	}
	return m, nil
}

// ToolbarPin controls whether an extension's action is pinned.
type ToolbarPin string

const (
	ToolbarPinDefault     ToolbarPin = "default_unpinned"
	ToolbarPinForcePinned ToolbarPin = "force_pinned"
)

// ParseToolbarPin accepts "force_pinned", "default_unpinned" and the short
// form "default".
func ParseToolbarPin(s string) (ToolbarPin, bool) {
	switch s {
	case string(ToolbarPinForcePinned):
		return ToolbarPinForcePinned, true
	case string(ToolbarPinDefault), "default":
		return ToolbarPinDefault, true
	default:
		return "", false
	}
}
