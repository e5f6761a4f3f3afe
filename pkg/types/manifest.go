// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import "fmt"

// ManifestType is the kind of package an extension manifest declares. The
// integer values are stable; the legacy allowed-types policy refers to them
// directly.
type ManifestType int

const (
	ManifestTypeUnknown ManifestType = iota
	ManifestTypeExtension
	ManifestTypeTheme
	ManifestTypeUserScript
	ManifestTypeHostedApp
	ManifestTypeLegacyPackagedApp
	ManifestTypePlatformApp
	ManifestTypeSharedModule
	ManifestTypeLoginScreenExtension
	ManifestTypeChromeOSSystemExtension

	// NumLoadTypes bounds the integer range accepted by the allowed-types policy.
	NumLoadTypes
)

var manifestTypeNames = map[string]ManifestType{
	"extension":                 ManifestTypeExtension,
	"theme":                     ManifestTypeTheme,
	"user_script":               ManifestTypeUserScript,
	"hosted_app":                ManifestTypeHostedApp,
	"legacy_packaged_app":       ManifestTypeLegacyPackagedApp,
	"platform_app":              ManifestTypePlatformApp,
	"login_screen_extension":    ManifestTypeLoginScreenExtension,
	"chromeos_system_extension": ManifestTypeChromeOSSystemExtension,
}

// ParseManifestType maps an allowed-types policy name to its type.
// Unrecognized names yield ManifestTypeUnknown.
func ParseManifestType(name string) ManifestType {
	return manifestTypeNames[name]
}

// String returns the policy name of t.
func (t ManifestType) String() string {
	switch t {
	case ManifestTypeSharedModule:
		return "shared_module"
	case ManifestTypeUnknown:
		return "unknown"
	}
	for name, mt := range manifestTypeNames {
		if mt == t {
			return name
		}
	}
	return fmt.Sprintf("manifest_type(%d)", int(t))
}
