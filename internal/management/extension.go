// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	"net/url"
	"strings"

	"github.com/sigil-dev/extpolicy/pkg/types"
)

// Extension describes an installed or candidate extension. Only the fields
// the resolver consults are modeled.
type Extension struct {
	ID              string
	Version         Version
	ManifestVersion int
	Type            types.ManifestType

	// UpdateURL is the update_url declared in the manifest, if any.
	UpdateURL string
}

// ViolationType classifies why the web store took an extension down.
type ViolationType string

const (
	ViolationNone        ViolationType = "none"
	ViolationMalware     ViolationType = "malware"
	ViolationPolicy      ViolationType = "policy"
	ViolationMinorPolicy ViolationType = "minor_policy"
	ViolationUnknown     ViolationType = "unknown"
)

// WebstoreStatus is the web store's view of one extension.
type WebstoreStatus struct {
	Present   bool
	Live      bool
	Violation ViolationType
}

// WebstoreInfo looks up web store publication state. Lookups must not block.
type WebstoreInfo interface {
	Status(ext Extension) (WebstoreStatus, bool)
}

// IsWebstoreUpdateURL reports whether raw points at the web store update
// endpoint. Query parameters are ignored.
func IsWebstoreUpdateURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	store, _ := url.Parse(WebstoreUpdateURL)
	return strings.EqualFold(u.Scheme, store.Scheme) &&
		strings.EqualFold(u.Host, store.Host) &&
		u.Path == store.Path
}
