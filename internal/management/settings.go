// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	"log/slog"
	"net/url"

	"github.com/sigil-dev/extpolicy/internal/prefs"
	"github.com/sigil-dev/extpolicy/internal/urlpattern"
	"github.com/sigil-dev/extpolicy/pkg/types"
)

// WebstoreUpdateURL is the update URL of the extension web store.
const WebstoreUpdateURL = "https://clients2.google.com/service/update2/crx"

// MaxPolicyHosts caps each policy host list.
const MaxPolicyHosts = 100

// ExtensionSettings field names.
const (
	fieldInstallationMode         = "installation_mode"
	fieldUpdateURL                = "update_url"
	fieldOverrideUpdateURL        = "override_update_url"
	fieldBlockedPermissions       = "blocked_permissions"
	fieldAllowedPermissions       = "allowed_permissions"
	fieldPolicyBlockedHosts       = "policy_blocked_hosts"
	fieldPolicyAllowedHosts       = "policy_allowed_hosts"
	fieldRuntimeBlockedHosts      = "runtime_blocked_hosts"
	fieldRuntimeAllowedHosts      = "runtime_allowed_hosts"
	fieldMinimumVersionRequired   = "minimum_version_required"
	fieldBlockedInstallMessage    = "blocked_install_message"
	fieldToolbarPin               = "toolbar_pin"
	fieldFileURLNavigationAllowed = "file_url_navigation_allowed"
	fieldInstallSources           = "install_sources"
	fieldAllowedTypes             = "allowed_types"
)

// Scope is the kind of dictionary entry being parsed. Some fields are only
// honored in the individual scope.
type Scope int

const (
	ScopeIndividual Scope = iota
	ScopeUpdateURL
	ScopeDefault
)

func (s Scope) String() string {
	switch s {
	case ScopeIndividual:
		return "individual"
	case ScopeUpdateURL:
		return "update_url"
	default:
		return "default"
	}
}

// IndividualSettings is the policy for one extension ID, one update URL, or
// the defaults.
type IndividualSettings struct {
	InstallationMode types.InstallationMode
	UpdateURL        string

	// OverrideUpdateURL is set when policy replaces the extension's own
	// update URL with UpdateURL.
	OverrideUpdateURL bool

	BlockedPermissions PermissionSet
	PolicyBlockedHosts *urlpattern.Set
	PolicyAllowedHosts *urlpattern.Set

	// MinimumVersionRequired is nil when no minimum is set.
	MinimumVersionRequired *Version

	BlockedInstallMessage    string
	ToolbarPin               types.ToolbarPin
	FileURLNavigationAllowed bool
}

// NewIndividualSettings returns settings that allow installation and block
// nothing.
func NewIndividualSettings() *IndividualSettings {
	s := &IndividualSettings{}
	s.Reset()
	return s
}

// DeriveFrom seeds new settings from def. The installation mode, update URL,
// blocked permissions and policy host sets are copied; the remaining fields
// start at their zero values. No reference to def is kept.
func DeriveFrom(def *IndividualSettings) *IndividualSettings {
	s := NewIndividualSettings()
	if def == nil {
		return s
	}
	s.InstallationMode = def.InstallationMode
	s.UpdateURL = def.UpdateURL
	s.BlockedPermissions = def.BlockedPermissions.Clone()
	s.PolicyBlockedHosts = def.PolicyBlockedHosts.Clone()
	s.PolicyAllowedHosts = def.PolicyAllowedHosts.Clone()
	return s
}

// Reset restores the fresh-default state.
func (s *IndividualSettings) Reset() {
	*s = IndividualSettings{
		InstallationMode:   types.InstallationAllowed,
		BlockedPermissions: NewPermissionSet(),
		PolicyBlockedHosts: urlpattern.NewSet(),
		PolicyAllowedHosts: urlpattern.NewSet(),
		ToolbarPin:         types.ToolbarPinDefault,
	}
}

// Parse applies the fields present in dict. It returns false when the entry
// is malformed; s may then be partially updated and should be discarded.
func (s *IndividualSettings) Parse(dict *prefs.Dict, scope Scope) bool {
	return s.parse(dict, scope, slog.Default())
}

func (s *IndividualSettings) parse(dict *prefs.Dict, scope Scope, logger *slog.Logger) bool {
	if raw, ok := dict.Get(fieldInstallationMode).AsString(); ok {
		mode, err := types.ParseInstallationMode(raw)
		if err != nil {
			logger.Warn("invalid installation mode", "value", raw)
			return false
		}
		if mode == types.InstallationForced || mode == types.InstallationRecommended {
			if scope != ScopeIndividual {
				logger.Warn("installation mode only valid for individual extensions",
					"mode", mode, "scope", scope)
				return false
			}
			updateURL, ok := dict.Get(fieldUpdateURL).AsString()
			if !ok || !isValidURL(updateURL) {
				logger.Warn("invalid or missing update url for installation mode",
					"mode", mode, "update_url", updateURL)
				return false
			}
			s.UpdateURL = updateURL
		}
		s.InstallationMode = mode
	}

	if scope == ScopeIndividual {
		// Only forced and recommended extensions carry a policy update URL.
		if override, ok := dict.Get(fieldOverrideUpdateURL).AsBool(); ok {
			installing := s.InstallationMode == types.InstallationForced ||
				s.InstallationMode == types.InstallationRecommended
			s.OverrideUpdateURL = override && installing && s.UpdateURL != WebstoreUpdateURL
		}
	}

	if !s.parseHosts(dict, logger, &s.PolicyBlockedHosts, fieldPolicyBlockedHosts, fieldRuntimeBlockedHosts) {
		return false
	}
	if !s.parseHosts(dict, logger, &s.PolicyAllowedHosts, fieldPolicyAllowedHosts, fieldRuntimeAllowedHosts) {
		return false
	}

	blocked := parsePermissions(dict, fieldBlockedPermissions, logger)
	allowed := parsePermissions(dict, fieldAllowedPermissions, logger)
	s.BlockedPermissions = blocked.Difference(allowed)

	if scope == ScopeIndividual {
		if raw, ok := dict.Get(fieldMinimumVersionRequired).AsString(); ok {
			v, err := ParseVersion(raw)
			if err != nil {
				logger.Warn("invalid minimum version required", "value", raw)
			} else {
				s.MinimumVersionRequired = &v
			}
		}
	}

	if msg, ok := dict.Get(fieldBlockedInstallMessage).AsString(); ok {
		s.BlockedInstallMessage = msg
	}

	if scope == ScopeIndividual {
		if raw, ok := dict.Get(fieldToolbarPin).AsString(); ok {
			pin, ok := types.ParseToolbarPin(raw)
			if !ok {
				logger.Warn("invalid toolbar pin", "value", raw)
			} else {
				s.ToolbarPin = pin
			}
		}
		if allowed, ok := dict.Get(fieldFileURLNavigationAllowed).AsBool(); ok {
			s.FileURLNavigationAllowed = allowed
		}
	}

	return true
}

// parseHosts replaces *dst when one of keys holds a list. The first key
// present wins.
func (s *IndividualSettings) parseHosts(dict *prefs.Dict, logger *slog.Logger, dst **urlpattern.Set, keys ...string) bool {
	var list []*prefs.Value
	var key string
	for _, k := range keys {
		if l, ok := dict.Get(k).AsList(); ok {
			list, key = l, k
			break
		}
	}
	if key == "" {
		return true
	}

	if len(list) > MaxPolicyHosts {
		logger.Warn("too many policy hosts, extra entries ignored",
			"field", key, "count", len(list), "max", MaxPolicyHosts)
		list = list[:MaxPolicyHosts]
	}

	set := urlpattern.NewSet()
	for _, item := range list {
		raw, ok := item.AsString()
		if !ok {
			logger.Warn("policy host entry is not a string", "field", key)
			return false
		}
		if raw != urlpattern.AllURLs {
			raw += "/*"
		}
		p, err := urlpattern.Parse(urlpattern.SchemesForExtensions, raw)
		if err != nil {
			logger.Warn("invalid policy host pattern", "field", key, "pattern", raw,
				"result", urlpattern.ResultOf(err))
			return false
		}
		set.Add(p)
	}
	*dst = set
	return true
}

func parsePermissions(dict *prefs.Dict, key string, logger *slog.Logger) PermissionSet {
	list, ok := dict.Get(key).AsList()
	if !ok {
		return NewPermissionSet()
	}
	ids := make([]PermissionID, 0, len(list))
	for _, item := range list {
		name, ok := item.AsString()
		if !ok {
			logger.Warn("malformed permission list", "field", key)
			return NewPermissionSet()
		}
		id, known := LookupPermission(name)
		if !known {
			logger.Debug("unknown permission ignored", "field", key, "permission", name)
			continue
		}
		ids = append(ids, id)
	}
	return NewPermissionSet(ids...)
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

// ManifestV2Setting controls whether manifest version 2 extensions load.
type ManifestV2Setting int

const (
	ManifestV2Default ManifestV2Setting = iota
	ManifestV2Disabled
	ManifestV2Enabled
	ManifestV2EnabledForForceInstalled
)

func (m ManifestV2Setting) String() string {
	switch m {
	case ManifestV2Disabled:
		return "disabled"
	case ManifestV2Enabled:
		return "enabled"
	case ManifestV2EnabledForForceInstalled:
		return "enabled_for_force_installed"
	default:
		return "default"
	}
}

// UnpublishedAvailability controls extensions taken down from the web store.
type UnpublishedAvailability int

const (
	AllowUnpublished UnpublishedAvailability = iota
	DisableUnpublished
)

func (u UnpublishedAvailability) String() string {
	if u == DisableUnpublished {
		return "disable_unpublished"
	}
	return "allow_unpublished"
}

// GlobalSettings are the restrictions that apply to every extension.
type GlobalSettings struct {
	// InstallSources is nil when off-store installs are not configured.
	InstallSources *urlpattern.Set

	AllowedTypes    []types.ManifestType
	HasAllowedTypes bool

	ManifestV2              ManifestV2Setting
	UnpublishedAvailability UnpublishedAvailability
}

func (g *GlobalSettings) HasRestrictedInstallSources() bool {
	return g.InstallSources != nil
}
