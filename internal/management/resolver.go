// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package management resolves enterprise extension policy into per-extension
// decisions: installation mode, blocked permissions, host restrictions,
// minimum versions and toolbar pinning.
//
// Policy comes from a prefs.Source. Refresh rebuilds all derived settings;
// queries then walk per-ID settings, per-update-URL settings and the
// defaults, in that order.
package management

import (
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sigil-dev/extpolicy/internal/prefs"
	"github.com/sigil-dev/extpolicy/internal/urlpattern"
	"github.com/sigil-dev/extpolicy/pkg/types"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithTracker sets the sink for soft failures and install stages.
func WithTracker(t Tracker) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracker = t
		}
	}
}

// WithLogger sets the logger used for parse warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDeferredLoading postpones parsing settings for extensions that are
// neither installed nor force-installed until they are first queried.
// installed is called once per refresh.
func WithDeferredLoading(installed func() []string) Option {
	return func(r *Resolver) {
		r.installed = installed
	}
}

// WithThemePolicy reports whether a managed theme is active. While it is,
// theme installs are not allowed.
func WithThemePolicy(usingPolicyTheme func() bool) Option {
	return func(r *Resolver) {
		r.usingPolicyTheme = usingPolicyTheme
	}
}

// WithWebstoreInfo enables the unpublished-availability policy.
func WithWebstoreInfo(info WebstoreInfo) Option {
	return func(r *Resolver) {
		r.webstore = info
	}
}

// WithMetrics records refresh and failure metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithManifestV3Only disables manifest version 2 unless policy enables it.
func WithManifestV3Only(enabled bool) Option {
	return func(r *Resolver) {
		r.manifestV3Only = enabled
	}
}

// Resolver answers extension policy queries. It is safe for concurrent use.
type Resolver struct {
	source           prefs.Source
	tracker          Tracker
	logger           *slog.Logger
	installed        func() []string
	usingPolicyTheme func() bool
	webstore         WebstoreInfo
	metrics          *Metrics
	manifestV3Only   bool

	mu        sync.RWMutex
	state     *state
	observers []Observer
	shutdown  bool
}

// NewResolver creates a resolver over source and performs the first refresh.
func NewResolver(source prefs.Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		tracker: nopTracker{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Refresh()
	r.reportCreationStages(CreationNotifiedFromManagementInitialForced, CreationNotifiedFromManagementInitialOther)
	return r
}

// Refresh rebuilds every setting from the preference source.
func (r *Resolver) Refresh() {
	start := time.Now()
	st := r.buildState()
	r.metrics.observeRefresh(time.Since(start), st)

	r.mu.Lock()
	r.state = st
	r.mu.Unlock()

	r.logger.Debug("extension settings refreshed",
		"ids", len(st.byID),
		"update_urls", len(st.byUpdateURL),
		"deferred", len(st.deferred),
		"default_mode", st.defaults.InstallationMode)
}

// OnPreferencesChanged refreshes, reports the creation stage of every
// configured extension and notifies observers.
func (r *Resolver) OnPreferencesChanged() {
	r.mu.RLock()
	stopped := r.shutdown
	r.mu.RUnlock()
	if stopped {
		return
	}

	r.Refresh()
	r.reportCreationStages(CreationNotifiedFromManagement, CreationNotifiedFromManagementOther)

	r.mu.RLock()
	observers := slices.Clone(r.observers)
	r.mu.RUnlock()

	for _, o := range observers {
		o.OnSettingsChanged()
	}
}

// reportCreationStages reports forced for every force-installed ID and other
// for the remaining configured IDs, in ID order. The tracker is called
// without the lock held.
func (r *Resolver) reportCreationStages(forced, other CreationStage) {
	type report struct {
		id    string
		stage CreationStage
	}

	r.mu.RLock()
	reports := make([]report, 0, len(r.state.byID))
	for id, s := range r.state.byID {
		stage := other
		if s.InstallationMode == types.InstallationForced {
			stage = forced
		}
		reports = append(reports, report{id: id, stage: stage})
	}
	r.mu.RUnlock()

	slices.SortFunc(reports, func(a, b report) int { return strings.Compare(a.id, b.id) })
	for _, rep := range reports {
		r.tracker.ReportInstallCreationStage(rep.id, rep.stage)
	}
}

// AddObserver registers o for change notifications.
func (r *Resolver) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown || slices.Contains(r.observers, o) {
		return
	}
	r.observers = append(r.observers, o)
}

// RemoveObserver unregisters o.
func (r *Resolver) RemoveObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers = slices.DeleteFunc(r.observers, func(existing Observer) bool {
		return existing == o
	})
}

// Shutdown drops all observers and stops reacting to preference changes.
// Queries keep answering from the last state.
func (r *Resolver) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shutdown = true
	r.observers = nil
}

// reportFailure forwards to the tracker and counts the failure.
func (r *Resolver) reportFailure(id string, reason FailureReason) {
	r.tracker.ReportFailure(id, reason)
	r.metrics.observeFailure(reason)
}

// withSettings runs fn under the read lock with the settings for id, which
// are nil when none exist. Deferred settings for id are parsed first.
func withSettings[T any](r *Resolver, id string, fn func(st *state, s *IndividualSettings) T) T {
	for {
		r.mu.RLock()
		st := r.state
		if _, pending := st.deferred[id]; !pending {
			defer r.mu.RUnlock()
			return fn(st, st.byID[id])
		}
		r.mu.RUnlock()

		r.mu.Lock()
		if _, pending := r.state.deferred[id]; pending {
			r.materialize(r.state, id)
			r.metrics.observeDeferred(len(r.state.deferred))
		}
		r.mu.Unlock()
	}
}

// withState runs fn under the read lock.
func withState[T any](r *Resolver, fn func(st *state) T) T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.state)
}

// materializeAll parses every pending deferred ID. The caller holds the
// write lock.
func (r *Resolver) materializeAll() {
	for len(r.state.deferred) > 0 {
		for id := range r.state.deferred {
			r.materialize(r.state, id)
			break
		}
	}
	r.metrics.observeDeferred(0)
}

// BlocklistedByDefault reports whether extensions not named by policy are
// blocked or removed.
func (r *Resolver) BlocklistedByDefault() bool {
	return withState(r, func(st *state) bool {
		return isBlockedMode(st.defaults.InstallationMode)
	})
}

func isBlockedMode(m types.InstallationMode) bool {
	return m == types.InstallationBlocked || m == types.InstallationRemoved
}

// GetInstallationMode resolves the installation mode of id. Per-ID settings
// win over per-update-URL settings, which win over the defaults.
func (r *Resolver) GetInstallationMode(id, updateURL string) types.InstallationMode {
	return withSettings(r, id, func(st *state, s *IndividualSettings) types.InstallationMode {
		if s != nil {
			return s.InstallationMode
		}
		if updateURL != "" {
			if u, ok := st.byUpdateURL[updateURL]; ok {
				return u.InstallationMode
			}
		}
		return st.defaults.InstallationMode
	})
}

// GetBlockedAPIPermissions returns the permissions id may not use. When both
// per-ID and per-update-URL settings exist their blocked sets are merged.
func (r *Resolver) GetBlockedAPIPermissions(id, updateURL string) PermissionSet {
	return withSettings(r, id, func(st *state, s *IndividualSettings) PermissionSet {
		var byURL *IndividualSettings
		if updateURL != "" {
			byURL = st.byUpdateURL[updateURL]
		}
		switch {
		case s != nil && byURL != nil:
			return s.BlockedPermissions.Union(byURL.BlockedPermissions)
		case s != nil:
			return s.BlockedPermissions.Clone()
		case byURL != nil:
			return byURL.BlockedPermissions.Clone()
		default:
			return st.defaults.BlockedPermissions.Clone()
		}
	})
}

// IsPermissionSetAllowed reports whether none of perms is blocked for id.
func (r *Resolver) IsPermissionSetAllowed(id, updateURL string, perms PermissionSet) bool {
	blocked := r.GetBlockedAPIPermissions(id, updateURL)
	for _, p := range blocked.Sorted() {
		if perms.Contains(p) {
			return false
		}
	}
	return true
}

// GetPolicyBlockedHosts returns the hosts id may not interact with.
// Update-URL settings are not consulted.
func (r *Resolver) GetPolicyBlockedHosts(id string) *urlpattern.Set {
	return withSettings(r, id, func(st *state, s *IndividualSettings) *urlpattern.Set {
		if s != nil {
			return s.PolicyBlockedHosts.Clone()
		}
		return st.defaults.PolicyBlockedHosts.Clone()
	})
}

// GetPolicyAllowedHosts returns the exceptions to the blocked hosts of id.
func (r *Resolver) GetPolicyAllowedHosts(id string) *urlpattern.Set {
	return withSettings(r, id, func(st *state, s *IndividualSettings) *urlpattern.Set {
		if s != nil {
			return s.PolicyAllowedHosts.Clone()
		}
		return st.defaults.PolicyAllowedHosts.Clone()
	})
}

// IsPolicyBlockedHost reports whether u matches the blocked hosts of id.
func (r *Resolver) IsPolicyBlockedHost(id string, u *url.URL) bool {
	return withSettings(r, id, func(st *state, s *IndividualSettings) bool {
		if s != nil {
			return s.PolicyBlockedHosts.MatchesURL(u)
		}
		return st.defaults.PolicyBlockedHosts.MatchesURL(u)
	})
}

func (r *Resolver) GetDefaultPolicyBlockedHosts() *urlpattern.Set {
	return withState(r, func(st *state) *urlpattern.Set {
		return st.defaults.PolicyBlockedHosts.Clone()
	})
}

func (r *Resolver) GetDefaultPolicyAllowedHosts() *urlpattern.Set {
	return withState(r, func(st *state) *urlpattern.Set {
		return st.defaults.PolicyAllowedHosts.Clone()
	})
}

// UsesDefaultPolicyHostRestrictions reports whether id has no settings of
// its own.
func (r *Resolver) UsesDefaultPolicyHostRestrictions(id string) bool {
	return withSettings(r, id, func(_ *state, s *IndividualSettings) bool {
		return s == nil
	})
}

// BlockedInstallMessage is the admin-supplied text shown when id is blocked.
func (r *Resolver) BlockedInstallMessage(id string) string {
	return withSettings(r, id, func(st *state, s *IndividualSettings) string {
		if s != nil {
			return s.BlockedInstallMessage
		}
		return st.defaults.BlockedInstallMessage
	})
}

func (r *Resolver) IsFileUrlNavigationAllowed(id string) bool {
	return withSettings(r, id, func(_ *state, s *IndividualSettings) bool {
		return s != nil && s.FileURLNavigationAllowed
	})
}

// CheckMinimumVersion reports whether ext meets its required minimum
// version. On failure the required version is returned.
func (r *Resolver) CheckMinimumVersion(ext Extension) (bool, string) {
	return withSettings(r, ext.ID, func(_ *state, s *IndividualSettings) minimumVersionResult {
		if s == nil || s.MinimumVersionRequired == nil {
			return minimumVersionResult{ok: true}
		}
		if ext.Version.Compare(*s.MinimumVersionRequired) >= 0 {
			return minimumVersionResult{ok: true}
		}
		return minimumVersionResult{required: s.MinimumVersionRequired.String()}
	}).unpack()
}

type minimumVersionResult struct {
	ok       bool
	required string
}

func (m minimumVersionResult) unpack() (bool, string) { return m.ok, m.required }

// HasAllowlistedExtension reports whether any extension can be installed at
// all: either the defaults permit installs or some ID is explicitly allowed.
func (r *Resolver) HasAllowlistedExtension() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.state
	if !isBlockedMode(st.defaults.InstallationMode) {
		return true
	}
	for _, s := range st.byID {
		if s.InstallationMode == types.InstallationAllowed {
			return true
		}
	}
	for len(st.deferred) > 0 {
		var id string
		for id = range st.deferred {
			break
		}
		r.materialize(st, id)
		if s, ok := st.byID[id]; ok && s.InstallationMode == types.InstallationAllowed {
			r.metrics.observeDeferred(len(st.deferred))
			return true
		}
	}
	r.metrics.observeDeferred(0)
	return false
}

// InstallListEntry is one force- or recommended-install record.
type InstallListEntry struct {
	ExternalUpdateURL string `json:"external_update_url"`
}

// GetForceInstallList returns the force-installed extensions keyed by ID.
func (r *Resolver) GetForceInstallList() map[string]InstallListEntry {
	return r.installListByMode(types.InstallationForced)
}

// GetRecommendedInstallList returns the recommended extensions keyed by ID.
func (r *Resolver) GetRecommendedInstallList() map[string]InstallListEntry {
	return r.installListByMode(types.InstallationRecommended)
}

func (r *Resolver) installListByMode(mode types.InstallationMode) map[string]InstallListEntry {
	return withState(r, func(st *state) map[string]InstallListEntry {
		out := make(map[string]InstallListEntry)
		for id, s := range st.byID {
			if s.InstallationMode == mode {
				out[id] = InstallListEntry{ExternalUpdateURL: s.UpdateURL}
			}
		}
		return out
	})
}

// GetForcePinnedList returns the sorted IDs whose toolbar action is pinned
// by policy.
func (r *Resolver) GetForcePinnedList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.materializeAll()
	var ids []string
	for id, s := range r.state.byID {
		if s.ToolbarPin == types.ToolbarPinForcePinned {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// IsUpdateUrlOverridden reports whether policy replaces the update URL of id.
func (r *Resolver) IsUpdateUrlOverridden(id string) bool {
	return withSettings(r, id, func(_ *state, s *IndividualSettings) bool {
		return s != nil && s.OverrideUpdateURL
	})
}

// GetEffectiveUpdateURL returns the policy update URL when overridden and
// the manifest update URL otherwise.
func (r *Resolver) GetEffectiveUpdateURL(ext Extension) string {
	return withSettings(r, ext.ID, func(_ *state, s *IndividualSettings) string {
		if s != nil && s.OverrideUpdateURL {
			return s.UpdateURL
		}
		return ext.UpdateURL
	})
}

// UpdatesFromWebstore reports whether ext updates from the web store.
func (r *Resolver) UpdatesFromWebstore(ext Extension) bool {
	return IsWebstoreUpdateURL(r.GetEffectiveUpdateURL(ext))
}

// IsInstallationExplicitlyAllowed reports whether id itself is allowed,
// forced or recommended, regardless of the defaults.
func (r *Resolver) IsInstallationExplicitlyAllowed(id string) bool {
	return withSettings(r, id, func(_ *state, s *IndividualSettings) bool {
		if s == nil {
			return false
		}
		switch s.InstallationMode {
		case types.InstallationAllowed, types.InstallationForced, types.InstallationRecommended:
			return true
		default:
			return false
		}
	})
}

// IsInstallationExplicitlyBlocked reports whether id itself is blocked or
// removed, regardless of the defaults.
func (r *Resolver) IsInstallationExplicitlyBlocked(id string) bool {
	return withSettings(r, id, func(_ *state, s *IndividualSettings) bool {
		return s != nil && isBlockedMode(s.InstallationMode)
	})
}

// IsOffstoreInstallAllowed reports whether an install of u, linked from
// referrer, is permitted outside the web store. Both must match the install
// sources, except that file URLs need no referrer.
func (r *Resolver) IsOffstoreInstallAllowed(u, referrer *url.URL) bool {
	return withState(r, func(st *state) bool {
		sources := st.global.InstallSources
		if sources == nil || u == nil || !sources.MatchesURL(u) {
			return false
		}
		return u.Scheme == "file" || (referrer != nil && sources.MatchesURL(referrer))
	})
}

// IsAllowedManifestType reports whether extensions of type t may be
// installed.
func (r *Resolver) IsAllowedManifestType(t types.ManifestType, id string) bool {
	if t == types.ManifestTypeTheme && r.usingPolicyTheme != nil && r.usingPolicyTheme() {
		return false
	}
	return withState(r, func(st *state) bool {
		if !st.global.HasAllowedTypes {
			return true
		}
		return slices.Contains(st.global.AllowedTypes, t)
	})
}

// IsAllowedManifestVersion applies the manifest v2 availability policy. Only
// extensions and login screen extensions are subject to it.
func (r *Resolver) IsAllowedManifestVersion(manifestVersion int, id string, t types.ManifestType) bool {
	enabledByDefault := !r.manifestV3Only || manifestVersion >= 3
	if t != types.ManifestTypeExtension && t != types.ManifestTypeLoginScreenExtension {
		return enabledByDefault
	}

	setting := withState(r, func(st *state) ManifestV2Setting { return st.global.ManifestV2 })
	switch setting {
	case ManifestV2Disabled:
		return manifestVersion >= 3
	case ManifestV2Enabled:
		return true
	case ManifestV2EnabledForForceInstalled:
		mode := r.GetInstallationMode(id, "")
		return manifestVersion >= 3 || mode == types.InstallationForced || mode == types.InstallationRecommended
	default:
		return enabledByDefault
	}
}

// IsAllowedByUnpublishedAvailabilityPolicy reports whether ext may stay
// enabled given its web store publication state. Extensions that do not
// update from the store, and extensions the store has no record of, are
// always allowed. Malware takedowns are handled elsewhere and ignored here.
func (r *Resolver) IsAllowedByUnpublishedAvailabilityPolicy(ext Extension) bool {
	if r.webstore == nil || !r.UpdatesFromWebstore(ext) {
		return true
	}
	availability := withState(r, func(st *state) UnpublishedAvailability {
		return st.global.UnpublishedAvailability
	})
	if availability == AllowUnpublished {
		return true
	}
	status, ok := r.webstore.Status(ext)
	if ok && status.Present && status.Violation != ViolationMalware {
		return status.Live
	}
	return true
}

// GlobalSettings returns a copy of the global restrictions.
func (r *Resolver) GlobalSettings() GlobalSettings {
	return withState(r, func(st *state) GlobalSettings {
		g := st.global
		if g.InstallSources != nil {
			g.InstallSources = g.InstallSources.Clone()
		}
		g.AllowedTypes = slices.Clone(g.AllowedTypes)
		return g
	})
}

// Settings returns a copy of the settings for id and whether id has
// settings of its own. Without its own settings the defaults are returned.
func (r *Resolver) Settings(id string) (IndividualSettings, bool) {
	return withSettings(r, id, func(st *state, s *IndividualSettings) settingsResult {
		if s == nil {
			return settingsResult{settings: st.defaults.clone()}
		}
		return settingsResult{settings: s.clone(), ok: true}
	}).unpack()
}

type settingsResult struct {
	settings IndividualSettings
	ok       bool
}

func (s settingsResult) unpack() (IndividualSettings, bool) { return s.settings, s.ok }

// DefaultSettings returns a copy of the wildcard settings.
func (r *Resolver) DefaultSettings() IndividualSettings {
	return withState(r, func(st *state) IndividualSettings { return st.defaults.clone() })
}

// ConfiguredIDs returns the sorted IDs with settings of their own, including
// deferred ones.
func (r *Resolver) ConfiguredIDs() []string {
	return withState(r, func(st *state) []string {
		ids := make([]string, 0, len(st.byID)+len(st.deferred))
		for id := range st.byID {
			ids = append(ids, id)
		}
		for id := range st.deferred {
			if _, ok := st.byID[id]; !ok {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
		return ids
	})
}

func (s *IndividualSettings) clone() IndividualSettings {
	c := *s
	c.BlockedPermissions = s.BlockedPermissions.Clone()
	c.PolicyBlockedHosts = s.PolicyBlockedHosts.Clone()
	c.PolicyAllowedHosts = s.PolicyAllowedHosts.Clone()
	if s.MinimumVersionRequired != nil {
		v := *s.MinimumVersionRequired
		c.MinimumVersionRequired = &v
	}
	return c
}
