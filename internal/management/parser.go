// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	"slices"
	"strings"

	"github.com/sigil-dev/extpolicy/internal/prefs"
	"github.com/sigil-dev/extpolicy/internal/urlpattern"
	"github.com/sigil-dev/extpolicy/pkg/types"
)

// UpdateURLPrefix marks an ExtensionSettings key as an update-URL scope.
const UpdateURLPrefix = "update_url:"

// WildcardKey is the ExtensionSettings key holding the defaults.
const WildcardKey = "*"

const forceListUpdateURLKey = "external_update_url"

// state is everything derived from one read of the preferences. A state is
// built without locks and only mutated afterwards by deferred loading, under
// the resolver's write lock.
type state struct {
	defaults    *IndividualSettings
	global      GlobalSettings
	byID        map[string]*IndividualSettings
	byUpdateURL map[string]*IndividualSettings
	deferred    map[string]struct{}

	// management is kept for deferred loading.
	management *prefs.Dict
}

func newState() *state {
	return &state{
		defaults:    NewIndividualSettings(),
		byID:        make(map[string]*IndividualSettings),
		byUpdateURL: make(map[string]*IndividualSettings),
		deferred:    make(map[string]struct{}),
	}
}

func (st *state) accessByID(id string) *IndividualSettings {
	s, ok := st.byID[id]
	if !ok {
		s = DeriveFrom(st.defaults)
		st.byID[id] = s
	}
	return s
}

func (st *state) accessByUpdateURL(u string) *IndividualSettings {
	s, ok := st.byUpdateURL[u]
	if !ok {
		s = DeriveFrom(st.defaults)
		st.byUpdateURL[u] = s
	}
	return s
}

// loadPreference returns the named preference when it is set above the
// default level, hits the managed level if forceManaged, and has the
// expected kind.
func (r *Resolver) loadPreference(name string, forceManaged bool, kind prefs.Kind) *prefs.Value {
	if r.source == nil {
		return nil
	}
	pref, ok := r.source.Lookup(name)
	if !ok || pref.Level == prefs.LevelDefault {
		return nil
	}
	if forceManaged && !pref.IsManaged() {
		return nil
	}
	if pref.Value.Kind() != kind {
		r.logger.Warn("preference has unexpected type", "preference", name,
			"want", kind, "got", pref.Value.Kind())
		return nil
	}
	return pref.Value
}

func (r *Resolver) loadDict(name string, forceManaged bool) *prefs.Dict {
	d, _ := r.loadPreference(name, forceManaged, prefs.KindDict).AsDict()
	return d
}

// buildState reads every preference and produces a fresh state.
func (r *Resolver) buildState() *state {
	allowList := r.loadPreference(prefs.InstallAllowList, true, prefs.KindList)
	denyList := r.loadPreference(prefs.InstallDenyList, false, prefs.KindList)
	forceList := r.loadDict(prefs.InstallForceList, true)
	installSites := r.loadPreference(prefs.AllowedInstallSites, true, prefs.KindList)
	allowedTypes := r.loadPreference(prefs.AllowedTypes, true, prefs.KindList)
	management := r.loadDict(prefs.ExtensionManagement, true)
	extensionRequest := r.loadPreference(prefs.CloudExtensionRequestEnabled, false, prefs.KindBool)
	manifestV2 := r.loadPreference(prefs.ManifestV2Availability, true, prefs.KindInt)
	unpublished := r.loadPreference(prefs.UnpublishedAvailability, true, prefs.KindInt)

	st := newState()
	st.management = management

	requestEnabled, _ := extensionRequest.AsBool()
	if listContains(denyList, WildcardKey) || requestEnabled {
		st.defaults.InstallationMode = types.InstallationBlocked
	}

	if sub, ok := management.Get(WildcardKey).AsDict(); ok {
		if !st.defaults.parse(sub, ScopeDefault, r.logger) {
			r.logger.Warn("default extension settings malformed, using built-in defaults")
			st.defaults.Reset()
		}
		if v := sub.Get(fieldInstallSources); v.Kind() == prefs.KindList {
			installSites = v
		}
		if v := sub.Get(fieldAllowedTypes); v.Kind() == prefs.KindList {
			allowedTypes = v
		}
	}

	r.applyLegacyList(st, allowList, types.InstallationAllowed)
	r.applyLegacyList(st, denyList, types.InstallationBlocked)
	r.updateForcedExtensions(st, forceList)

	if list, ok := installSites.AsList(); ok {
		st.global.InstallSources = r.parseInstallSources(list)
	}
	if list, ok := allowedTypes.AsList(); ok {
		st.global.HasAllowedTypes = true
		st.global.AllowedTypes = parseAllowedTypes(list)
	}
	if v, ok := manifestV2.AsInt(); ok && v >= int(ManifestV2Default) && v <= int(ManifestV2EnabledForForceInstalled) {
		st.global.ManifestV2 = ManifestV2Setting(v)
	}
	if v, ok := unpublished.AsInt(); ok && (v == int(AllowUnpublished) || v == int(DisableUnpublished)) {
		st.global.UnpublishedAvailability = UnpublishedAvailability(v)
	}

	installed := r.installedSet()
	management.Range(func(key string, v *prefs.Value) bool {
		if key == WildcardKey {
			return true
		}
		sub, ok := v.AsDict()
		if !ok {
			return true
		}
		if strings.HasPrefix(key, UpdateURLPrefix) {
			r.parseUpdateURLEntry(st, strings.TrimPrefix(key, UpdateURLPrefix), sub)
			return true
		}
		for _, id := range splitIDs(key) {
			if !IsValidID(id) {
				r.logger.Warn("invalid extension id in settings", "id", id)
				continue
			}
			if installed != nil && shouldDefer(st, installed, id, sub) {
				st.deferred[id] = struct{}{}
				continue
			}
			wasForced := st.accessByID(id).InstallationMode == types.InstallationForced
			if !r.parseByID(st, id, sub) {
				continue
			}
			if wasForced && st.byID[id].InstallationMode != types.InstallationForced {
				r.reportFailure(id, FailureOverriddenBySettings)
			}
		}
		return true
	})

	return st
}

func (r *Resolver) applyLegacyList(st *state, list *prefs.Value, mode types.InstallationMode) {
	items, _ := list.AsList()
	for _, item := range items {
		id, ok := item.AsString()
		if !ok || !IsValidID(id) {
			continue
		}
		st.accessByID(id).InstallationMode = mode
	}
}

func (r *Resolver) updateForcedExtensions(st *state, forceList *prefs.Dict) {
	forceList.Range(func(id string, v *prefs.Value) bool {
		if !IsValidID(id) {
			r.reportFailure(id, FailureInvalidID)
			return true
		}
		updateURL, ok := v.Find(forceListUpdateURLKey).AsString()
		if !ok {
			r.reportFailure(id, FailureNoUpdateURL)
			return true
		}
		s := st.accessByID(id)
		s.InstallationMode = types.InstallationForced
		s.UpdateURL = updateURL
		r.tracker.ReportInstallationStage(id, StageCreated)
		r.tracker.ReportInstallCreationStage(id, CreationInitiated)
		return true
	})
}

func (r *Resolver) parseInstallSources(list []*prefs.Value) *urlpattern.Set {
	set := urlpattern.NewSet()
	for _, item := range list {
		raw, ok := item.AsString()
		if !ok {
			r.logger.Warn("install source is not a string")
			continue
		}
		p, err := urlpattern.Parse(urlpattern.SchemeAll, raw)
		if err != nil {
			r.logger.Warn("invalid install source pattern", "pattern", raw,
				"result", urlpattern.ResultOf(err))
			continue
		}
		set.Add(p)
	}
	return set
}

func parseAllowedTypes(list []*prefs.Value) []types.ManifestType {
	out := make([]types.ManifestType, 0, len(list))
	for _, item := range list {
		if n, ok := item.AsInt(); ok {
			if n >= 0 && n < int(types.NumLoadTypes) {
				out = append(out, types.ManifestType(n))
			}
			continue
		}
		if name, ok := item.AsString(); ok {
			if t := types.ParseManifestType(name); t != types.ManifestTypeUnknown {
				out = append(out, t)
			}
		}
	}
	return out
}

func (r *Resolver) parseUpdateURLEntry(st *state, updateURL string, sub *prefs.Dict) {
	if !isValidURL(updateURL) {
		r.logger.Warn("invalid update url in settings", "update_url", updateURL)
		return
	}
	s := st.accessByUpdateURL(updateURL)
	if !s.parse(sub, ScopeUpdateURL, r.logger) {
		delete(st.byUpdateURL, updateURL)
		r.logger.Warn("malformed update url settings", "update_url", updateURL)
	}
}

// parseByID applies sub to the settings for id. On failure the settings for
// id are dropped entirely.
func (r *Resolver) parseByID(st *state, id string, sub *prefs.Dict) bool {
	if st.accessByID(id).parse(sub, ScopeIndividual, r.logger) {
		return true
	}
	delete(st.byID, id)
	r.reportFailure(id, FailureMalformedExtensionSettings)
	r.logger.Warn("malformed extension settings", "id", id)
	return false
}

// shouldDefer reports whether parsing of id can wait until it is queried.
// Forced and recommended extensions are always parsed so install lists are
// complete.
func shouldDefer(st *state, installed map[string]struct{}, id string, sub *prefs.Dict) bool {
	if _, ok := st.byID[id]; ok {
		return false
	}
	if _, ok := installed[id]; ok {
		return false
	}
	mode, ok := sub.Get(fieldInstallationMode).AsString()
	if !ok {
		return true
	}
	return mode != string(types.InstallationForced) && mode != string(types.InstallationRecommended)
}

// materialize parses every entry naming id, in document order. The caller
// holds the write lock.
func (r *Resolver) materialize(st *state, id string) {
	delete(st.deferred, id)
	st.management.Range(func(key string, v *prefs.Value) bool {
		if key == WildcardKey || strings.HasPrefix(key, UpdateURLPrefix) {
			return true
		}
		sub, ok := v.AsDict()
		if !ok {
			return true
		}
		if slices.Contains(splitIDs(key), id) {
			r.parseByID(st, id, sub)
		}
		return true
	})
}

func (r *Resolver) installedSet() map[string]struct{} {
	if r.installed == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, id := range r.installed() {
		set[id] = struct{}{}
	}
	return set
}

func listContains(list *prefs.Value, s string) bool {
	items, _ := list.AsList()
	for _, item := range items {
		if v, ok := item.AsString(); ok && v == s {
			return true
		}
	}
	return false
}
