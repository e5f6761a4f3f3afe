// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	"encoding/json"
	"slices"
)

// PermissionID names an API permission an extension can request.
type PermissionID string

const (
	PermissionAlarms                PermissionID = "alarms"
	PermissionBackground            PermissionID = "background"
	PermissionBookmarks             PermissionID = "bookmarks"
	PermissionClipboardRead         PermissionID = "clipboardRead"
	PermissionClipboardWrite        PermissionID = "clipboardWrite"
	PermissionContextMenus          PermissionID = "contextMenus"
	PermissionCookies               PermissionID = "cookies"
	PermissionDebugger              PermissionID = "debugger"
	PermissionDeclarativeNetRequest PermissionID = "declarativeNetRequest"
	PermissionDownloads             PermissionID = "downloads"
	PermissionFileSystem            PermissionID = "fileSystem"
	PermissionGeolocation           PermissionID = "geolocation"
	PermissionHistory               PermissionID = "history"
	PermissionIdentity              PermissionID = "identity"
	PermissionIdle                  PermissionID = "idle"
	PermissionManagement            PermissionID = "management"
	PermissionNativeMessaging       PermissionID = "nativeMessaging"
	PermissionNotifications         PermissionID = "notifications"
	PermissionPower                 PermissionID = "power"
	PermissionPrivacy               PermissionID = "privacy"
	PermissionProxy                 PermissionID = "proxy"
	PermissionScripting             PermissionID = "scripting"
	PermissionStorage               PermissionID = "storage"
	PermissionTabs                  PermissionID = "tabs"
	PermissionTopSites              PermissionID = "topSites"
	PermissionUnlimitedStorage      PermissionID = "unlimitedStorage"
	PermissionWebNavigation         PermissionID = "webNavigation"
	PermissionWebRequest            PermissionID = "webRequest"
)

var knownPermissions = map[PermissionID]struct{}{}

func init() {
	for _, p := range []PermissionID{
		PermissionAlarms, PermissionBackground, PermissionBookmarks, PermissionClipboardRead,
		PermissionClipboardWrite, PermissionContextMenus, PermissionCookies, PermissionDebugger,
		PermissionDeclarativeNetRequest, PermissionDownloads, PermissionFileSystem,
		PermissionGeolocation, PermissionHistory, PermissionIdentity, PermissionIdle,
		PermissionManagement, PermissionNativeMessaging, PermissionNotifications, PermissionPower,
		PermissionPrivacy, PermissionProxy, PermissionScripting, PermissionStorage, PermissionTabs,
		PermissionTopSites, PermissionUnlimitedStorage, PermissionWebNavigation, PermissionWebRequest,
	} {
		knownPermissions[p] = struct{}{}
	}
}

// LookupPermission returns the permission with the given name, if known.
func LookupPermission(name string) (PermissionID, bool) {
	id := PermissionID(name)
	_, ok := knownPermissions[id]
	return id, ok
}

// PermissionSet is an immutable-by-convention set of permissions. The zero
// value is an empty set.
type PermissionSet struct {
	m map[PermissionID]struct{}
}

// NewPermissionSet builds a set from ids.
func NewPermissionSet(ids ...PermissionID) PermissionSet {
	s := PermissionSet{m: make(map[PermissionID]struct{}, len(ids))}
	for _, id := range ids {
		s.m[id] = struct{}{}
	}
	return s
}

func (s PermissionSet) Len() int { return len(s.m) }

func (s PermissionSet) IsEmpty() bool { return len(s.m) == 0 }

func (s PermissionSet) Contains(id PermissionID) bool {
	_, ok := s.m[id]
	return ok
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	return NewPermissionSet(s.Sorted()...)
}

// Union returns s ∪ other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := s.Clone()
	for id := range other.m {
		out.m[id] = struct{}{}
	}
	return out
}

// Difference returns s − other.
func (s PermissionSet) Difference(other PermissionSet) PermissionSet {
	out := NewPermissionSet()
	for id := range s.m {
		if !other.Contains(id) {
			out.m[id] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same permissions.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id := range s.m {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []PermissionID {
	out := make([]PermissionID, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Strings is Sorted as plain strings.
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, id := range sorted {
		out[i] = string(id)
	}
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}
