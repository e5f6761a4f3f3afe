// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// Preference names read by the settings resolver.
const (
	InstallAllowList             = "extensions.install.allowlist"
	InstallDenyList              = "extensions.install.denylist"
	InstallForceList             = "extensions.install.forcelist"
	AllowedInstallSites          = "extensions.allowed_install_sites"
	AllowedTypes                 = "extensions.allowed_types"
	ExtensionManagement          = "extensions.management"
	CloudExtensionRequestEnabled = "enterprise_reporting.extension_request.enabled"
	ManifestV2Availability       = "extensions.manifest_v2"
	UnpublishedAvailability      = "extensions.unpublished_availability"
)

// Level is the origin of a preference value.
type Level int

const (
	LevelDefault Level = iota
	LevelUser
	LevelManaged
)

func (l Level) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelManaged:
		return "managed"
	default:
		return "default"
	}
}

// Preference is a value together with the level it was set at.
type Preference struct {
	Value *Value
	Level Level
}

func (p Preference) IsManaged() bool { return p.Level == LevelManaged }

// Source supplies preferences by name.
type Source interface {
	Lookup(name string) (Preference, bool)
}

// Document holds managed and user preferences. Managed values take
// precedence. A Document is safe for concurrent use.
type Document struct {
	mu      sync.RWMutex
	managed *Dict
	user    *Dict
}

func NewDocument() *Document {
	return &Document{managed: NewDict(), user: NewDict()}
}

func (d *Document) SetManaged(name string, v *Value) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.managed.Set(name, v)
	return d
}

func (d *Document) SetUser(name string, v *Value) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.user.Set(name, v)
	return d
}

// Lookup implements Source.
func (d *Document) Lookup(name string) (Preference, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if v := d.managed.Get(name); v != nil {
		return Preference{Value: v, Level: LevelManaged}, true
	}
	if v := d.user.Get(name); v != nil {
		return Preference{Value: v, Level: LevelUser}, true
	}
	return Preference{}, false
}

// Replace swaps the contents of d with those of other.
func (d *Document) Replace(other *Document) {
	other.mu.RLock()
	managed, user := other.managed, other.user
	other.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.managed, d.user = managed, user
}

// Merge copies every preference of other into d, overriding same-named ones.
func (d *Document) Merge(other *Document) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	other.managed.Range(func(k string, v *Value) bool {
		d.managed.Set(k, v)
		return true
	})
	other.user.Range(func(k string, v *Value) bool {
		d.user.Set(k, v)
		return true
	})
}

// Names returns the managed and user preference names in document order.
func (d *Document) Names() (managed, user []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.managed.Keys(), d.user.Keys()
}

// FromValue builds a Document from a decoded {"managed": {...}, "user":
// {...}} tree. Unknown top-level keys are ignored.
func FromValue(root *Value) (*Document, error) {
	top, ok := root.AsDict()
	if !ok {
		return nil, sigilerr.New(sigilerr.CodePrefsDecodeInvalidFormat,
			"preference document must be an object", sigilerr.Field("kind", root.Kind().String()))
	}
	doc := NewDocument()
	for _, section := range []struct {
		key string
		dst *Dict
	}{{"managed", doc.managed}, {"user", doc.user}} {
		v := top.Get(section.key)
		if v == nil || v.IsNull() {
			continue
		}
		d, ok := v.AsDict()
		if !ok {
			return nil, sigilerr.New(sigilerr.CodePrefsDecodeInvalidFormat,
				"preference section must be an object", sigilerr.Field("section", section.key))
		}
		d.Range(func(k string, pv *Value) bool {
			section.dst.Set(k, pv)
			return true
		})
	}
	return doc, nil
}

// Decode parses data as YAML when format is "yaml" or "yml", JSON otherwise.
func Decode(data []byte, format string) (*Document, error) {
	var (
		root *Value
		err  error
	)
	switch strings.ToLower(format) {
	case "yaml", "yml":
		root, err = DecodeYAML(data)
	default:
		root, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, err
	}
	return FromValue(root)
}

// LoadFile reads a preference document, choosing the decoder by extension.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied configuration
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodePrefsLoadReadFailure, "reading preference file",
			sigilerr.Field("path", path))
	}
	doc, err := Decode(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, sigilerr.With(err, sigilerr.Field("path", path))
	}
	return doc, nil
}

// LoadFiles loads and merges documents in order; later files win.
func LoadFiles(paths ...string) (*Document, error) {
	doc := NewDocument()
	for _, p := range paths {
		next, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		doc.Merge(next)
	}
	return doc, nil
}
