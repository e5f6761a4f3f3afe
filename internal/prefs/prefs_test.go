// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package prefs_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigil-dev/extpolicy/internal/prefs"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON_PreservesOrderAndKinds(t *testing.T) {
	t.Parallel()

	v, err := prefs.DecodeJSON([]byte(`{"z": 1, "a": 1.5, "m": "x", "b": true, "n": null, "l": [1, "two"], "big": 4294967296}`))
	require.NoError(t, err)

	d, ok := v.AsDict()
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m", "b", "n", "l", "big"}, d.Keys())

	i, ok := v.Find("z").AsInt()
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	f, ok := v.Find("a").AsDouble()
	assert.True(t, ok)
	assert.InDelta(t, 1.5, f, 0)

	_, ok = v.Find("a").AsInt()
	assert.False(t, ok, "doubles are not ints")

	assert.Equal(t, prefs.KindDouble, v.Find("big").Kind())
	assert.True(t, v.Find("n").IsNull())

	items, ok := v.Find("l").AsList()
	require.True(t, ok)
	require.Len(t, items, 2)
	s, ok := items[1].AsString()
	assert.True(t, ok)
	assert.Equal(t, "two", s)
}

func TestDecodeJSON_Invalid(t *testing.T) {
	t.Parallel()

	_, err := prefs.DecodeJSON([]byte(`{"a": `))
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsDecodeInvalidFormat))
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	v, err := prefs.DecodeYAML([]byte("second: [a, b]\nfirst:\n  n: 3\n  f: 0.5\n  on: true\n  none: ~\n"))
	require.NoError(t, err)

	d, ok := v.AsDict()
	require.True(t, ok)
	assert.Equal(t, []string{"second", "first"}, d.Keys())

	n, ok := v.FindPath("first", "n").AsInt()
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, prefs.KindDouble, v.FindPath("first", "f").Kind())
	b, ok := v.FindPath("first", "on").AsBool()
	assert.True(t, ok)
	assert.True(t, b)
	assert.True(t, v.FindPath("first", "none").IsNull())
	assert.Nil(t, v.FindPath("first", "missing", "deeper"))

	_, err = prefs.DecodeYAML([]byte("a: [unclosed"))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsDecodeInvalidFormat))
}

func TestDecodeYAML_Aliases(t *testing.T) {
	t.Parallel()

	v, err := prefs.DecodeYAML([]byte("base: &hosts [\"*://*.example.com\"]\nother: *hosts\nagain: *hosts\n"))
	require.NoError(t, err)
	assert.True(t, v.Find("base").Equal(v.Find("other")))
	assert.True(t, v.Find("base").Equal(v.Find("again")))
}

func billionLaughs(levels, width int) string {
	var b strings.Builder
	b.WriteString("l0: &l0 x\n")
	for i := 1; i <= levels; i++ {
		fmt.Fprintf(&b, "l%d: &l%d [", i, i)
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "*l%d", i-1)
		}
		b.WriteString("]\n")
	}
	return b.String()
}

func TestDecodeYAML_RejectsHostileAliases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"self reference", "managed: &x\n  extensions.management: *x\n"},
		{"mutual reference", "a: &a\n  b: &b\n    a: *a\n"},
		{"exponential expansion", billionLaughs(9, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := prefs.DecodeYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsDecodeInvalidFormat))
		})
	}
}

func TestLoadFile_RecursiveAlias(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "managed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("managed: &x\n  extensions.management: *x\n"), 0o600))

	_, err := prefs.LoadFile(path)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsDecodeInvalidFormat))
}

func TestValue_NilSafety(t *testing.T) {
	t.Parallel()

	var v *prefs.Value
	assert.Equal(t, prefs.KindNull, v.Kind())
	assert.Nil(t, v.Find("x"))
	_, ok := v.AsString()
	assert.False(t, ok)
	_, ok = v.AsDict()
	assert.False(t, ok)

	wrong := prefs.String("x")
	assert.Nil(t, wrong.Find("x"), "find on a non-dict returns nil")
}

func TestValue_MarshalJSONKeepsOrder(t *testing.T) {
	t.Parallel()

	d := prefs.NewDict().
		Set("b", prefs.Int(1)).
		Set("a", prefs.Strings("x", "y")).
		Set("c", prefs.DictValue(prefs.NewDict().Set("k", prefs.Bool(false))))
	d.Set("b", prefs.Double(2.5))

	raw, err := prefs.DictValue(d).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2.5,"a":["x","y"],"c":{"k":false}}`, string(raw))

	back, err := prefs.DecodeJSON(raw)
	require.NoError(t, err)
	assert.True(t, back.Equal(prefs.DictValue(d)))
}

func TestDocument_ManagedWinsOverUser(t *testing.T) {
	t.Parallel()

	doc := prefs.NewDocument().
		SetUser(prefs.InstallDenyList, prefs.Strings("*")).
		SetManaged(prefs.InstallDenyList, prefs.Strings("abc")).
		SetUser(prefs.CloudExtensionRequestEnabled, prefs.Bool(true))

	p, ok := doc.Lookup(prefs.InstallDenyList)
	require.True(t, ok)
	assert.True(t, p.IsManaged())
	assert.True(t, p.Value.Equal(prefs.Strings("abc")))

	p, ok = doc.Lookup(prefs.CloudExtensionRequestEnabled)
	require.True(t, ok)
	assert.Equal(t, prefs.LevelUser, p.Level)
	assert.Equal(t, "user", p.Level.String())

	_, ok = doc.Lookup(prefs.InstallForceList)
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"managed": {"extensions.install.allowlist": ["abcdefghijklmnopabcdefghijklmnop"]},
		"user": {"extensions.install.denylist": ["*"]}
	}`), 0o600))
	yamlPath := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("managed:\n  extensions.install.allowlist: []\n"), 0o600))

	doc, err := prefs.LoadFile(jsonPath)
	require.NoError(t, err)
	p, ok := doc.Lookup(prefs.InstallAllowList)
	require.True(t, ok)
	items, _ := p.Value.AsList()
	assert.Len(t, items, 1)

	merged, err := prefs.LoadFiles(jsonPath, yamlPath)
	require.NoError(t, err)
	p, ok = merged.Lookup(prefs.InstallAllowList)
	require.True(t, ok)
	items, _ = p.Value.AsList()
	assert.Empty(t, items, "later files override earlier ones")
	_, ok = merged.Lookup(prefs.InstallDenyList)
	assert.True(t, ok)

	_, err = prefs.LoadFile(filepath.Join(dir, "missing.json"))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsLoadReadFailure))

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"managed": []}`), 0o600))
	_, err = prefs.LoadFile(badPath)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsDecodeInvalidFormat))
}

func TestWatch_NotifiesOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- prefs.Watch(ctx, func() { calls.Add(1) }, path)
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"managed": {}}`), 0o600)
		return calls.Load() > 0
	}, 5*time.Second, 250*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
