// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sigil-dev/extpolicy/internal/server"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	extForced   = "abcdefghijklmnopabcdefghijklmnop"
	extBlocked  = "cdefghijklmnopabcdefghijklmnopab"
	extUnlisted = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	updateURL = "http://example.com/update_url"
)

func policyFile(t *testing.T) string {
	t.Helper()
	return writeFile(t, "managed.json", fmt.Sprintf(`{
  "managed": {
    "extensions.management": {
      %q: {
        "installation_mode": "force_installed",
        "update_url": %q,
        "blocked_permissions": ["downloads"],
        "minimum_version_required": "2.0",
        "toolbar_pin": "force_pinned"
      },
      %q: {
        "installation_mode": "blocked",
        "blocked_install_message": "Ask IT"
      },
      "*": {
        "installation_mode": "blocked"
      }
    }
  }
}`, extForced, updateURL, extBlocked))
}

func TestSettingsResolve_JSON(t *testing.T) {
	path := policyFile(t)

	out, _, err := execute(t, "--policy", path, "settings", "resolve", extForced, "--version", "1.5", "-o", "json")
	require.NoError(t, err)

	var d server.ExtensionDetail
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, extForced, d.ID)
	assert.True(t, d.Configured)
	assert.Equal(t, "force_installed", d.InstallationMode)
	assert.Equal(t, updateURL, d.UpdateURL)
	assert.Equal(t, []string{"downloads"}, d.BlockedPermissions)
	assert.Equal(t, "force_pinned", d.ToolbarPin)
	assert.Equal(t, "2.0", d.MinimumVersion)
	require.NotNil(t, d.MeetsMinimumVersion)
	assert.False(t, *d.MeetsMinimumVersion)
}

func TestSettingsResolve_Text(t *testing.T) {
	path := policyFile(t)

	out, _, err := execute(t, "--policy", path, "settings", "resolve", extBlocked)
	require.NoError(t, err)
	assert.Contains(t, out, extBlocked)
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "Ask IT")

	out, _, err = execute(t, "--policy", path, "settings", "resolve", extUnlisted)
	require.NoError(t, err)
	assert.Contains(t, out, "Configured: false")
}

func TestSettingsResolve_InvalidInput(t *testing.T) {
	path := policyFile(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad id", []string{"settings", "resolve", "not-an-id"}},
		{"bad version", []string{"settings", "resolve", extForced, "--version", "1..2"}},
		{"bad output", []string{"settings", "resolve", extForced, "-o", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append([]string{"--policy", path}, tt.args...)...)
			require.Error(t, err)
			assert.True(t, sigilerr.IsInvalidInput(err), err.Error())
		})
	}
}

func TestSettingsResolve_MissingPolicyFile(t *testing.T) {
	_, _, err := execute(t, "--policy", "/nonexistent/managed.json", "settings", "resolve", extForced)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePrefsLoadReadFailure))
}

func TestSettingsLists(t *testing.T) {
	path := policyFile(t)

	out, _, err := execute(t, "--policy", path, "settings", "lists")
	require.NoError(t, err)
	assert.Contains(t, out, "Forced")
	assert.Contains(t, out, extForced+"  "+updateURL)
	assert.Contains(t, out, "Recommended")
	assert.Contains(t, out, "Pinned")
	assert.NotContains(t, out, extBlocked)
}

func TestSettingsValidate(t *testing.T) {
	good := policyFile(t)
	bad := writeFile(t, "bad.json", `{"managed": {"extensions.management": {"*": {"installation_mode": "sometimes"}}}}`)
	unrelated := writeFile(t, "other.yaml", "managed:\n  extensions.install.denylist: [\"*\"]\n")

	out, _, err := execute(t, "settings", "validate", good, unrelated)
	require.NoError(t, err)
	assert.Contains(t, out, "ok "+good)
	assert.Contains(t, out, "skip "+unrelated)

	out, _, err = execute(t, "settings", "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 schema violation(s)")
	assert.Contains(t, out, "fail "+bad)
}

func TestSettingsValidate_UsesConfiguredFiles(t *testing.T) {
	_, _, err := execute(t, "settings", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no policy files")

	out, _, err := execute(t, "--policy", policyFile(t), "settings", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok ")
}
