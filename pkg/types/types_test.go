// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types_test

import (
	"testing"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/sigil-dev/extpolicy/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstallationMode(t *testing.T) {
	tests := []struct {
		in   string
		want types.InstallationMode
	}{
		{"allowed", types.InstallationAllowed},
		{"blocked", types.InstallationBlocked},
		{"force_installed", types.InstallationForced},
		{"normal_installed", types.InstallationRecommended},
		{"removed", types.InstallationRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseInstallationMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInstallationMode_RejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "Allowed", "recommended", "force"} {
		_, err := types.ParseInstallationMode(in)
		require.Error(t, err, in)
		assert.True(t, sigilerr.IsInvalidInput(err))
	}
}

func TestParseToolbarPin(t *testing.T) {
	pin, ok := types.ParseToolbarPin("force_pinned")
	assert.True(t, ok)
	assert.Equal(t, types.ToolbarPinForcePinned, pin)

	pin, ok = types.ParseToolbarPin("default")
	assert.True(t, ok)
	assert.Equal(t, types.ToolbarPinDefault, pin)

	pin, ok = types.ParseToolbarPin("default_unpinned")
	assert.True(t, ok)
	assert.Equal(t, types.ToolbarPinDefault, pin)

	_, ok = types.ParseToolbarPin("pinned")
	assert.False(t, ok)
}

func TestManifestTypeNames(t *testing.T) {
	assert.Equal(t, types.ManifestTypeTheme, types.ParseManifestType("theme"))
	assert.Equal(t, types.ManifestTypeUserScript, types.ParseManifestType("user_script"))
	assert.Equal(t, types.ManifestTypePlatformApp, types.ParseManifestType("platform_app"))
	assert.Equal(t, types.ManifestTypeUnknown, types.ParseManifestType("shared_module"))
	assert.Equal(t, types.ManifestTypeUnknown, types.ParseManifestType("bogus"))

	assert.Equal(t, "hosted_app", types.ManifestTypeHostedApp.String())
	assert.Equal(t, "shared_module", types.ManifestTypeSharedModule.String())
	assert.Equal(t, 10, int(types.NumLoadTypes))
}
