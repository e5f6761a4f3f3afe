// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sigil-dev/extpolicy/internal/management"
	"github.com/sigil-dev/extpolicy/internal/prefs"
	"github.com/sigil-dev/extpolicy/internal/server"
	"github.com/sigil-dev/extpolicy/internal/store"
	"github.com/sigil-dev/extpolicy/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	extForced      = "abcdefghijklmnopabcdefghijklmnop"
	extRecommended = "bcdefghijklmnopabcdefghijklmnopa"
	extBlocked     = "cdefghijklmnopabcdefghijklmnopab"
	extUnlisted    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	updateURL = "http://example.com/update_url"
)

var policySettings = fmt.Sprintf(`{
  %q: {
    "installation_mode": "force_installed",
    "update_url": %q,
    "blocked_permissions": ["downloads"],
    "minimum_version_required": "2.0",
    "toolbar_pin": "force_pinned"
  },
  %q: {
    "installation_mode": "normal_installed",
    "update_url": %q
  },
  %q: {
    "installation_mode": "blocked",
    "blocked_install_message": "Ask IT",
    "runtime_blocked_hosts": ["*://*.foo.com"]
  },
  "*": {
    "installation_mode": "blocked",
    "blocked_permissions": ["fileSystem"],
    "runtime_blocked_hosts": ["*://*.example.com"],
    "allowed_types": ["extension", "theme"]
  }
}`, extForced, updateURL, extRecommended, updateURL, extBlocked)

// fakeReloader swaps in the next document on Reload.
type fakeReloader struct {
	doc  *prefs.Document
	next *prefs.Document
	err  error
	r    *management.Resolver
	m    health.Metrics
}

func (f *fakeReloader) Reload() error {
	if f.err != nil {
		f.m = health.Metrics{Available: false, FailureCount: f.m.FailureCount + 1, LastError: f.err.Error()}
		return f.err
	}
	if f.next != nil {
		f.doc.Replace(f.next)
	}
	f.r.OnPreferencesChanged()
	f.m.Available = true
	return nil
}

func (f *fakeReloader) Health() health.Metrics { return f.m }

type fixture struct {
	srv      *server.Server
	doc      *prefs.Document
	resolver *management.Resolver
	reloader *fakeReloader
	reports  *store.MemoryReportStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := prefs.DecodeJSON([]byte(policySettings))
	require.NoError(t, err)
	doc := prefs.NewDocument().SetManaged(prefs.ExtensionManagement, v)

	r := management.NewResolver(doc)
	rl := &fakeReloader{doc: doc, r: r, m: health.Metrics{Available: true}}
	rs := store.NewMemoryReportStore()

	svc, err := server.NewServices(r, server.WithReloader(rl), server.WithReports(rs))
	require.NoError(t, err)

	return &fixture{
		srv:      newTestServer(t, server.Config{Services: svc}),
		doc:      doc,
		resolver: r,
		reloader: rl,
		reports:  rs,
	}
}

func TestNewServices_RequiresResolver(t *testing.T) {
	t.Parallel()

	_, err := server.NewServices(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver is required")
}

func TestRoutes_Status(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := do(t, f.srv, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[server.StatusBody](t, w)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, server.Version, body.Version)
	assert.True(t, body.Policy.Available)
	assert.Equal(t, 3, body.ConfiguredExtensions)
	assert.True(t, body.BlocklistedByDefault)
	assert.Equal(t, "blocked", body.DefaultMode)
	assert.Equal(t, []string{"extension", "theme"}, body.Global.AllowedTypes)
	assert.Empty(t, body.Global.InstallSources)
	require.NotNil(t, body.Reports)
	assert.Zero(t, *body.Reports)
}

func TestRoutes_StatusDegradedAfterFailedReload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.reloader.err = errors.New("managed.json: invalid document")

	w := do(t, f.srv, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "previous settings remain in effect")

	body := decode[server.StatusBody](t, do(t, f.srv, http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, int64(1), body.Policy.FailureCount)
	assert.Equal(t, 3, body.ConfiguredExtensions, "last good settings are still served")
}

func TestRoutes_Refresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	next, err := prefs.DecodeJSON([]byte(fmt.Sprintf(`{%q: {"installation_mode": "allowed"}}`, extUnlisted)))
	require.NoError(t, err)
	f.reloader.next = prefs.NewDocument().SetManaged(prefs.ExtensionManagement, next)

	w := do(t, f.srv, http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Status               string `json:"status"`
		ConfiguredExtensions int    `json:"configured_extensions"`
	}](t, w)
	assert.Equal(t, "refreshed", body.Status)
	assert.Equal(t, 1, body.ConfiguredExtensions)

	ext := decode[server.ExtensionDetail](t, do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extUnlisted, nil))
	assert.Equal(t, "allowed", ext.InstallationMode)
}

func TestRoutes_RefreshWithoutReloader(t *testing.T) {
	t.Parallel()

	doc := prefs.NewDocument()
	r := management.NewResolver(doc)
	svc, err := server.NewServices(r)
	require.NoError(t, err)
	srv := newTestServer(t, server.Config{Services: svc})

	doc.SetManaged(prefs.InstallDenyList, prefs.Strings("*"))
	w := do(t, srv, http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, r.BlocklistedByDefault())

	w = do(t, srv, http.MethodGet, "/api/v1/reports", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode[server.StatusBody](t, do(t, srv, http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, "ok", body.Status)
	assert.Nil(t, body.Reports)
}

func TestRoutes_GetExtension(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	t.Run("forced", func(t *testing.T) {
		t.Parallel()

		w := do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extForced+"?version=1.5", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		d := decode[server.ExtensionDetail](t, w)

		assert.True(t, d.Configured)
		assert.Equal(t, "force_installed", d.InstallationMode)
		assert.Equal(t, updateURL, d.UpdateURL)
		assert.Equal(t, []string{"downloads"}, d.BlockedPermissions)
		assert.Equal(t, "2.0", d.MinimumVersion)
		require.NotNil(t, d.MeetsMinimumVersion)
		assert.False(t, *d.MeetsMinimumVersion)
		assert.Equal(t, "force_pinned", d.ToolbarPin)
		assert.False(t, d.UsesDefaultHostRestriction)
		assert.True(t, d.ExplicitlyAllowed)
		assert.False(t, d.ExplicitlyBlocked)
	})

	t.Run("meets minimum", func(t *testing.T) {
		t.Parallel()

		d := decode[server.ExtensionDetail](t, do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extForced+"?version=2.0.1", nil))
		require.NotNil(t, d.MeetsMinimumVersion)
		assert.True(t, *d.MeetsMinimumVersion)
	})

	t.Run("blocked with message", func(t *testing.T) {
		t.Parallel()

		d := decode[server.ExtensionDetail](t, do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extBlocked, nil))
		assert.Equal(t, "blocked", d.InstallationMode)
		assert.Equal(t, "Ask IT", d.BlockedInstallMessage)
		assert.True(t, d.ExplicitlyBlocked)
		assert.Len(t, d.PolicyBlockedHosts, 1)
		assert.Nil(t, d.MeetsMinimumVersion)
	})

	t.Run("unlisted uses defaults", func(t *testing.T) {
		t.Parallel()

		d := decode[server.ExtensionDetail](t, do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extUnlisted, nil))
		assert.False(t, d.Configured)
		assert.Equal(t, "blocked", d.InstallationMode)
		assert.Equal(t, []string{"fileSystem"}, d.BlockedPermissions)
		assert.True(t, d.UsesDefaultHostRestriction)
		assert.Equal(t, "default_unpinned", d.ToolbarPin)
		assert.Empty(t, d.PolicyAllowedHosts)
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()

		w := do(t, f.srv, http.MethodGet, "/api/v1/extensions/not-an-id", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid version", func(t *testing.T) {
		t.Parallel()

		w := do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extForced+"?version=1..2", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRoutes_CheckHost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tests := []struct {
		name    string
		id, url string
		blocked bool
	}{
		{"own blocked host", extBlocked, "http://test.foo.com/page", true},
		{"own list replaces defaults", extBlocked, "https://www.example.com/", false},
		{"seeded from defaults", extForced, "https://www.example.com/", true},
		{"default blocked host", extUnlisted, "https://sub.example.com/x", true},
		{"unrelated host", extUnlisted, "https://other.org/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+tt.id+"/hosts/check?url="+tt.url, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			body := decode[struct {
				URL     string `json:"url"`
				Blocked bool   `json:"blocked"`
			}](t, w)
			assert.Equal(t, tt.url, body.URL)
			assert.Equal(t, tt.blocked, body.Blocked)
		})
	}

	t.Run("missing url", func(t *testing.T) {
		t.Parallel()

		w := do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extUnlisted+"/hosts/check", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("relative url", func(t *testing.T) {
		t.Parallel()

		w := do(t, f.srv, http.MethodGet, "/api/v1/extensions/"+extUnlisted+"/hosts/check?url=/just/a/path", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRoutes_InstallLists(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	type list struct {
		Extensions []server.InstallEntry `json:"extensions"`
	}
	forced := decode[list](t, do(t, f.srv, http.MethodGet, "/api/v1/install-lists/forced", nil))
	assert.Equal(t, []server.InstallEntry{{ID: extForced, ExternalUpdateURL: updateURL}}, forced.Extensions)

	recommended := decode[list](t, do(t, f.srv, http.MethodGet, "/api/v1/install-lists/recommended", nil))
	assert.Equal(t, []server.InstallEntry{{ID: extRecommended, ExternalUpdateURL: updateURL}}, recommended.Extensions)

	pinned := decode[struct {
		Extensions []string `json:"extensions"`
	}](t, do(t, f.srv, http.MethodGet, "/api/v1/install-lists/pinned", nil))
	assert.Equal(t, []string{extForced}, pinned.Extensions)
}

func TestRoutes_ListReports(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, r := range []store.Report{
		{ID: "r1", Kind: store.ReportKindFailure, ExtensionID: extForced, Value: string(management.FailureNoUpdateURL)},
		{ID: "r2", Kind: store.ReportKindStage, ExtensionID: extForced, Value: string(management.StageCreated)},
		{ID: "r3", Kind: store.ReportKindFailure, ExtensionID: extBlocked, Value: string(management.FailureInvalidID)},
	} {
		r.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, f.reports.Append(ctx, &r))
	}

	type reportList struct {
		Reports []server.ReportSummary `json:"reports"`
		Total   int64                  `json:"total"`
	}

	all := decode[reportList](t, do(t, f.srv, http.MethodGet, "/api/v1/reports", nil))
	assert.Equal(t, int64(3), all.Total)
	require.Len(t, all.Reports, 3)
	assert.Equal(t, "r1", all.Reports[0].ID)

	failures := decode[reportList](t, do(t, f.srv, http.MethodGet, "/api/v1/reports?kind=failure", nil))
	assert.Equal(t, int64(2), failures.Total)

	paged := decode[reportList](t, do(t, f.srv, http.MethodGet, "/api/v1/reports?kind=failure&limit=1&offset=1", nil))
	assert.Equal(t, int64(2), paged.Total)
	require.Len(t, paged.Reports, 1)
	assert.Equal(t, "r3", paged.Reports[0].ID)

	byID := decode[reportList](t, do(t, f.srv, http.MethodGet, "/api/v1/reports?extension_id="+extForced, nil))
	assert.Equal(t, int64(2), byID.Total)

	w := do(t, f.srv, http.MethodGet, "/api/v1/reports?kind=bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "enum validation rejects unknown kinds")

	body := decode[server.StatusBody](t, do(t, f.srv, http.MethodGet, "/api/v1/status", nil))
	require.NotNil(t, body.Reports)
	assert.Equal(t, int64(3), *body.Reports)
}
