// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sigil-dev/extpolicy/internal/config"
	"github.com/sigil-dev/extpolicy/internal/server"
	"github.com/sigil-dev/extpolicy/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, files ...string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Policy.Files = files
	return cfg
}

func getJSON[T any](t *testing.T, h http.Handler, path string) T {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestNewApp_ServesResolvedPolicy(t *testing.T) {
	a, err := newApp(testConfig(t, policyFile(t)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	// Reloading reports the creation stage of every configured extension.
	require.NoError(t, a.loader.Reload())

	h := a.server.Handler()
	status := getJSON[server.StatusBody](t, h, "/api/v1/status")
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 2, status.ConfiguredExtensions)
	assert.True(t, status.BlocklistedByDefault)
	require.NotNil(t, status.Reports)
	assert.Positive(t, *status.Reports)

	detail := getJSON[server.ExtensionDetail](t, h, "/api/v1/extensions/"+extForced)
	assert.Equal(t, "force_installed", detail.InstallationMode)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "extpolicy_settings_refreshes_total")
}

func TestNewApp_ReloadUpdatesResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "managed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"managed": {}}`), 0o600))

	a, err := newApp(testConfig(t, path), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.False(t, a.resolver.BlocklistedByDefault())

	require.NoError(t, os.WriteFile(path, []byte(`{"managed": {"extensions.install.denylist": ["*"]}}`), 0o600))
	require.NoError(t, a.loader.Reload())
	assert.True(t, a.resolver.BlocklistedByDefault())
}

func TestNewApp_SQLiteReports(t *testing.T) {
	cfg := testConfig(t, policyFile(t))
	cfg.Storage = config.StorageConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "reports.db")}

	a, err := newApp(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.loader.Reload())
	n, err := a.reports.Count(context.Background(), store.ReportFilter{ExtensionID: extForced})
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestNewApp_MissingPolicyFile(t *testing.T) {
	_, err := newApp(testConfig(t, "/nonexistent/managed.json"), prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestNewApp_Serves(t *testing.T) {
	a, err := newApp(testConfig(t, policyFile(t)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.server.Handler())
	t.Cleanup(srv.Close)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
