// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sigil-dev/extpolicy/internal/config"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extpolicy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "content_security_policy", cfg.CSP.ManifestKey)
	assert.Equal(t, 200*time.Millisecond, cfg.Policy.WatchDebounce)
	assert.Empty(t, cfg.Policy.Files)
	assert.Equal(t, slog.LevelInfo, cfg.Logging.SlogLevel())
	assert.False(t, cfg.Features.ManifestV3Only)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
policy:
  files: ["/etc/extpolicy/managed.json", "/etc/extpolicy/user.yaml"]
  deferred: true
server:
  listen: "0.0.0.0:9999"
  cors_origins: ["https://admin.example.com"]
storage:
  backend: sqlite
  path: /var/lib/extpolicy/reports.db
logging:
  level: debug
  format: json
features:
  manifest_v3_only: true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/extpolicy/managed.json", "/etc/extpolicy/user.yaml"}, cfg.Policy.Files)
	assert.True(t, cfg.Policy.Deferred)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())
	assert.True(t, cfg.Features.ManifestV3Only)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EXTPOLICY_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("EXTPOLICY_CSP_ALLOW_UNSAFE_EVAL", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.True(t, cfg.CSP.AllowUnsafeEval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: "postgres"
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigValidateInvalidValue))
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("policy.files", []string{"a.json"})
	v.Set("policy.watch", true)

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.True(t, cfg.Policy.Watch)
	assert.Equal(t, []string{"a.json"}, cfg.Policy.Files)
}

func validConfig() *config.Config {
	return &config.Config{
		CSP: config.CSPConfig{ManifestKey: "content_security_policy"},
		Server: config.ServerConfig{
			Listen:       "127.0.0.1:18790",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Storage: config.StorageConfig{Backend: "memory"},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"empty listen", func(c *config.Config) { c.Server.Listen = "" }, "server.listen must not be empty"},
		{"listen without port", func(c *config.Config) { c.Server.Listen = "localhost" }, "valid host:port"},
		{"listen port not a number", func(c *config.Config) { c.Server.Listen = "localhost:http" }, "port must be a number"},
		{"listen port out of range", func(c *config.Config) { c.Server.Listen = ":70000" }, "between 1 and 65535"},
		{"host may be empty", func(c *config.Config) { c.Server.Listen = ":8080" }, ""},
		{"zero read timeout", func(c *config.Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout"},
		{"zero write timeout", func(c *config.Config) { c.Server.WriteTimeout = 0 }, "server.write_timeout"},
		{"sqlite without path", func(c *config.Config) { c.Storage.Backend = "sqlite" }, "storage.path"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty manifest key", func(c *config.Config) { c.CSP.ManifestKey = "" }, "csp.manifest_key"},
		{"blank policy file", func(c *config.Config) { c.Policy.Files = []string{" "} }, "policy.files[0]"},
		{"watch without files", func(c *config.Config) { c.Policy.Watch = true }, "policy.watch"},
		{"negative debounce", func(c *config.Config) { c.Policy.WatchDebounce = -time.Second }, "policy.watch_debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{}
	errs := cfg.Validate()
	// manifest key, listen, read and write timeouts, backend, log format.
	assert.Len(t, errs, 6)
}

func TestBootstrapConfigAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "extpolicy.yaml")

	assert.Equal(t, path, config.BootstrapConfigAt(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, data)

	// Second call leaves the file alone.
	assert.Equal(t, "", config.BootstrapConfigAt(path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}
