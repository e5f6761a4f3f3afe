// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level extpolicy configuration.
type Config struct {
	Policy   PolicyConfig   `mapstructure:"policy"`
	CSP      CSPConfig      `mapstructure:"csp"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Features FeaturesConfig `mapstructure:"features"`
}

// PolicyConfig names the preference documents and how they are read.
type PolicyConfig struct {
	// Files are merged in order; later files win per preference.
	Files    []string `mapstructure:"files"`
	Deferred bool     `mapstructure:"deferred"`
	// Installed lists the extension IDs treated as installed, whose
	// settings are parsed eagerly even with Deferred set.
	Installed     []string      `mapstructure:"installed"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// CSPConfig holds defaults for the CSP sanitizer.
type CSPConfig struct {
	ManifestKey            string `mapstructure:"manifest_key"`
	AllowUnsafeEval        bool   `mapstructure:"allow_unsafe_eval"`
	AllowInsecureObjectSrc bool   `mapstructure:"allow_insecure_object_src"`
}

// ServerConfig controls the query API listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig selects the report storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FeaturesConfig toggles behavior that would otherwise come from the host
// browser.
type FeaturesConfig struct {
	ManifestV3Only bool `mapstructure:"manifest_v3_only"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("policy.files", []string{})
	v.SetDefault("policy.deferred", false)
	v.SetDefault("policy.installed", []string{})
	v.SetDefault("policy.watch", false)
	v.SetDefault("policy.watch_debounce", "200ms")
	v.SetDefault("csp.manifest_key", "content_security_policy")
	v.SetDefault("csp.allow_unsafe_eval", false)
	v.SetDefault("csp.allow_insecure_object_src", false)
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("features.manifest_v3_only", false)
}

// SetupEnv enables environment overrides with the EXTPOLICY_ prefix, so
// server.listen is read from EXTPOLICY_SERVER_LISTEN.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("EXTPOLICY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix EXTPOLICY_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validatePolicy()...)
	errs = append(errs, c.validateCSP()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validatePolicy() []error {
	var errs []error

	for i, f := range c.Policy.Files {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: policy.files[%d] must not be empty", i))
		}
	}
	if c.Policy.Watch && len(c.Policy.Files) == 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: policy.watch requires at least one policy.files entry"))
	}
	if c.Policy.WatchDebounce < 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: policy.watch_debounce must not be negative, got %s", c.Policy.WatchDebounce))
	}

	return errs
}

func (c *Config) validateCSP() []error {
	if c.CSP.ManifestKey == "" {
		return []error{sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: csp.manifest_key must not be empty")}
	}
	return nil
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: server.read_timeout must be greater than 0, got %s", c.Server.ReadTimeout))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: server.write_timeout must be greater than 0, got %s", c.Server.WriteTimeout))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"memory": true, "sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [memory, sqlite], got %q",
			c.Storage.Backend,
		))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: storage.path is required for the sqlite backend"))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	if _, ok := parseLevel(c.Logging.Level); !ok {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}

// SlogLevel returns the configured level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(l.Level)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
