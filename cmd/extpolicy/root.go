// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/sigil-dev/extpolicy/internal/config"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root extpolicy command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "extpolicy",
		Short:         "extpolicy resolves extension management policy and sanitizes CSPs",
		Long:          "extpolicy answers extension management policy queries from preference documents and validates extension Content Security Policies.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags; these map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().StringSlice("policy", nil, "policy files, overriding policy.files")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCSPCmd(),
		newSettingsCmd(),
		newServeCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted so Viper does not try the bare name,
		// which collides with the ./extpolicy binary.
		v.SetConfigName("extpolicy")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/extpolicy")
		v.AddConfigPath("/etc/extpolicy")
		// No config file is fine; defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		config.WarnWritablePermissions(used)
	}

	if f := cmd.Root().PersistentFlags().Lookup("policy"); f != nil && f.Changed {
		if err := v.BindPFlag("policy.files", f); err != nil {
			return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding policy flag: %w", err)
		}
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// loadConfig resolves the configuration initViper prepared and installs the
// configured slog handler on errOut.
func loadConfig(errOut io.Writer) (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "loading config")
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}
	slog.SetDefault(newLogger(cfg.Logging, errOut))
	return cfg, nil
}

func newLogger(lc config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
