// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/sigil-dev/extpolicy/internal/config"
	"github.com/sigil-dev/extpolicy/internal/installstage"
	"github.com/sigil-dev/extpolicy/internal/management"
	"github.com/sigil-dev/extpolicy/internal/policy"
	"github.com/sigil-dev/extpolicy/internal/prefs"
	"github.com/sigil-dev/extpolicy/internal/server"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "settings",
		Aliases: []string{"s"},
		Short:   "Query resolved extension management settings",
	}
	cmd.AddCommand(
		newSettingsResolveCmd(),
		newSettingsListsCmd(),
		newSettingsValidateCmd(),
	)
	return cmd
}

// resolverOptions returns the resolver options implied by cfg.
func resolverOptions(cfg *config.Config, logger *slog.Logger) []management.Option {
	opts := []management.Option{
		management.WithLogger(logger),
		management.WithManifestV3Only(cfg.Features.ManifestV3Only),
	}
	if cfg.Policy.Deferred {
		installed := append([]string(nil), cfg.Policy.Installed...)
		opts = append(opts, management.WithDeferredLoading(func() []string { return installed }))
	}
	return opts
}

// loadResolver reads the configured policy files once and resolves them.
func loadResolver(cfg *config.Config) (*management.Resolver, error) {
	logger := slog.Default()
	loader := policy.NewLoader(cfg.Policy.Files, policy.WithLogger(logger))
	if err := loader.Reload(); err != nil {
		return nil, err
	}
	opts := append(resolverOptions(cfg, logger),
		management.WithTracker(installstage.LogTracker{Logger: logger}))
	return management.NewResolver(loader.Document(), opts...), nil
}

func newSettingsResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <extension-id>",
		Short: "Show the settings that apply to one extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			r, err := loadResolver(cfg)
			if err != nil {
				return err
			}

			updateURL, _ := cmd.Flags().GetString("update-url")
			version, _ := cmd.Flags().GetString("version")
			detail, err := server.DescribeExtension(r, args[0], updateURL, version)
			if err != nil {
				return sigilerr.Wrap(err, sigilerr.CodeCLIInputInvalid, "resolving extension")
			}

			output, _ := cmd.Flags().GetString("output")
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			case "text":
				printDetail(cmd.OutOrStdout(), detail)
				return nil
			default:
				return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "unknown output format %q (want text or json)", output)
			}
		},
	}
	cmd.Flags().String("update-url", "", "update URL from the extension manifest")
	cmd.Flags().String("version", "", "installed version, checked against the minimum version")
	cmd.Flags().StringP("output", "o", "text", "output format: text or json")
	return cmd
}

func printDetail(out io.Writer, d server.ExtensionDetail) {
	lines := []string{
		titleStyle.Render(d.ID),
		field("Configured", fmt.Sprint(d.Configured)),
		field("Installation", d.InstallationMode),
	}
	if d.UpdateURL != "" {
		lines = append(lines, field("Update URL", d.UpdateURL))
		lines = append(lines, field("Override URL", fmt.Sprint(d.OverrideUpdateURL)))
	}
	lines = append(lines,
		field("Blocked perms", listOrNone(d.BlockedPermissions)),
		field("Blocked hosts", listOrNone(d.PolicyBlockedHosts)),
		field("Allowed hosts", listOrNone(d.PolicyAllowedHosts)),
		field("Default hosts", fmt.Sprint(d.UsesDefaultHostRestriction)),
		field("Toolbar pin", d.ToolbarPin),
	)
	if d.MinimumVersion != "" {
		lines = append(lines, field("Min version", d.MinimumVersion))
	}
	if d.MeetsMinimumVersion != nil {
		verdict := successStyle.Render("yes")
		if !*d.MeetsMinimumVersion {
			verdict = warnStyle.Render("no")
		}
		lines = append(lines, field("Meets minimum", verdict))
	}
	if d.BlockedInstallMessage != "" {
		lines = append(lines, field("Blocked msg", d.BlockedInstallMessage))
	}
	_, _ = fmt.Fprintln(out, boxStyle.Render(strings.Join(lines, "\n")))
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return dimStyle.Render("none")
	}
	return strings.Join(items, ", ")
}

func newSettingsListsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Print the forced, recommended and pinned install lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			r, err := loadResolver(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printInstallList(out, "Forced", r.GetForceInstallList())
			printInstallList(out, "Recommended", r.GetRecommendedInstallList())
			_, _ = fmt.Fprintln(out, titleStyle.Render("Pinned"))
			pinned := r.GetForcePinnedList()
			if len(pinned) == 0 {
				_, _ = fmt.Fprintln(out, dimStyle.Render("  none"))
			}
			for _, id := range pinned {
				_, _ = fmt.Fprintln(out, "  "+id)
			}
			return nil
		},
	}
}

func printInstallList(out io.Writer, title string, list map[string]management.InstallListEntry) {
	_, _ = fmt.Fprintln(out, titleStyle.Render(title))
	if len(list) == 0 {
		_, _ = fmt.Fprintln(out, dimStyle.Render("  none"))
		return
	}
	ids := make([]string, 0, len(list))
	for id := range list {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, _ = fmt.Fprintf(out, "  %s  %s\n", id, dimStyle.Render(list[id].ExternalUpdateURL))
	}
}

func newSettingsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [files...]",
		Short: "Check the extension management preference against its schema",
		Long: "Validate checks the extensions.management preference of each file against the ExtensionSettings schema. " +
			"With no arguments the configured policy files are checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				cfg, err := loadConfig(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				files = cfg.Policy.Files
			}
			if len(files) == 0 {
				return sigilerr.New(sigilerr.CodeCLIInputInvalid, "no policy files to validate")
			}

			out := cmd.OutOrStdout()
			violations := 0
			for _, path := range files {
				n, err := validateFile(out, path)
				if err != nil {
					return err
				}
				violations += n
			}
			if violations > 0 {
				return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "%d schema violation(s) found", violations)
			}
			return nil
		},
	}
}

func validateFile(out io.Writer, path string) (int, error) {
	doc, err := prefs.LoadFile(path)
	if err != nil {
		return 0, err
	}
	pref, ok := doc.Lookup(prefs.ExtensionManagement)
	if !ok {
		_, _ = fmt.Fprintf(out, "%s %s\n", dimStyle.Render("skip"), path)
		return 0, nil
	}
	msgs, err := management.ValidateSettingsValue(pref.Value)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		_, _ = fmt.Fprintf(out, "%s %s\n", successStyle.Render("ok"), path)
		return 0, nil
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", errorStyle.Render("fail"), path)
	for _, m := range msgs {
		_, _ = fmt.Fprintln(out, "  "+m)
	}
	return len(msgs), nil
}
