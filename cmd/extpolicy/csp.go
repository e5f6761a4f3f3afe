// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"

	"github.com/sigil-dev/extpolicy/internal/csp"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/sigil-dev/extpolicy/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCSPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csp",
		Short: "Validate and rewrite extension Content Security Policies",
	}

	cmd.PersistentFlags().String("key", "", "manifest key named in warnings (default csp.manifest_key)")

	cmd.AddCommand(
		newCSPSanitizeCmd(),
		newCSPSandboxCmd(),
		newCSPCheckRemoteCmd(),
		newCSPSandboxedCmd(),
		newCSPLegalCmd(),
	)
	return cmd
}

func manifestKey(cmd *cobra.Command) string {
	if key, _ := cmd.Flags().GetString("key"); key != "" {
		return key
	}
	return viper.GetString("csp.manifest_key")
}

// boolFlag returns the flag value when set and the config value otherwise.
func boolFlag(cmd *cobra.Command, name, key string) bool {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool(name)
		return v
	}
	return viper.GetBool(key)
}

func printRewrite(out io.Writer, policy string, warnings []csp.Warning) {
	_, _ = fmt.Fprintln(out, policy)
	for _, w := range warnings {
		_, _ = fmt.Fprintln(out, warnStyle.Render("warning:")+" "+w.Message)
	}
}

func newCSPSanitizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanitize <policy>",
		Short: "Restrict an extension-pages policy to secure script and object sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := csp.OptionsNone
			if boolFlag(cmd, "allow-unsafe-eval", "csp.allow_unsafe_eval") {
				opts |= csp.OptionsAllowUnsafeEval
			}
			if boolFlag(cmd, "allow-insecure-object-src", "csp.allow_insecure_object_src") {
				opts |= csp.OptionsAllowInsecureObjectSrc
			}
			policy, warnings := csp.SanitizeContentSecurityPolicy(args[0], manifestKey(cmd), opts)
			printRewrite(cmd.OutOrStdout(), policy, warnings)
			return nil
		},
	}
	cmd.Flags().Bool("allow-unsafe-eval", false, "keep 'unsafe-eval' in script-src")
	cmd.Flags().Bool("allow-insecure-object-src", false, "leave object-src unrestricted")
	return cmd
}

func newCSPSandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox <policy>",
		Short: "Disallow remote frames and scripts in a sandboxed-pages policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, warnings := csp.SandboxedPageCSPDisallowingRemoteSources(args[0], manifestKey(cmd))
			printRewrite(cmd.OutOrStdout(), policy, warnings)
			return nil
		},
	}
}

func newCSPCheckRemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-remote <policy>",
		Short: "Fail when a policy allows remote code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := csp.DisallowsRemoteCode(args[0], manifestKey(cmd)); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("ok: policy disallows remote code"))
			return err
		},
	}
}

func newCSPSandboxedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandboxed <policy>",
		Short: "Report whether a policy runs the page in a unique origin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("type")
			t := types.ParseManifestType(name)
			if t == types.ManifestTypeUnknown {
				return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "unknown manifest type %q", name)
			}
			verdict := "not sandboxed"
			if csp.IsSandboxed(args[0], t) {
				verdict = "sandboxed"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), verdict)
			return err
		},
	}
	cmd.Flags().String("type", "extension", "manifest type, e.g. extension or platform_app")
	return cmd
}

func newCSPLegalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legal <policy>",
		Short: "Fail when a policy cannot be sent as a header value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := csp.CheckLegal(args[0], manifestKey(cmd)); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("ok: policy is a legal header value"))
			return err
		},
	}
}
