// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/sigil-dev/extpolicy/internal/server"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Check the running server's status endpoint and display policy and report information.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "server address to check (default server.listen)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("server.listen")
	}
	out := cmd.OutOrStdout()

	var body server.StatusBody
	if err := newAPIClient(addr).getJSON("/api/v1/status", &body); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	status := successStyle.Render(body.Status)
	if body.Status != "ok" {
		status = warnStyle.Render(body.Status)
	}
	lines := []string{
		titleStyle.Render("extpolicy " + body.Version + " at " + addr),
		field("Status", status),
		field("Configured", fmt.Sprint(body.ConfiguredExtensions)),
		field("Default mode", body.DefaultMode),
		field("Blocklisted", fmt.Sprint(body.BlocklistedByDefault)),
		field("Manifest V2", body.Global.ManifestV2),
	}
	if len(body.Global.AllowedTypes) > 0 {
		lines = append(lines, field("Allowed types", strings.Join(body.Global.AllowedTypes, ", ")))
	}
	if body.Policy.FailureCount > 0 {
		lines = append(lines, field("Reload errors", fmt.Sprint(body.Policy.FailureCount)))
	}
	if body.Policy.LastError != "" {
		lines = append(lines, field("Last error", body.Policy.LastError))
	}
	if body.Reports != nil {
		lines = append(lines, field("Reports", fmt.Sprint(*body.Reports)))
	}

	_, err := fmt.Fprintln(out, boxStyle.Render(strings.Join(lines, "\n")))
	return err
}
