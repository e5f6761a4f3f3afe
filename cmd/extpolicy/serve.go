// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sigil-dev/extpolicy/internal/config"
	"github.com/sigil-dev/extpolicy/internal/installstage"
	"github.com/sigil-dev/extpolicy/internal/management"
	"github.com/sigil-dev/extpolicy/internal/policy"
	"github.com/sigil-dev/extpolicy/internal/server"
	"github.com/sigil-dev/extpolicy/internal/store"
	_ "github.com/sigil-dev/extpolicy/internal/store/sqlite"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the policy query server",
		Long:  "Load the policy files, resolve extension settings, and serve the query API until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("watch", false, "reload policy files when they change")

	return cmd
}

// app holds everything serve wires together.
type app struct {
	loader   *policy.Loader
	resolver *management.Resolver
	reports  store.ReportStore
	server   *server.Server
}

func (a *app) Close() error {
	a.resolver.Shutdown()
	return a.reports.Close()
}

// newApp opens the report store, loads policy and builds the server. The
// metrics of every component are registered with reg.
func newApp(cfg *config.Config, reg *prometheus.Registry) (*app, error) {
	logger := slog.Default()

	reports, err := store.NewReportStore(&store.StorageConfig{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
	})
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeCLISetupFailure, "opening report store")
	}

	loader := policy.NewLoader(cfg.Policy.Files, policy.WithLogger(logger))
	if err := loader.Reload(); err != nil {
		_ = reports.Close()
		return nil, err
	}

	metrics, err := management.NewMetrics(reg)
	if err != nil {
		_ = reports.Close()
		return nil, err
	}

	tracker := installstage.Tee(
		installstage.New(reports, installstage.WithLogger(logger)),
		installstage.LogTracker{Logger: logger},
	)
	opts := append(resolverOptions(cfg, logger),
		management.WithTracker(tracker),
		management.WithMetrics(metrics),
	)
	resolver := management.NewResolver(loader.Document(), opts...)
	loader.OnReload(resolver.OnPreferencesChanged)

	services, err := server.NewServices(resolver,
		server.WithReloader(loader),
		server.WithReports(reports),
	)
	if err != nil {
		_ = reports.Close()
		return nil, err
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		CSP: server.CSPDefaults{
			ManifestKey:            cfg.CSP.ManifestKey,
			AllowUnsafeEval:        cfg.CSP.AllowUnsafeEval,
			AllowInsecureObjectSrc: cfg.CSP.AllowInsecureObjectSrc,
		},
		Services: services,
		Gatherer: reg,
	})
	if err != nil {
		_ = reports.Close()
		return nil, err
	}

	return &app{
		loader:   loader,
		resolver: resolver,
		reports:  reports,
		server:   srv,
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if f := cmd.Flags().Lookup("watch"); f != nil && f.Changed {
		cfg.Policy.Watch, _ = cmd.Flags().GetBool("watch")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing report store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Policy.Watch {
		go func() {
			if err := a.loader.Watch(ctx, cfg.Policy.WatchDebounce); err != nil && ctx.Err() == nil {
				slog.Error("policy watch stopped", "error", err)
			}
		}()
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (policy files: %d, watch: %t)\n",
		successStyle.Render("extpolicy listening on"), cfg.Server.Listen, len(cfg.Policy.Files), cfg.Policy.Watch)

	return a.server.Start(ctx)
}
