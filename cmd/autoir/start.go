// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autoir-dev/autoir/internal/config"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the API server and detection pipelines",
		Long:  "Load configuration, open the stores, start every configured pipeline and serve the HTTP API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	app, err := WireApp(cfg)
	if err != nil {
		return fmt.Errorf("wiring: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing subsystems", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("autoir starting",
		"version", version,
		"listen", cfg.Server.Listen,
		"data_dir", cfg.Storage.DataDir,
		"pipelines", len(app.Pipelines),
		"analyzer", app.Analyzer.Name(),
	)

	if err := app.Run(ctx); err != nil {
		return err
	}
	slog.Info("autoir stopped")
	return nil
}

// contextOrBackground guards commands invoked without Execute.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
