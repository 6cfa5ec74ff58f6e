// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cairn/cmd/cairn/config"
	"github.com/AleutianAI/cairn/services/goals"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// serviceConfig maps the file configuration onto the service's.
func serviceConfig(cfg config.CairnConfig) goals.Config {
	return goals.Config{
		Port:              cfg.Server.Port,
		GinMode:           cfg.Server.GinMode,
		StoreBackend:      cfg.Store.Backend,
		StorePath:         cfg.Store.Path,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          cfg.Auth.TokenTTL,
		OTelEndpoint:      cfg.Observability.OTelEndpoint,
		CascadeDeletes:    cfg.Tracker.CascadeDeletes,
		SweepConcurrency:  cfg.Tracker.SweepConcurrency,
		AuthRatePerMinute: cfg.Auth.RatePerMinute,
		AuthBurst:         cfg.Auth.Burst,
		AuditLogPath:      cfg.Observability.AuditLogPath,
	}
}

// runServe starts the service and stops it when ctx is cancelled.
func runServe(ctx context.Context, cfg config.CairnConfig) error {
	logger := newLogger(cfg.Logging, false)
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	svcCfg := serviceConfig(cfg)
	svcCfg.Logger = logger
	svc, err := goals.New(svcCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create goal service: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
