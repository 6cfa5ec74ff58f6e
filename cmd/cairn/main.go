// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cairn runs the goal tracking service and inspects its data.
//
//	cairn serve                      # run the HTTP API
//	cairn months 2024-01-15 2024-03-10
//	cairn weeks 2024-01-15 2024-03-10
//	cairn stats --email ada@example.com
//	cairn audit verify ~/.cairn/audit.jsonl
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cairn/cmd/cairn/config"
	"github.com/AleutianAI/cairn/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cairn",
		Short:         "Track goals week by week",
		Long:          "Cairn tracks goals, their weekly task lists and monthly reflections.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default ~/.cairn/cairn.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newMonthsCmd(),
		newWeeksCmd(),
		newStatsCmd(opts),
		newAuditCmd(),
	)
	return root
}

// loadConfig resolves, loads and validates the configuration.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.CairnConfig, error) {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.CairnConfig{}, err
		}
		path = p
	}
	cfg, err := config.Load(path, cmd.ErrOrStderr())
	if err != nil {
		return config.CairnConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.CairnConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, quiet bool) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Level)
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "cairn",
		JSON:    cfg.JSON,
		Quiet:   quiet,
	})
}
