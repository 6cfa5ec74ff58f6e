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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cairn/pkg/ux"
	"github.com/AleutianAI/cairn/services/goals"
	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/progress"
	"github.com/AleutianAI/cairn/services/goals/store"
)

const statsBarWidth = 24

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var (
		email string
		plain bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's dashboard and progress",
		Long: "Reads the configured store directly. The badger backend allows one " +
			"process at a time, so stop the server first or use sqlite.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Logging, true)
			defer logger.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := goals.OpenStore(ctx, cfg.Store.Backend, cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			printer := ux.NewPrinter(cmd.OutOrStdout())
			if plain {
				printer = ux.NewPlainPrinter(cmd.OutOrStdout())
			}
			return renderStats(ctx, st, email, time.Now(), printer)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable colors and box drawing")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// renderStats prints the dashboard headline, every goal's progress bar and
// the category and priority distributions.
func renderStats(ctx context.Context, st store.Store, email string, now time.Time, p *ux.Printer) error {
	user, err := st.GetUserByEmail(ctx, datatypes.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no account for %s", email)
	}
	if err != nil {
		return err
	}
	list, err := st.ListGoals(ctx, user.ID)
	if err != nil {
		return err
	}

	dash := progress.BuildDashboard(list, now)
	overview := progress.BuildOverview(list, now)

	name := user.DisplayName
	if name == "" {
		name = user.Email
	}
	p.Title("Goals for " + name)
	p.KeyValue("Total", dash.Total)
	p.KeyValue("Active", dash.Active)
	p.KeyValue("Completed", dash.Completed)
	p.KeyValue("Average progress", fmt.Sprintf("%d%%", dash.AverageProgress))
	p.Line("")

	if len(list) == 0 {
		p.Line("No goals yet.")
	} else {
		p.Title("Progress")
		for i, row := range overview.Goals {
			p.Bar(row.Name, row.Progress, statsBarWidth)
			g := list[i]
			icon := ux.IconPending
			if g.Completed {
				icon = ux.IconSuccess
			}
			p.Item(icon, fmt.Sprintf("%s, %s priority, %d days left",
				g.Category, g.Priority, progress.DaysRemaining(g.EndDate, now)))
		}
		p.Line("")
		p.Title("By category")
		for _, b := range overview.Categories {
			p.KeyValue(b.Name, b.Value)
		}
		p.Title("By priority")
		for _, b := range overview.Priorities {
			p.KeyValue(b.Name, b.Value)
		}
	}
	p.Line("")
	p.Quote(dash.Quote)
	return nil
}
