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
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/cairn/services/goals/progress"
)

func newMonthsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "months <start> <end>",
		Short:   "List the YYYY-MM months a date range touches",
		Example: "  cairn months 2024-01-15 2024-03-10",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for key := range progress.MonthKeys(start, end) {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	}
}

func newWeeksCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "weeks <start> <end>",
		Short:   "List the Sunday week starts covering a date range",
		Example: "  cairn weeks 2024-01-15 2024-03-10",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for ws := range progress.WeekStarts(start, end) {
				fmt.Fprintln(out, ws)
			}
			return nil
		},
	}
}

func parseRange(startArg, endArg string) (civil.Date, civil.Date, error) {
	start, err := civil.ParseDate(startArg)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("invalid start date %q: want YYYY-MM-DD", startArg)
	}
	end, err := civil.ParseDate(endArg)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("invalid end date %q: want YYYY-MM-DD", endArg)
	}
	if end.Before(start) {
		return civil.Date{}, civil.Date{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return start, end, nil
}
