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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/cairn/services/goals/audit"
)

func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	auditCmd.AddCommand(&cobra.Command{
		Use:   "verify <path>",
		Short: "Check the audit log hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, breakIndex, err := audit.VerifyChain(args[0])
			if err != nil {
				return err
			}
			if breakIndex >= 0 {
				return fmt.Errorf("chain broken at record %d after %d valid records", breakIndex, count)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records verified\n", count)
			return nil
		},
	})
	return auditCmd
}
