package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation pass over every user",
	Long: `Rebuilds every cached timeline from the durable store and resyncs the
follower and following counters. Exits non-zero if any user failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.close(logger)

		report, err := a.reconcile.Sweep(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "users=%d rebuilt=%d failed=%d\n", report.Users, report.Rebuilt, report.Failed)
		return err
	},
}
