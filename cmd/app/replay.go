package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var replayLimit int

var replayCmd = &cobra.Command{
	Use:   "replay [dead-letter-id...]",
	Short: "List dead-lettered tasks or re-enqueue them",
	Long: `Without arguments, lists the most recent dead letters. With ids, enqueues a
fresh copy of each failed task with a full retry budget.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.close(logger)

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			letters, err := a.deadLetters.ListDeadLetters(cmd.Context(), replayLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tREF\tATTEMPTS\tFAILED\tREPLAYED\tERROR")
			for _, d := range letters {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", d.ID, d.Kind, d.Ref, d.Attempts, d.FailedAt, d.ReplayedAt, d.LastError)
			}
			return w.Flush()
		}

		for _, id := range args {
			taskID, err := a.deadLetters.ReplayDeadLetter(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("replay %s: %w", id, err)
			}
			fmt.Fprintf(out, "%s -> task %s\n", id, taskID)
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayLimit, "limit", 50, "number of dead letters to list")
}
