package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediarelay/internal/api"
	"mediarelay/internal/engine"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply the authoritative status channel to pending jobs once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.RunReconciliation(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromReconcileResult(result))
				}
				out := cmd.OutOrStdout()
				if result.NoOp {
					fmt.Fprintf(out, "Reconciliation skipped: %s\n", result.Reason)
					return nil
				}
				fmt.Fprintf(out, "Channel %s: checked %d, applied %d (%d finished, %d failed), %d unmatched, %d skipped, %d errors, %d inputs purged\n",
					result.Channel, result.Checked, result.Applied, result.Finished, result.Failed,
					result.Unmatched, result.Skipped, result.Errors, result.Purged)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Force a terminal status on jobs stuck past the staleness window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.RunStalenessSweep(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromSweepResult(result))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Swept jobs older than %s: checked %d, %d finished, %d failed, %d skipped\n",
					result.Cutoff.Local().Format("2006-01-02 15:04"), result.Checked, result.Finished, result.Failed, result.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
