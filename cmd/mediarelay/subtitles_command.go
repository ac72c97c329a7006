package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mediarelay/internal/api"
	"mediarelay/internal/engine"
	"mediarelay/internal/language"
	"mediarelay/internal/subtitles"
)

func newSubtitlesCommand(ctx *commandContext) *cobra.Command {
	subCmd := &cobra.Command{
		Use:   "subtitles",
		Short: "Request and track generated subtitles",
	}
	subCmd.AddCommand(newSubtitlesRequestCommand(ctx))
	subCmd.AddCommand(newSubtitlesStatusCommand(ctx))
	subCmd.AddCommand(newSubtitlesRetryCommand(ctx))
	subCmd.AddCommand(newSubtitlesReconcileCommand(ctx))
	subCmd.AddCommand(newSubtitlesCleanupCommand(ctx))
	return subCmd
}

func newSubtitlesRequestCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "request <content-id> <language>...",
		Short: "Request subtitles for a finished job",
		Long: `Request subtitle generation for one or more languages.

The job must be FINISHED. Languages are ISO 639-1 codes or names and the whole
list is rejected when any entry is unknown. Languages already pending,
processing, or completed are skipped; failed ones are reopened.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.RequestSubtitles(cmd.Context(), args[0], args[1:])
				if err != nil {
					return err
				}
				return printRequestResult(cmd, result, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSubtitlesRetryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "retry <content-id> <language>",
		Short: "Reopen one failed subtitle request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.RetrySubtitle(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printRequestResult(cmd, result, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printRequestResult(cmd *cobra.Command, result subtitles.RequestResult, asJSON bool) error {
	if asJSON {
		if err := writeJSON(cmd, api.FromRequestResult(result)); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(result.Requested)+len(result.Skipped)+len(result.Errors))
		for _, lang := range result.Requested {
			rows = append(rows, []string{lang, "requested", ""})
		}
		for _, lang := range result.Skipped {
			rows = append(rows, []string{lang, "skipped", "already active or completed"})
		}
		for _, e := range result.Errors {
			rows = append(rows, []string{e.Language, "error", e.Message})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Language", "Result", "Detail"}, rows, nil))
	}
	if !result.Success() {
		return fmt.Errorf("%d language(s) could not be requested", len(result.Errors))
	}
	return nil
}

func newSubtitlesStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <content-id>",
		Short: "Show subtitle requests for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				report, err := eng.SubtitleStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromStatusReport(report))
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Transcode", transcodeKind(report.TranscodeStatus), string(report.TranscodeStatus), colorize))
				rows := make([][]string, 0, len(report.Requests))
				for _, req := range report.Requests {
					status := string(req.Status)
					if colorize {
						if color := statusKindColor(subtitleKind(req.Status)); color != "" {
							status = color + status + ansiReset
						}
					}
					rows = append(rows, []string{
						req.Language,
						language.DisplayName(req.Language),
						status,
						strconv.Itoa(req.RetryCount),
						req.UpdatedAt.Local().Format("2006-01-02 15:04"),
						req.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Language", "Name", "Status", "Retries", "Updated", "Error"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSubtitlesReconcileCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check active subtitle requests for generated artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.RunSubtitleReconciliation(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d: %d completed, %d failed, %d still pending\n",
					result.Checked, result.Completed, result.Failed, result.StillPending)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSubtitlesCleanupCommand(ctx *commandContext) *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Recycle or fail subtitle requests stuck past the stale timeout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				result, err := eng.CleanupStaleSubtitles(cmd.Context(), timeout)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d, changed %d: %d recycled (%d republished), %d failed\n",
					result.Checked, result.Count(), result.Recycled, result.Republished, result.Failed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Age after which an active request is stale (default subtitles.stale_minutes)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
