package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediarelay/internal/api"
	"mediarelay/internal/config"
	"mediarelay/internal/engine"
	"mediarelay/internal/services"
	"mediarelay/internal/submission"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		release   bool
		retries   int
		contentID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "submit <file>...",
		Short: "Upload local assets for conversion",
		Long: `Upload one or more local media files to the object store input area.

Each file is identified by the SHA-256 of its bytes. Files already uploaded,
in progress, or finished are reported as already_submitted and not uploaded
again. Failed jobs are reset and uploaded afresh.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentID != "" && len(args) > 1 {
				return errors.New("--content-id applies to a single file")
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				var (
					results []submission.Result
					failed  int
				)
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return err
					}
					asset := submission.Asset{Path: path, ContentID: contentID, ReleaseLocal: release}
					result, err := submitWithRetry(cmd.Context(), eng, asset, retries)
					if err != nil {
						return fmt.Errorf("%s: %w", arg, err)
					}
					if result.Outcome == submission.OutcomeError {
						failed++
					}
					results = append(results, result)
				}

				if asJSON {
					payload := make([]api.SubmissionResponse, 0, len(results))
					for _, r := range results {
						payload = append(payload, api.FromSubmission(r))
					}
					if err := writeJSON(cmd, payload); err != nil {
						return err
					}
				} else {
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						rows = append(rows, submissionRow(r))
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Content ID", "Source", "Outcome", "Detail"}, rows, nil))
				}
				if failed > 0 {
					return fmt.Errorf("%d submission(s) failed; rerun submit to retry", failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "Delete the local file after a confirmed upload")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry transient upload failures this many times")
	cmd.Flags().StringVar(&contentID, "content-id", "", "Expected content id; the submit fails if the file hashes differently")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// submitWithRetry resubmits while the outcome is a transient error. Submit is
// idempotent per content id, so a retry after a partial upload is safe.
func submitWithRetry(ctx context.Context, eng *engine.Engine, asset submission.Asset, retries int) (submission.Result, error) {
	for attempt := 0; ; attempt++ {
		result, err := eng.SubmitConversion(ctx, asset)
		if err != nil || result.Outcome != submission.OutcomeError {
			return result, err
		}
		if attempt >= retries || !services.IsTransient(result.Err) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
}

func submissionRow(r submission.Result) []string {
	source := ""
	detail := ""
	if r.Job != nil {
		source = r.Job.SourceName
		detail = string(r.Job.TranscodeStatus)
	}
	if r.Err != nil {
		detail = r.Err.Error()
	}
	return []string{shortID(r.ContentID), source, string(r.Outcome), detail}
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
