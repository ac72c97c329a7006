package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediarelay/internal/api"
	"mediarelay/internal/engine"
	"mediarelay/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect conversion jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlags []string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobstore.TranscodeStatus, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := jobstore.ParseTranscodeStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withEngine(func(eng *engine.Engine) error {
				jobs, err := eng.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					payload := make([]api.ConversionJob, 0, len(jobs))
					for _, job := range jobs {
						payload = append(payload, api.FromJob(job))
					}
					return writeJSON(cmd, payload)
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						shortID(job.ContentID),
						job.SourceName,
						string(job.UploadStatus),
						string(job.TranscodeStatus),
						strconv.FormatInt(job.OutputSizeBytes, 10),
						strings.Join(job.SubtitleLanguages, ","),
						job.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				headers := []string{"Content ID", "Source", "Upload", "Transcode", "Output Bytes", "Subtitles", "Updated"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by transcode status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
