package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediarelay/internal/api"
	"mediarelay/internal/engine"
	"mediarelay/internal/jobstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON     bool
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "status <content-id>",
		Short: "Show one conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine) error {
				job, err := eng.JobStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var events []jobstore.ChannelEvent
				if showEvents {
					if events, err = eng.ChannelEvents(cmd.Context(), job.ContentID); err != nil {
						return err
					}
				}
				if asJSON {
					if showEvents {
						return writeJSON(cmd, struct {
							Job    api.ConversionJob       `json:"job"`
							Events []jobstore.ChannelEvent `json:"events"`
						}{api.FromJob(job), events})
					}
					return writeJSON(cmd, api.FromJob(job))
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderJob(job, colorize) {
					fmt.Fprintln(out, line)
				}
				if showEvents {
					fmt.Fprintln(out, renderEvents(events))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Include the status channel log for the job")
	return cmd
}

func renderEvents(events []jobstore.ChannelEvent) string {
	if len(events) == 0 {
		return "No status channel events"
	}
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			event.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			event.Status,
			yesNo(event.Matched),
			yesNo(event.Applied),
		})
	}
	return renderTable([]string{"Received", "Status", "Matched", "Applied"}, rows, nil)
}

func renderJob(job *jobstore.Job, colorize bool) []string {
	lines := renderSectionHeader(job.SourceName, colorize)
	lines = append(lines,
		renderStatusLine("Content ID", statusInfo, job.ContentID, false),
		renderStatusLine("Upload", statusInfo, string(job.UploadStatus), false),
		renderStatusLine("Transcode", transcodeKind(job.TranscodeStatus), string(job.TranscodeStatus), colorize),
	)
	if job.OutputSizeBytes > 0 {
		lines = append(lines, renderStatusLine("Output size", statusInfo, fmt.Sprintf("%d bytes", job.OutputSizeBytes), false))
	}
	if job.DurationSeconds > 0 {
		lines = append(lines, renderStatusLine("Duration", statusInfo, fmt.Sprintf("%.1fs %dx%d", job.DurationSeconds, job.Width, job.Height), false))
	}
	lines = append(lines, renderStatusLine("Input purged", statusInfo, yesNo(job.InputPurged), false))
	if len(job.SubtitleLanguages) > 0 {
		lines = append(lines, renderStatusLine("Subtitles", statusOK, strings.Join(job.SubtitleLanguages, ", "), colorize))
	}
	if job.ErrorMessage != "" {
		lines = append(lines, renderStatusLine("Error", statusError, job.ErrorMessage, colorize))
	}
	return lines
}
