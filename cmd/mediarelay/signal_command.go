package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediarelay/internal/config"
	"mediarelay/internal/contentid"
	"mediarelay/internal/statuschannel"
)

// newSignalCommand writes a status entry into the configured channel the way
// the transcoder would. Operators use it to settle jobs by hand.
func newSignalCommand(ctx *commandContext) *cobra.Command {
	var (
		size    int64
		message string
	)
	cmd := &cobra.Command{
		Use:   "signal <content-id> <status>",
		Short: "Post a transcoder status to the configured status channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := contentid.Normalize(args[0])
			if !contentid.Valid(id) {
				return fmt.Errorf("invalid content id %q", args[0])
			}
			raw := strings.TrimSpace(args[1])
			if _, ok := statuschannel.Normalize(raw); !ok {
				return fmt.Errorf("unrecognized status %q", raw)
			}

			switch cfg.Hosting.StatusChannel {
			case config.ChannelQueue:
				spool, err := statuschannel.NewSpoolQueue(cfg.Queue.SpoolDir)
				if err != nil {
					return err
				}
				name, err := spool.Enqueue(statuschannel.StatusMessage{
					ContentID:       id,
					Status:          raw,
					OutputSizeBytes: size,
					Message:         message,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s (%s)\n", raw, shortID(id), name)
			case config.ChannelKV:
				kv, err := statuschannel.OpenSQLKV(cfg.KV.Driver, cfg.KV.DSN, cfg.KV.Table)
				if err != nil {
					return err
				}
				defer kv.Close()
				if strings.EqualFold(cfg.KV.Driver, "sqlite") {
					if err := kv.EnsureTable(cmd.Context()); err != nil {
						return err
					}
				}
				if err := kv.Put(cmd.Context(), statuschannel.Record{
					ContentID:       id,
					Status:          raw,
					OutputSizeBytes: size,
					Message:         message,
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s for %s in %s\n", raw, shortID(id), cfg.KV.Table)
			default:
				return fmt.Errorf("no status channel configured (hosting.status_channel = %q)", cfg.Hosting.StatusChannel)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&size, "size", 0, "Output size in bytes reported with the status")
	cmd.Flags().StringVar(&message, "message", "", "Error detail reported with the status")
	return cmd
}
