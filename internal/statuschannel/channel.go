package statuschannel

import (
	"context"
	"fmt"
	"log/slog"

	"mediarelay/internal/config"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/services"
)

// Signal is one status observation for a content identifier.
type Signal struct {
	ContentID string
	// Status is empty when Raw could not be normalized.
	Status          jobstore.TranscodeStatus
	Raw             string
	OutputSizeBytes int64
	Message         string
	// Absent is set when the source has no entry for ContentID yet.
	Absent bool
	// Err carries a per-item lookup failure; the item should be retried next run.
	Err error
}

// Visit receives signals during Collect.
type Visit func(ctx context.Context, sig Signal)

// CollectStats summarizes channel-level work performed by Collect.
type CollectStats struct {
	Received    int
	AckFailures int
}

// Channel is the authoritative status source for a deployment.
type Channel interface {
	Name() string
	// Collect delivers available signals to visit. Queue channels ignore
	// pending and drain their backlog; lookup channels query each pending job.
	Collect(ctx context.Context, pending []*jobstore.Job, visit Visit) (CollectStats, error)
	// LogsEvents reports whether drained signals should be written to the
	// channel event log used by the staleness sweeper.
	LogsEvents() bool
	Close() error
}

// New builds the channel selected by hosting.status_channel. It returns a nil
// channel when the deployment has none configured.
func New(cfg *config.Config, logger *slog.Logger) (Channel, error) {
	logger = logging.NewComponentLogger(logger, "statuschannel")
	switch cfg.Hosting.StatusChannel {
	case config.ChannelQueue:
		spool, err := NewSpoolQueue(cfg.Queue.SpoolDir)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "statuschannel", "open queue", cfg.Queue.SpoolDir, err)
		}
		return NewQueueChannel(spool, QueueOptions{
			BatchSize:   cfg.Queue.BatchSize,
			MaxBatches:  cfg.Queue.MaxBatches,
			CallTimeout: cfg.CallTimeout(),
		}, logger), nil
	case config.ChannelKV:
		kv, err := OpenSQLKV(cfg.KV.Driver, cfg.KV.DSN, cfg.KV.Table)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "statuschannel", "open kv", cfg.KV.Driver, err)
		}
		return NewKVChannel(kv, cfg.CallTimeout(), logger), nil
	case config.ChannelNone, "":
		return nil, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "statuschannel", "select", fmt.Sprintf("unsupported status channel %q", cfg.Hosting.StatusChannel), nil)
	}
}
