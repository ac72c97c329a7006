package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHosting(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		return errors.New("paths.asset_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ObjectDir) == "" {
		return errors.New("paths.object_dir must be set")
	}
	return nil
}

func (c *Config) validateHosting() error {
	switch c.Hosting.StatusChannel {
	case ChannelQueue:
		if c.Queue.BatchSize <= 0 {
			return errors.New("queue.batch_size must be positive")
		}
		if c.Queue.MaxBatches <= 0 {
			return errors.New("queue.max_batches must be positive")
		}
	case ChannelKV:
		switch c.KV.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("kv.driver: unsupported value %q (expected postgres or sqlite)", c.KV.Driver)
		}
		if c.KV.DSN == "" {
			return errors.New("kv.dsn must be set when hosting.status_channel is kv (or export MEDIARELAY_KV_DSN)")
		}
		if !validIdentifier(c.KV.Table) {
			return fmt.Errorf("kv.table: invalid table name %q", c.KV.Table)
		}
	case ChannelNone:
	default:
		return fmt.Errorf("hosting.status_channel: unsupported value %q (expected queue, kv, or none)", c.Hosting.StatusChannel)
	}
	if c.Hosting.InputPrefix == c.Hosting.OutputPrefix {
		return errors.New("hosting.input_prefix and hosting.output_prefix must differ")
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"hosting.call_timeout":          c.Hosting.CallTimeout,
		"pubsub.request_timeout":        c.PubSub.RequestTimeout,
		"reconcile.interval_seconds":    c.Reconcile.IntervalSeconds,
		"reconcile.run_timeout_seconds": c.Reconcile.RunTimeoutSeconds,
		"sweeper.staleness_hours":       c.Sweeper.StalenessHours,
		"sweeper.interval_hours":        c.Sweeper.IntervalHours,
		"subtitles.interval_seconds":    c.Subtitles.IntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.API.MaxUploadMiB <= 0 {
		return errors.New("api.max_upload_mib must be positive")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if c.Subtitles.TimeoutMinutes <= 0 {
		return errors.New("subtitles.timeout_minutes must be positive")
	}
	if c.Subtitles.StaleMinutes <= 0 {
		return errors.New("subtitles.stale_minutes must be positive")
	}
	// Cleanup resets requested_at; a shorter stale window would recycle every
	// request before reconciliation could time it out.
	if c.Subtitles.StaleMinutes < c.Subtitles.TimeoutMinutes {
		return fmt.Errorf("subtitles.stale_minutes (%d) must be >= subtitles.timeout_minutes (%d)",
			c.Subtitles.StaleMinutes, c.Subtitles.TimeoutMinutes)
	}
	if c.Subtitles.MaxRetries < 0 {
		return errors.New("subtitles.max_retries must be >= 0")
	}
	if len(c.Subtitles.AutoLanguages) > 0 && c.PubSub.Endpoint == "" {
		return errors.New("subtitles.auto_languages requires pubsub.endpoint")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
