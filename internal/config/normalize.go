package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHosting()
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	c.normalizeKV()
	c.normalizePubSub()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeSubtitles()
	c.normalizeProbe()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	if c.Paths.ObjectDir, err = expandPath(c.Paths.ObjectDir); err != nil {
		return fmt.Errorf("paths.object_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHosting() {
	c.Hosting.StatusChannel = strings.ToLower(strings.TrimSpace(c.Hosting.StatusChannel))
	if c.Hosting.StatusChannel == "" {
		c.Hosting.StatusChannel = ChannelNone
	}
	c.Hosting.InputPrefix = trimPrefix(c.Hosting.InputPrefix, defaultInputPrefix)
	c.Hosting.OutputPrefix = trimPrefix(c.Hosting.OutputPrefix, defaultOutputPrefix)
	c.Hosting.SubtitlePrefix = trimPrefix(c.Hosting.SubtitlePrefix, defaultSubtitlePrefix)
	c.Hosting.SubtitleFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Hosting.SubtitleFormat)), ".")
	if c.Hosting.SubtitleFormat == "" {
		c.Hosting.SubtitleFormat = defaultSubtitleFormat
	}
	c.Hosting.TranscodePreset = strings.TrimSpace(c.Hosting.TranscodePreset)
	if c.Hosting.TranscodePreset == "" {
		c.Hosting.TranscodePreset = defaultTranscodePreset
	}
	c.Hosting.InvalidateURL = strings.TrimSpace(c.Hosting.InvalidateURL)
}

func (c *Config) normalizeQueue() error {
	if strings.TrimSpace(c.Queue.SpoolDir) == "" {
		c.Queue.SpoolDir = defaultSpoolDir
	}
	var err error
	if c.Queue.SpoolDir, err = expandPath(c.Queue.SpoolDir); err != nil {
		return fmt.Errorf("queue.spool_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeKV() {
	c.KV.Driver = strings.ToLower(strings.TrimSpace(c.KV.Driver))
	if c.KV.Driver == "" {
		c.KV.Driver = defaultKVDriver
	}
	c.KV.DSN = strings.TrimSpace(c.KV.DSN)
	if c.KV.DSN == "" {
		if value, ok := os.LookupEnv("MEDIARELAY_KV_DSN"); ok {
			c.KV.DSN = strings.TrimSpace(value)
		}
	}
	c.KV.Table = strings.TrimSpace(c.KV.Table)
	if c.KV.Table == "" {
		c.KV.Table = defaultKVTable
	}
}

func (c *Config) normalizePubSub() {
	c.PubSub.Endpoint = strings.TrimRight(strings.TrimSpace(c.PubSub.Endpoint), "/")
	c.PubSub.Topic = strings.TrimSpace(c.PubSub.Topic)
	if c.PubSub.Topic == "" {
		c.PubSub.Topic = defaultPubSubTopic
	}
	c.PubSub.Token = strings.TrimSpace(c.PubSub.Token)
	if c.PubSub.Token == "" {
		if value, ok := os.LookupEnv("MEDIARELAY_PUBSUB_TOKEN"); ok {
			c.PubSub.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeSubtitles() {
	langs := make([]string, 0, len(c.Subtitles.AutoLanguages))
	seen := make(map[string]struct{}, len(c.Subtitles.AutoLanguages))
	for _, lang := range c.Subtitles.AutoLanguages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		langs = append(langs, lang)
	}
	c.Subtitles.AutoLanguages = langs
}

func (c *Config) normalizeProbe() {
	c.Probe.Binary = strings.TrimSpace(c.Probe.Binary)
	if c.Probe.Binary == "" {
		c.Probe.Binary = defaultProbeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimPrefix(value, fallback string) string {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}
