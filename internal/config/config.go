package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Status channel modes selectable under [hosting].
const (
	ChannelQueue = "queue"
	ChannelKV    = "kv"
	ChannelNone  = "none"
)

// Paths contains local directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	AssetDir  string `toml:"asset_dir"`
	ObjectDir string `toml:"object_dir"`
	LogDir    string `toml:"log_dir"`
}

// Hosting selects the authoritative status channel and the object layout
// shared with the external transcoder.
type Hosting struct {
	StatusChannel   string `toml:"status_channel"`
	InputPrefix     string `toml:"input_prefix"`
	OutputPrefix    string `toml:"output_prefix"`
	SubtitlePrefix  string `toml:"subtitle_prefix"`
	SubtitleFormat  string `toml:"subtitle_format"`
	TranscodePreset string `toml:"transcode_preset"`
	InvalidateURL   string `toml:"invalidate_url"`
	CallTimeout     int    `toml:"call_timeout"`
}

// Queue configures the spool-directory message queue channel.
type Queue struct {
	SpoolDir   string `toml:"spool_dir"`
	BatchSize  int    `toml:"batch_size"`
	MaxBatches int    `toml:"max_batches"`
}

// KV configures the key-value status table channel.
type KV struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	Table  string `toml:"table"`
}

// PubSub configures the subtitle-generation trigger endpoint.
type PubSub struct {
	Endpoint       string `toml:"endpoint"`
	Topic          string `toml:"topic"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifications configures operator alerts delivered through ntfy.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Subtitles contains subtitle orchestration settings.
type Subtitles struct {
	TimeoutMinutes  int      `toml:"timeout_minutes"`
	StaleMinutes    int      `toml:"stale_minutes"`
	MaxRetries      int      `toml:"max_retries"`
	AutoLanguages   []string `toml:"auto_languages"`
	IntervalSeconds int      `toml:"interval_seconds"`
}

// Reconcile contains status reconciliation settings.
type Reconcile struct {
	IntervalSeconds   int `toml:"interval_seconds"`
	RunTimeoutSeconds int `toml:"run_timeout_seconds"`
}

// Sweeper contains staleness sweep settings.
type Sweeper struct {
	StalenessHours int `toml:"staleness_hours"`
	IntervalHours  int `toml:"interval_hours"`
}

// Probe configures metadata probing of newly submitted assets.
type Probe struct {
	Enabled bool   `toml:"enabled"`
	Binary  string `toml:"binary"`
}

// API contains HTTP server configuration.
type API struct {
	Bind           string `toml:"bind"`
	MaxUploadMiB   int    `toml:"max_upload_mib"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediarelay.
//
// Configuration sections by subsystem:
//   - Paths: database, local asset, object store, and log directories
//   - Hosting: status channel selection and object key layout
//   - Queue / KV: settings for the two status channel implementations
//   - PubSub: subtitle trigger endpoint
//   - Notifications: optional ntfy operator alerts
//   - Subtitles: subtitle timeouts and retry budget
//   - Reconcile / Sweeper: scheduler cadence and staleness window
//   - Probe: metadata probing of new assets
//   - API: HTTP bind address
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Hosting       Hosting       `toml:"hosting"`
	Queue         Queue         `toml:"queue"`
	KV            KV            `toml:"kv"`
	PubSub        PubSub        `toml:"pubsub"`
	Notifications Notifications `toml:"notifications"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Sweeper       Sweeper       `toml:"sweeper"`
	Probe         Probe         `toml:"probe"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediarelay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediarelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.AssetDir, c.Paths.ObjectDir, c.Paths.LogDir}
	if c.Hosting.StatusChannel == ChannelQueue {
		dirs = append(dirs, c.Queue.SpoolDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the job store database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "mediarelay.db")
}

// LockPath returns the scheduler single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "scheduler.lock")
}

// CallTimeout bounds every individual call to an external collaborator.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Hosting.CallTimeout) * time.Second
}

// StalenessWindow is how long a job may stay in progress before the sweeper
// forces a terminal decision.
func (c *Config) StalenessWindow() time.Duration {
	return time.Duration(c.Sweeper.StalenessHours) * time.Hour
}

// SubtitleTimeout is the artifact-existence timeout used by subtitle reconciliation.
func (c *Config) SubtitleTimeout() time.Duration {
	return time.Duration(c.Subtitles.TimeoutMinutes) * time.Minute
}

// SubtitleStaleAfter is the elapsed-time threshold used by the stale subtitle cleanup.
func (c *Config) SubtitleStaleAfter() time.Duration {
	return time.Duration(c.Subtitles.StaleMinutes) * time.Minute
}

// RunTimeout bounds a single scheduled run.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Reconcile.RunTimeoutSeconds) * time.Second
}

// ChannelConfigured reports whether a status channel is selected.
func (c *Config) ChannelConfigured() bool {
	return c.Hosting.StatusChannel == ChannelQueue || c.Hosting.StatusChannel == ChannelKV
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
