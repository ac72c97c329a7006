package testsupport

import (
	"path/filepath"
	"testing"

	"mediarelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
	cfgVal.Paths.ObjectDir = filepath.Join(base, "objects")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Queue.SpoolDir = filepath.Join(base, "spool")
	cfgVal.Hosting.CallTimeout = 2
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStatusChannel selects the authoritative status channel.
func WithStatusChannel(channel string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hosting.StatusChannel = channel
	}
}

// WithKV configures the key-value channel against a SQLite file under the
// test directory.
func WithKV() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hosting.StatusChannel = config.ChannelKV
		b.cfg.KV.Driver = "sqlite"
		b.cfg.KV.DSN = filepath.Join(b.baseDir, "kv.db")
	}
}

// WithPubSubEndpoint points the subtitle trigger publisher at endpoint.
func WithPubSubEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.PubSub.Endpoint = endpoint
	}
}

// WithAutoLanguages sets the languages requested after a job finishes.
func WithAutoLanguages(langs ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Subtitles.AutoLanguages = langs
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
