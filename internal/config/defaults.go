package config

const (
	defaultDataDir           = "~/.local/share/mediarelay"
	defaultAssetDir          = "~/.local/share/mediarelay/assets"
	defaultObjectDir         = "~/.local/share/mediarelay/objects"
	defaultLogDir            = "~/.local/share/mediarelay/logs"
	defaultSpoolDir          = "~/.local/share/mediarelay/queue"
	defaultInputPrefix       = "input"
	defaultOutputPrefix      = "output"
	defaultSubtitlePrefix    = "subtitles"
	defaultSubtitleFormat    = "vtt"
	defaultTranscodePreset   = "default"
	defaultCallTimeout       = 30
	defaultQueueBatchSize    = 10
	defaultQueueMaxBatches   = 50
	defaultKVDriver          = "postgres"
	defaultKVTable           = "transcode_status"
	defaultPubSubTopic       = "subtitle-requests"
	defaultPubSubTimeout     = 10
	defaultNotifyTimeout     = 10
	defaultSubtitleTimeout   = 120
	defaultSubtitleStale     = 240
	defaultSubtitleRetries   = 3
	defaultSubtitleInterval  = 600
	defaultReconcileInterval = 300
	defaultRunTimeout        = 600
	defaultStalenessHours    = 7 * 24
	defaultSweepInterval     = 24
	defaultProbeBinary       = "ffprobe"
	defaultAPIBind           = "127.0.0.1:7610"
	defaultMaxUploadMiB      = 4096
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			AssetDir:  defaultAssetDir,
			ObjectDir: defaultObjectDir,
			LogDir:    defaultLogDir,
		},
		Hosting: Hosting{
			StatusChannel:   ChannelQueue,
			InputPrefix:     defaultInputPrefix,
			OutputPrefix:    defaultOutputPrefix,
			SubtitlePrefix:  defaultSubtitlePrefix,
			SubtitleFormat:  defaultSubtitleFormat,
			TranscodePreset: defaultTranscodePreset,
			CallTimeout:     defaultCallTimeout,
		},
		Queue: Queue{
			SpoolDir:   defaultSpoolDir,
			BatchSize:  defaultQueueBatchSize,
			MaxBatches: defaultQueueMaxBatches,
		},
		KV: KV{
			Driver: defaultKVDriver,
			Table:  defaultKVTable,
		},
		PubSub: PubSub{
			Topic:          defaultPubSubTopic,
			RequestTimeout: defaultPubSubTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Subtitles: Subtitles{
			TimeoutMinutes:  defaultSubtitleTimeout,
			StaleMinutes:    defaultSubtitleStale,
			MaxRetries:      defaultSubtitleRetries,
			IntervalSeconds: defaultSubtitleInterval,
		},
		Reconcile: Reconcile{
			IntervalSeconds:   defaultReconcileInterval,
			RunTimeoutSeconds: defaultRunTimeout,
		},
		Sweeper: Sweeper{
			StalenessHours: defaultStalenessHours,
			IntervalHours:  defaultSweepInterval,
		},
		Probe: Probe{
			Binary: defaultProbeBinary,
		},
		API: API{
			Bind:           defaultAPIBind,
			MaxUploadMiB:   defaultMaxUploadMiB,
			MetricsEnabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
