package config

const (
	defaultStateDir          = "~/.local/share/easel/state"
	defaultStagingDir        = "~/.local/share/easel/staging"
	defaultLibraryDir        = "~/Pictures/easel"
	defaultLogDir            = "~/.local/share/easel/logs"
	defaultCacheDir          = "~/.cache/easel"
	defaultProvidersDir      = "~/.config/easel/providers.d"
	defaultEngineTimeout     = 1800
	defaultRemoteTimeout     = 60
	defaultPollInterval      = 1
	defaultPollDeadline      = 300
	defaultLocalConcurrency  = 1
	defaultRemoteConcurrency = 1
	defaultRefCacheMaxPixels = 1048576
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultFFprobeBinary     = "ffprobe"
	defaultFFmpegBinary      = "ffmpeg"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			StagingDir:   defaultStagingDir,
			LibraryDir:   defaultLibraryDir,
			LogDir:       defaultLogDir,
			CacheDir:     defaultCacheDir,
			ProvidersDir: defaultProvidersDir,
		},
		Engine: Engine{
			TimeoutSeconds: defaultEngineTimeout,
		},
		Remote: Remote{
			RequestTimeout:      defaultRemoteTimeout,
			PollIntervalSeconds: defaultPollInterval,
			PollDeadlineSeconds: defaultPollDeadline,
		},
		Queue: Queue{
			LocalConcurrency:  defaultLocalConcurrency,
			RemoteConcurrency: defaultRemoteConcurrency,
		},
		RefCache: RefCache{
			MaxPixels: defaultRefCacheMaxPixels,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Tools: Tools{
			FFprobe: defaultFFprobeBinary,
			FFmpeg:  defaultFFmpegBinary,
		},
	}
}
