package config

const (
	defaultStagingDir               = "~/.local/share/captioner/staging"
	defaultStateDir                 = "~/.local/share/captioner/state"
	defaultLogDir                   = "~/.local/share/captioner/logs"
	defaultFFmpegBinary             = "ffmpeg"
	defaultDownloadTimeoutSeconds   = 60
	defaultMaxDownloadMB            = 2048
	defaultSidecarURL               = "http://127.0.0.1:8390"
	defaultDevice                   = "cuda"
	defaultPrecision                = "float16"
	defaultFallbackPrecision        = "int8"
	defaultCPUPrecision             = "float32"
	defaultTranscriptionModel       = "large-v3"
	defaultDiarizationModel         = "pyannote/speaker-diarization-3.1"
	defaultEngineTimeoutSeconds     = 1800
	defaultLanguage                 = "auto"
	defaultMaxCPS                   = 20
	defaultDurationToleranceSeconds = 2.0
	defaultDeliveryTimeoutSeconds   = 30
	defaultDeliveryAttempts         = 1
	defaultInitialBackoffMS         = 500
	defaultMaxBackoffMS             = 30000
	defaultUserAgent                = "captioner/0.1.0"
	defaultStaleAfterHours          = 24
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Media: Media{
			FFmpegBinary:           defaultFFmpegBinary,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			MaxDownloadMB:          defaultMaxDownloadMB,
		},
		Engines: Engines{
			SidecarURL:            defaultSidecarURL,
			Device:                defaultDevice,
			Precision:             defaultPrecision,
			FallbackPrecision:     defaultFallbackPrecision,
			TranscriptionModel:    defaultTranscriptionModel,
			DiarizationModel:      defaultDiarizationModel,
			AlignmentEnabled:      true,
			DiarizationEnabled:    true,
			RequestTimeoutSeconds: defaultEngineTimeoutSeconds,
		},
		Transcription: Transcription{
			DefaultLanguage: defaultLanguage,
		},
		Health: Health{
			MaxCPS:                   defaultMaxCPS,
			DurationToleranceSeconds: defaultDurationToleranceSeconds,
		},
		Delivery: Delivery{
			RequestTimeoutSeconds: defaultDeliveryTimeoutSeconds,
			MaxAttempts:           defaultDeliveryAttempts,
			InitialBackoffMS:      defaultInitialBackoffMS,
			MaxBackoffMS:          defaultMaxBackoffMS,
			UserAgent:             defaultUserAgent,
		},
		Staging: Staging{
			StaleAfterHours: defaultStaleAfterHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
