package config

const (
	defaultDataDir   = "~/.local/share/cliply"
	defaultMediaDir  = "~/.local/share/cliply/media"
	defaultOutputDir = "~/.local/share/cliply/processed"
	defaultClipsDir  = "~/.local/share/cliply/clips"
	defaultTempDir   = "~/.local/share/cliply/temp"
	defaultLogDir    = "~/.local/share/cliply/logs"

	defaultBatchSize          = 5
	defaultQueuePollInterval  = 30
	defaultRateLimitDelay     = 2
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultTranscriptionBaseURL = "https://api.openai.com/v1"
	defaultTranscriptionModel   = "whisper-1"
	defaultTranscriptionTimeout = 300

	defaultCaptionerBaseURL      = "http://localhost:8000/api"
	defaultCaptionerPollInterval = 2
	defaultCaptionerPollAttempts = 30
	defaultCaptionerTimeout      = 60

	defaultLLMBaseURL      = "https://api.deepseek.com/v1/chat/completions"
	defaultLLMModel        = "deepseek-chat"
	defaultLLMTimeout      = 120
	defaultMinHighlightSec = 15
	defaultMaxHighlightSec = 30

	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultMediaToolTimeout = 600

	defaultPublicBaseURL = ""

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			MediaDir:  defaultMediaDir,
			OutputDir: defaultOutputDir,
			ClipsDir:  defaultClipsDir,
			TempDir:   defaultTempDir,
			LogDir:    defaultLogDir,
		},
		Workflow: Workflow{
			BatchSize:          defaultBatchSize,
			QueuePollInterval:  defaultQueuePollInterval,
			RateLimitDelay:     defaultRateLimitDelay,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Captioner: Captioner{
			BaseURL:             defaultCaptionerBaseURL,
			PollIntervalSeconds: defaultCaptionerPollInterval,
			PollMaxAttempts:     defaultCaptionerPollAttempts,
			TimeoutSeconds:      defaultCaptionerTimeout,
		},
		LLM: LLM{
			BaseURL:             defaultLLMBaseURL,
			Model:               defaultLLMModel,
			TimeoutSeconds:      defaultLLMTimeout,
			MinHighlightSeconds: defaultMinHighlightSec,
			MaxHighlightSeconds: defaultMaxHighlightSec,
		},
		MediaTool: MediaTool{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultMediaToolTimeout,
		},
		Storage: Storage{
			PublicBaseURL: defaultPublicBaseURL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
