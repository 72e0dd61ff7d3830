package config

const (
	defaultInputDir                = "~/.local/share/lectern/input"
	defaultOutputDir               = "~/.local/share/lectern/output"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultTranscriptionBaseURL    = "https://api.openai.com/v1"
	defaultTranscriptionModel      = "gpt-4o-transcribe-diarize"
	defaultMaxUploadMB             = 25
	defaultClipSeconds             = 600
	defaultFallbackDurationSeconds = 3600
	defaultTranscriptionTimeout    = 600
	defaultClipConcurrency         = 1
	defaultEmbeddingBaseURL        = "https://api.openai.com/v1"
	defaultEmbeddingModel          = "text-embedding-3-small"
	defaultEmbeddingBatchSize      = 32
	defaultEmbeddingConcurrency    = 1
	defaultEmbeddingTimeout        = 120
	defaultJPEGQuality             = 2
	defaultTopK                    = 5
)

// Default returns a Config populated with repository defaults. Derived directories
// (screenshots, rag, work, logs) are left empty and filled from OutputDir during
// normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
		},
		Transcription: Transcription{
			BaseURL:                 defaultTranscriptionBaseURL,
			Model:                   defaultTranscriptionModel,
			MaxUploadMB:             defaultMaxUploadMB,
			ClipSeconds:             defaultClipSeconds,
			FallbackDurationSeconds: defaultFallbackDurationSeconds,
			TimeoutSeconds:          defaultTranscriptionTimeout,
			ClipConcurrency:         defaultClipConcurrency,
		},
		Embedding: Embedding{
			BaseURL:          defaultEmbeddingBaseURL,
			Model:            defaultEmbeddingModel,
			BatchSize:        defaultEmbeddingBatchSize,
			BatchConcurrency: defaultEmbeddingConcurrency,
			TimeoutSeconds:   defaultEmbeddingTimeout,
		},
		Frames: Frames{
			JPEGQuality: defaultJPEGQuality,
		},
		Retrieval: Retrieval{
			TopK: defaultTopK,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
