package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"lectern/internal/config"
	"lectern/internal/embedding"
	"lectern/internal/logging"
	"lectern/internal/media/ffprobe"
	"lectern/internal/pipeline"
	"lectern/internal/retrieval"
	"lectern/internal/services"
	"lectern/internal/services/ffmpeg"
	"lectern/internal/services/openai"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.verboseFlag != nil && *c.verboseFlag {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func requireKey(name, key string) error {
	if strings.TrimSpace(key) == "" {
		return services.Wrap(services.ErrConfiguration, "cli", "build client",
			fmt.Sprintf("%s is not set (configure it or export OPENAI_API_KEY)", name), nil)
	}
	return nil
}

func embeddingClient(cfg *config.Config) (*openai.Client, error) {
	if err := requireKey("embedding.api_key", cfg.Embedding.APIKey); err != nil {
		return nil, err
	}
	return openai.NewClient(openai.Config{
		Family:         openai.FamilyEmbedding,
		APIKey:         cfg.Embedding.APIKey,
		BaseURL:        cfg.Embedding.BaseURL,
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		TimeoutSeconds: cfg.Embedding.TimeoutSeconds,
	}), nil
}

func transcriptionClient(cfg *config.Config) (*openai.Client, error) {
	if err := requireKey("transcription.api_key", cfg.Transcription.APIKey); err != nil {
		return nil, err
	}
	return openai.NewClient(openai.Config{
		Family:         openai.FamilyTranscription,
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}), nil
}

// newRunner wires the pipeline with the production adapters. needTranscription
// and needEmbedding control which API keys are required.
func (c *commandContext) newRunner(cmd *cobra.Command, needTranscription, needEmbedding bool) (*pipeline.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Media:  ffmpeg.New(cfg.FFmpegBinary(), ffmpeg.WithJPEGQuality(cfg.Frames.JPEGQuality)),
		Prober: ffprobe.NewProber(cfg.FFprobeBinary()),
	}
	if needTranscription {
		client, err := transcriptionClient(cfg)
		if err != nil {
			return nil, err
		}
		deps.Transcriber = client
	}
	if needEmbedding {
		client, err := embeddingClient(cfg)
		if err != nil {
			return nil, err
		}
		deps.Embedder = client
	}
	return pipeline.New(cfg, deps, logger, progressObserver(cmd.ErrOrStderr())), nil
}

func (c *commandContext) newEngine() (*retrieval.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	client, err := embeddingClient(cfg)
	if err != nil {
		return nil, err
	}
	encoder := embedding.NewEncoder(client, embedding.Options{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.BatchConcurrency,
	}, logger)
	return retrieval.New(encoder, retrieval.Options{
		RAGDir:         cfg.Paths.RAGDir,
		ScreenshotsDir: cfg.Paths.ScreenshotsDir,
	}, logger), nil
}

// progressObserver prints one line per stage change.
func progressObserver(w io.Writer) pipeline.Observer {
	var last string
	return func(s pipeline.JobState) {
		key := string(s.Stage) + "|" + s.MediaID + "|" + s.Message
		if key == last {
			return
		}
		last = key
		switch {
		case s.Stage == pipeline.StageFailed:
			// The command returns the error itself.
		case s.Progress > 0:
			fmt.Fprintf(w, "[%s %3.0f%%] %s\n", s.Stage, s.Progress, s.Message)
		default:
			fmt.Fprintf(w, "[%s] %s\n", s.Stage, s.Message)
		}
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
