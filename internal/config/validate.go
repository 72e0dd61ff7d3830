package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. API keys are not required here;
// commands that call the remote APIs check for them when the client is built.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.MaxUploadMB <= 0 {
		return errors.New("transcription.max_upload_mb must be positive")
	}
	if c.Transcription.ClipSeconds <= 0 {
		return errors.New("transcription.clip_seconds must be positive")
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if c.Embedding.TimeoutSeconds <= 0 {
		return errors.New("embedding.timeout_seconds must be positive")
	}
	if c.Embedding.Dimensions < 0 {
		return errors.New("embedding.dimensions must not be negative")
	}
	return nil
}

func (c *Config) validateFrames() error {
	if c.Frames.JPEGQuality < 1 || c.Frames.JPEGQuality > 31 {
		return fmt.Errorf("frames.jpeg_quality must be between 1 and 31, got %d", c.Frames.JPEGQuality)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
