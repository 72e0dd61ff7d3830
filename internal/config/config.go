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

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	InputDir       string `toml:"input_dir"`
	OutputDir      string `toml:"output_dir"`
	ScreenshotsDir string `toml:"screenshots_dir"`
	RAGDir         string `toml:"rag_dir"`
	WorkDir        string `toml:"work_dir"`
	LogDir         string `toml:"log_dir"`
}

// Transcription contains settings for the speech-to-text API and clip splitting.
type Transcription struct {
	APIKey                  string `toml:"api_key"`
	BaseURL                 string `toml:"base_url"`
	Model                   string `toml:"model"`
	MaxUploadMB             int    `toml:"max_upload_mb"`
	ClipSeconds             int    `toml:"clip_seconds"`
	FallbackDurationSeconds int    `toml:"fallback_duration_seconds"`
	TimeoutSeconds          int    `toml:"timeout_seconds"`
	ClipConcurrency         int    `toml:"clip_concurrency"`
}

// Embedding contains settings for the text embedding API.
type Embedding struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	Dimensions       int    `toml:"dimensions"`
	BatchSize        int    `toml:"batch_size"`
	BatchConcurrency int    `toml:"batch_concurrency"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Frames contains settings for frame capture.
type Frames struct {
	StrictTimecodes bool `toml:"strict_timecodes"`
	JPEGQuality     int  `toml:"jpeg_quality"`
}

// Retrieval contains query defaults.
type Retrieval struct {
	TopK int `toml:"top_k"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lectern.
//
// Configuration sections by subsystem:
//   - Paths: input media, output artifacts, screenshots, RAG generations, scratch, logs
//   - Transcription: speech-to-text API and clip splitting
//   - Embedding: embedding API and batching
//   - Frames: frame capture behaviour
//   - Retrieval: query defaults
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Embedding     Embedding     `toml:"embedding"`
	Frames        Frames        `toml:"frames"`
	Retrieval     Retrieval     `toml:"retrieval"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lectern/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
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
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lectern.toml")
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

// EnsureDirectories creates the directories the pipeline writes into.
// The input directory is created too so a fresh install has somewhere to drop media.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.ScreenshotsDir, c.Paths.RAGDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// TimeIndexPath returns the location of the time-indexed transcript table.
func (c *Config) TimeIndexPath() string {
	return filepath.Join(c.Paths.OutputDir, "transcripts.csv")
}

// LockPath returns the location of the single-job lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.OutputDir, "lectern.lock")
}

// MaxUploadBytes converts the configured upload limit to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Transcription.MaxUploadMB) * 1024 * 1024
}

// TranscriptionTimeout returns the per-request transcription timeout.
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
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
