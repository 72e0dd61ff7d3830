package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnvKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "lectern", "output")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Paths.ScreenshotsDir != filepath.Join(wantOutput, "screenshots") {
		t.Fatalf("unexpected screenshots dir: %q", cfg.Paths.ScreenshotsDir)
	}
	if cfg.Paths.RAGDir != filepath.Join(wantOutput, "rag") {
		t.Fatalf("unexpected rag dir: %q", cfg.Paths.RAGDir)
	}
	if cfg.Transcription.APIKey != "env-key" {
		t.Fatalf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Embedding.APIKey != "env-key" {
		t.Fatalf("expected embedding key from env, got %q", cfg.Embedding.APIKey)
	}
	if cfg.Transcription.ClipSeconds != 600 {
		t.Fatalf("expected default clip seconds 600, got %d", cfg.Transcription.ClipSeconds)
	}
	if cfg.MaxUploadBytes() != 25*1024*1024 {
		t.Fatalf("unexpected max upload bytes: %d", cfg.MaxUploadBytes())
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Fatalf("expected default batch size 32, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Fatalf("expected default top_k 5, got %d", cfg.Retrieval.TopK)
	}
	if cfg.TimeIndexPath() != filepath.Join(wantOutput, "transcripts.csv") {
		t.Fatalf("unexpected time index path: %q", cfg.TimeIndexPath())
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "lectern.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"input_dir":       "~/media",
			"output_dir":      "~/out",
			"screenshots_dir": "~/shots",
		},
		"transcription": map[string]any{
			"api_key":      "file-key",
			"clip_seconds": 300,
		},
		"embedding": map[string]any{
			"batch_size": 8,
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q to exist, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.InputDir != filepath.Join(tempHome, "media") {
		t.Fatalf("unexpected input dir: %q", cfg.Paths.InputDir)
	}
	if cfg.Paths.ScreenshotsDir != filepath.Join(tempHome, "shots") {
		t.Fatalf("unexpected screenshots dir: %q", cfg.Paths.ScreenshotsDir)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "out", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Transcription.ClipSeconds != 300 {
		t.Fatalf("expected clip seconds 300, got %d", cfg.Transcription.ClipSeconds)
	}
	if cfg.Embedding.APIKey != "file-key" {
		t.Fatalf("expected embedding key to fall back to transcription key, got %q", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.BatchSize != 8 {
		t.Fatalf("expected batch size 8, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercased log format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"clip seconds", func(c *config.Config) { c.Transcription.ClipSeconds = 0 }, "transcription.clip_seconds"},
		{"upload limit", func(c *config.Config) { c.Transcription.MaxUploadMB = -1 }, "transcription.max_upload_mb"},
		{"jpeg quality", func(c *config.Config) { c.Frames.JPEGQuality = 40 }, "frames.jpeg_quality"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"embedding timeout", func(c *config.Config) { c.Embedding.TimeoutSeconds = 0 }, "embedding.timeout_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Transcription.Model != "gpt-4o-transcribe-diarize" {
		t.Fatalf("unexpected sample model: %q", cfg.Transcription.Model)
	}
}

func TestEnsureDirectoriesCreatesDerivedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InputDir = filepath.Join(base, "in")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.ScreenshotsDir = filepath.Join(base, "out", "screenshots")
	cfg.Paths.RAGDir = filepath.Join(base, "out", "rag")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.InputDir, cfg.Paths.ScreenshotsDir, cfg.Paths.RAGDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}
