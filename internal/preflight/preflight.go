package preflight

import (
	"context"

	"lectern/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the space required in the work directory for extracted
// audio and clips of one long recording.
const minFreeBytes = 2 << 30

// RunAll executes the filesystem and credential checks for an ingestion job.
// Remote endpoint checks are left to the status command.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Input directory", cfg.Paths.InputDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Screenshots directory", cfg.Paths.ScreenshotsDir),
		CheckDirectoryAccess("RAG directory", cfg.Paths.RAGDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, minFreeBytes),
		CheckAPIKey("Transcription API key", cfg.Transcription.APIKey),
		CheckAPIKey("Embedding API key", cfg.Embedding.APIKey),
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
