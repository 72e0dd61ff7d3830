// Package segmenter splits an audio source that exceeds the transcription
// upload limit into fixed-duration clips.
package segmenter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"lectern/internal/fileutil"
	"lectern/internal/logging"
	"lectern/internal/services"
)

const (
	// DefaultClipSeconds is the clip length used when none is configured.
	DefaultClipSeconds = 600
	// DefaultFallbackSeconds is the assumed duration when probing fails.
	DefaultFallbackSeconds = 3600
)

// Clip is one window of the source timeline.
type Clip struct {
	Index    int
	Offset   float64
	Duration float64
	Path     string
}

// Plan returns floor(total/clip)+1 windows with offsets i*clip.
func Plan(total, clip float64) []Clip {
	if math.IsNaN(total) || total < 0 {
		total = 0
	}
	if clip <= 0 || math.IsNaN(clip) {
		return []Clip{{Index: 0, Offset: 0, Duration: total}}
	}
	n := int(math.Floor(total/clip)) + 1
	clips := make([]Clip, n)
	for i := range clips {
		clips[i] = Clip{Index: i, Offset: float64(i) * clip, Duration: clip}
	}
	return clips
}

// DurationProber reports the duration of a media file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ClipExtractor writes one window of source to dest as a decodable audio file.
type ClipExtractor interface {
	ExtractClip(ctx context.Context, source string, offset, duration float64, dest string) error
}

// Options controls clip planning.
type Options struct {
	ClipSeconds     float64
	FallbackSeconds float64
}

// Splitter plans and extracts clips.
type Splitter struct {
	prober    DurationProber
	extractor ClipExtractor
	opts      Options
	logger    *slog.Logger
}

// New constructs a Splitter. Zero options take the package defaults.
func New(prober DurationProber, extractor ClipExtractor, opts Options, logger *slog.Logger) *Splitter {
	if opts.ClipSeconds <= 0 {
		opts.ClipSeconds = DefaultClipSeconds
	}
	if opts.FallbackSeconds <= 0 {
		opts.FallbackSeconds = DefaultFallbackSeconds
	}
	return &Splitter{
		prober:    prober,
		extractor: extractor,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "segmenter"),
	}
}

// Split writes clips of source into workDir and returns those that were
// produced, in offset order. Clips whose extraction fails or is empty are
// dropped without retry.
func (s *Splitter) Split(ctx context.Context, source, workDir string) ([]Clip, error) {
	logger := logging.WithContext(ctx, s.logger)

	total, err := s.prober.Duration(ctx, source)
	if err != nil || total <= 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logging.WarnWithContext(logger, "duration probe failed; assuming fallback duration",
			"duration_probe_failed",
			logging.String("source", source),
			logging.Float64("fallback_seconds", s.opts.FallbackSeconds),
			logging.Any("error", err),
			logging.String(logging.FieldErrorHint, "verify the file is readable by ffprobe"),
			logging.String(logging.FieldImpact, "trailing clips past the real end will be empty and dropped"),
		)
		total = s.opts.FallbackSeconds
	}

	planned := Plan(total, s.opts.ClipSeconds)
	clips := make([]Clip, 0, len(planned))
	for _, clip := range planned {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clip.Path = filepath.Join(workDir, fmt.Sprintf("clip_%03d.m4a", clip.Index+1))
		if err := s.extractor.ExtractClip(ctx, source, clip.Offset, clip.Duration, clip.Path); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Debug("clip dropped", logging.Int("clip", clip.Index+1), logging.Float64("offset", clip.Offset), logging.Error(err))
			continue
		}
		if !fileutil.NonEmptyFile(clip.Path) {
			logger.Debug("clip dropped: empty output", logging.Int("clip", clip.Index+1), logging.Float64("offset", clip.Offset))
			continue
		}
		clips = append(clips, clip)
	}

	logger.Info("audio split into clips",
		logging.Int("planned", len(planned)),
		logging.Int("produced", len(clips)),
		logging.Float64("duration_seconds", total),
	)
	if len(clips) == 0 {
		return nil, services.Wrap(services.ErrCapabilityUnavailable, "transcribe", "split audio", "no clips were produced", nil)
	}
	return clips, nil
}
