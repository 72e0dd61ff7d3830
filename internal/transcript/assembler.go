package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"lectern/internal/logging"
	"lectern/internal/segmenter"
	"lectern/internal/services"
)

const stageName = "transcribe"

// DefaultTimeout bounds a single transcription call.
const DefaultTimeout = 10 * time.Minute

// Splitter produces ordered clips of an oversized source inside workDir.
type Splitter interface {
	Split(ctx context.Context, source, workDir string) ([]segmenter.Clip, error)
}

// Options controls assembly.
type Options struct {
	// MaxUploadBytes is the largest file sent without splitting.
	MaxUploadBytes int64
	// Timeout bounds each transcription call. Timeouts are not retried.
	Timeout time.Duration
	// Concurrency is the number of clips transcribed at once (default 1).
	Concurrency int
	// WorkDir holds the per-call clip directory. Empty uses os.TempDir.
	WorkDir string
}

// Result is the merged transcript of one asset.
type Result struct {
	Segments []Segment
	Language string
	Text     string
	// Duration is the end time of the last emitted segment.
	Duration    float64
	Clips       int
	FailedClips int
}

// Assembler drives the transcription capability over one source.
type Assembler struct {
	transcriber Transcriber
	splitter    Splitter
	opts        Options
	logger      *slog.Logger
}

// NewAssembler constructs an assembler.
func NewAssembler(transcriber Transcriber, splitter Splitter, opts Options, logger *slog.Logger) *Assembler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Assembler{
		transcriber: transcriber,
		splitter:    splitter,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "transcript"),
	}
}

// ExceedsLimit reports whether the file at path is larger than limit bytes.
// A non-positive limit never triggers splitting.
func ExceedsLimit(path string, limit int64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return limit > 0 && info.Size() > limit, nil
}

// Assemble transcribes source into one ordered transcript.
func (a *Assembler) Assemble(ctx context.Context, source string) (Result, error) {
	ctx = services.WithStage(ctx, stageName)
	oversized, err := ExceedsLimit(source, a.opts.MaxUploadBytes)
	if err != nil {
		return Result{}, services.Wrap(services.ErrMalformedInput, stageName, "stat source", source, err)
	}
	if !oversized {
		return a.assembleWhole(ctx, source)
	}
	return a.assembleClips(ctx, source)
}

func (a *Assembler) assembleWhole(ctx context.Context, source string) (Result, error) {
	out, err := a.call(ctx, source)
	if err != nil {
		return Result{}, services.Wrap(services.ErrCapabilityUnavailable, stageName, "assemble", "no transcript produced", err)
	}
	res := Result{Clips: 1}
	res.Segments = make([]Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		res.Segments = append(res.Segments, seg.shifted(0))
	}
	res.Text = out.wholeText()
	res.Language = languageOrUnknown(out.Language)
	return finish(res, nil)
}

type clipOutcome struct {
	out Transcription
	err error
}

func (a *Assembler) assembleClips(ctx context.Context, source string) (Result, error) {
	logger := logging.WithContext(ctx, a.logger)

	workDir, err := os.MkdirTemp(a.opts.WorkDir, "clips-*")
	if err != nil {
		return Result{}, fmt.Errorf("create clip directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Debug("clip directory cleanup failed", logging.String("dir", workDir), logging.Error(rmErr))
		}
	}()

	clips, err := a.splitter.Split(ctx, source, workDir)
	if err != nil {
		return Result{}, err
	}

	progress := logging.NewProgressSampler(25)
	outcomes := make([]clipOutcome, len(clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	var done atomic.Int64
	for i, clip := range clips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := a.call(gctx, clip.Path)
			outcomes[i] = clipOutcome{out: out, err: err}
			if n := int(done.Add(1)); progress.ShouldLog(stageName, n, len(clips)) {
				logger.Info("clip progress", logging.Int("done", n), logging.Int("total", len(clips)))
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logging.WarnWithContext(logger, "clip transcription failed; leaving gap",
					"clip_transcription_failed",
					logging.Int("clip", clip.Index+1),
					logging.Float64("offset_seconds", clip.Offset),
					logging.Bool("timeout", services.IsTimeout(err)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check transcription API availability and timeout_seconds"),
					logging.String(logging.FieldImpact, "segments for this clip are missing from the transcript"),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Clips: len(clips)}
	var causes []error
	texts := make([]string, 0, len(clips))
	for i, clip := range clips {
		outcome := outcomes[i]
		if outcome.err != nil {
			res.FailedClips++
			causes = append(causes, fmt.Errorf("clip %d at %.0fs: %w", clip.Index+1, clip.Offset, outcome.err))
			continue
		}
		for _, seg := range outcome.out.Segments {
			res.Segments = append(res.Segments, seg.shifted(clip.Offset))
		}
		if text := outcome.out.wholeText(); text != "" {
			texts = append(texts, text)
		}
		if len(clips) == 1 {
			res.Language = languageOrUnknown(outcome.out.Language)
		}
	}
	if len(clips) > 1 {
		res.Language = LanguageAuto
	}
	res.Text = strings.Join(texts, " ")
	return finish(res, causes)
}

// call invokes the capability under the per-call timeout.
func (a *Assembler) call(ctx context.Context, path string) (Transcription, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()
	out, err := a.transcriber.Transcribe(callCtx, path)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", services.ErrTimeout, err)
		}
		return Transcription{}, services.CapabilityFailure(stageName, "transcribe", err)
	}
	return out, nil
}

// finish orders segments, derives the duration, and rejects empty output.
func finish(res Result, causes []error) (Result, error) {
	sort.SliceStable(res.Segments, func(i, j int) bool {
		return res.Segments[i].Start < res.Segments[j].Start
	})
	for _, seg := range res.Segments {
		if seg.End > res.Duration {
			res.Duration = seg.End
		}
	}
	if len(res.Segments) == 0 && strings.TrimSpace(res.Text) == "" {
		var cause error
		if len(causes) > 0 {
			cause = errors.Join(causes...)
		}
		return Result{}, services.Wrap(services.ErrCapabilityUnavailable, stageName, "assemble", "no transcript produced", cause)
	}
	if res.Language == "" {
		res.Language = LanguageUnknown
	}
	return res, nil
}

func languageOrUnknown(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return LanguageUnknown
}
