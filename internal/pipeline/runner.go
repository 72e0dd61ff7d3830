package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"lectern/internal/config"
	"lectern/internal/embedding"
	"lectern/internal/fileutil"
	"lectern/internal/frames"
	"lectern/internal/ingest"
	"lectern/internal/logging"
	"lectern/internal/media"
	"lectern/internal/media/audio"
	"lectern/internal/media/ffprobe"
	"lectern/internal/segmenter"
	"lectern/internal/services"
	"lectern/internal/textutil"
	"lectern/internal/timeindex"
	"lectern/internal/transcript"
)

// MediaTool is the ffmpeg surface the pipeline drives.
type MediaTool interface {
	ExtractAudio(ctx context.Context, source, mapSpec, dest string) error
	segmenter.ClipExtractor
	frames.Capturer
}

// MediaProber is the ffprobe surface the pipeline drives.
type MediaProber interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
	segmenter.DurationProber
	frames.Prober
}

// Deps are the external capabilities of a Runner.
type Deps struct {
	Transcriber transcript.Transcriber
	Embedder    embedding.BatchEmbedder
	Media       MediaTool
	Prober      MediaProber

	// NewRunID and Now are overridable for tests.
	NewRunID func() string
	Now      func() time.Time
}

// AssetReport is the outcome of transcribing one asset.
type AssetReport struct {
	MediaID     string
	Rows        int
	Language    string
	Duration    float64
	Clips       int
	FailedClips int
	Transcript  string
	Err         error
}

// Report summarises one job.
type Report struct {
	RunID  string
	Assets []AssetReport
	Frames int
	Index  *ingest.Summary
}

// Succeeded returns the number of assets transcribed without error.
func (r Report) Succeeded() int {
	n := 0
	for _, a := range r.Assets {
		if a.Err == nil {
			n++
		}
	}
	return n
}

// Runner executes jobs against one workspace.
type Runner struct {
	cfg       *config.Config
	deps      Deps
	logger    *slog.Logger
	observer  Observer
	store     *timeindex.Store
	assembler *transcript.Assembler
	encoder   *embedding.Encoder
}

// New wires a runner from cfg and deps.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, observer Observer) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	splitter := segmenter.New(deps.Prober, deps.Media, segmenter.Options{
		ClipSeconds:     float64(cfg.Transcription.ClipSeconds),
		FallbackSeconds: float64(cfg.Transcription.FallbackDurationSeconds),
	}, logger)
	assembler := transcript.NewAssembler(deps.Transcriber, splitter, transcript.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Timeout:        cfg.TranscriptionTimeout(),
		Concurrency:    cfg.Transcription.ClipConcurrency,
		WorkDir:        cfg.Paths.WorkDir,
	}, logger)
	encoder := embedding.NewEncoder(deps.Embedder, embedding.Options{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.BatchConcurrency,
	}, logger)
	return &Runner{
		cfg:       cfg,
		deps:      deps,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		observer:  observer,
		store:     timeindex.New(cfg.TimeIndexPath()),
		assembler: assembler,
		encoder:   encoder,
	}
}

// TimeIndex returns the store the runner writes to.
func (r *Runner) TimeIndex() *timeindex.Store {
	return r.store
}

// Encoder returns the encoder used for ingestion, for building a matching
// retrieval engine.
func (r *Runner) Encoder() *embedding.Encoder {
	return r.encoder
}

func (r *Runner) emit(state JobState) {
	if r.observer != nil {
		r.observer(state)
	}
}

// job holds the lock and run id for the duration of fn.
func (r *Runner) job(ctx context.Context, name string, fn func(ctx context.Context, report *Report) error) (Report, error) {
	lock, err := AcquireLock(r.cfg.LockPath())
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("failed to release job lock", logging.Error(err))
		}
	}()

	report := Report{RunID: r.deps.NewRunID()}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("job started", logging.String("job", name))
	started := time.Now()

	if err := fn(ctx, &report); err != nil {
		r.emit(JobState{RunID: report.RunID, Stage: StageFailed, Message: err.Error(), Err: err})
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String("job", name),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
		)
		return report, err
	}
	r.emit(JobState{RunID: report.RunID, Stage: StageCompleted, Progress: 100, Message: name + " complete"})
	logger.Info("job finished",
		logging.String("job", name),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return report, nil
}

// Ingest runs every stage: transcription of paths (or the input directory
// when empty), frame capture, and index build.
func (r *Runner) Ingest(ctx context.Context, paths []string) (Report, error) {
	return r.job(ctx, "ingest", func(ctx context.Context, report *Report) error {
		assets, err := r.discover(ctx, report.RunID, paths)
		if err != nil {
			return err
		}
		if err := r.transcribeAll(ctx, report, assets); err != nil {
			return err
		}
		captured, err := r.correlate(ctx, report.RunID, assets)
		if err != nil {
			return err
		}
		report.Frames = captured
		summary, err := r.index(ctx, report.RunID)
		if err != nil {
			return err
		}
		report.Index = &summary
		return nil
	})
}

// Transcribe runs only the transcription stage.
func (r *Runner) Transcribe(ctx context.Context, paths []string) (Report, error) {
	return r.job(ctx, "transcribe", func(ctx context.Context, report *Report) error {
		assets, err := r.discover(ctx, report.RunID, paths)
		if err != nil {
			return err
		}
		return r.transcribeAll(ctx, report, assets)
	})
}

// Frames runs frame capture over the existing time index.
func (r *Runner) Frames(ctx context.Context) (Report, error) {
	return r.job(ctx, "frames", func(ctx context.Context, report *Report) error {
		captured, err := r.correlate(ctx, report.RunID, nil)
		report.Frames = captured
		return err
	})
}

// Index rebuilds the searchable generation from the existing time index.
func (r *Runner) Index(ctx context.Context) (Report, error) {
	return r.job(ctx, "index", func(ctx context.Context, report *Report) error {
		summary, err := r.index(ctx, report.RunID)
		if err != nil {
			return err
		}
		report.Index = &summary
		return nil
	})
}

func (r *Runner) discover(ctx context.Context, runID string, paths []string) ([]media.Asset, error) {
	r.emit(JobState{RunID: runID, Stage: StageDiscover, Message: "discovering media"})
	var assets []media.Asset
	if len(paths) == 0 {
		found, err := media.Discover(r.cfg.Paths.InputDir)
		if err != nil {
			return nil, services.Wrap(services.ErrInvalidInput, "pipeline", "discover", r.cfg.Paths.InputDir, err)
		}
		assets = found
	} else {
		for _, p := range paths {
			asset, err := media.NewAsset(p)
			if err != nil {
				return nil, services.Wrap(services.ErrInvalidInput, "pipeline", "discover", p, err)
			}
			assets = append(assets, asset)
		}
	}
	if err := media.CheckUnique(assets); err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "pipeline", "discover", "", err)
	}
	if len(assets) == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "pipeline", "discover",
			fmt.Sprintf("no supported media in %s", r.cfg.Paths.InputDir), nil)
	}
	logging.WithContext(ctx, r.logger).Info("media discovered", logging.Int("assets", len(assets)))
	return assets, nil
}

func (r *Runner) transcribeAll(ctx context.Context, report *Report, assets []media.Asset) error {
	var causes []error
	for i, asset := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.emit(JobState{
			RunID:    report.RunID,
			Stage:    StageTranscribe,
			MediaID:  asset.ID,
			Progress: float64(i) * 100 / float64(len(assets)),
			Message:  fmt.Sprintf("transcribing %s (%d/%d)", asset.ID, i+1, len(assets)),
		})
		ar := r.transcribeAsset(ctx, report.RunID, asset)
		report.Assets = append(report.Assets, ar)
		if ar.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			causes = append(causes, fmt.Errorf("%s: %w", asset.ID, ar.Err))
			logging.WarnWithContext(logging.WithContext(services.WithMediaID(ctx, asset.ID), r.logger),
				"asset transcription failed", "asset_transcription_failed",
				logging.String("error_kind", services.Kind(ar.Err)),
				logging.Error(ar.Err),
				logging.String(logging.FieldErrorHint, "check the transcription API and the source file"),
				logging.String(logging.FieldImpact, "asset is missing from the time index"),
			)
		}
	}
	if report.Succeeded() == 0 {
		return services.Wrap(services.ErrCapabilityUnavailable, "pipeline", "transcribe",
			fmt.Sprintf("all %d assets failed", len(assets)), errors.Join(causes...))
	}
	return nil
}

func (r *Runner) transcribeAsset(ctx context.Context, runID string, asset media.Asset) AssetReport {
	ctx = services.WithMediaID(ctx, asset.ID)
	logger := logging.WithContext(ctx, r.logger)
	ar := AssetReport{MediaID: asset.ID}

	source, probed, cleanup, err := r.prepareAudio(ctx, runID, asset)
	if err != nil {
		ar.Err = err
		return ar
	}
	defer cleanup()

	res, err := r.assembler.Assemble(ctx, source)
	if err != nil {
		ar.Err = err
		return ar
	}
	if res.Duration <= 0 {
		res.Duration = probed
	}
	processedAt := r.deps.Now()
	rows := timeindex.RowsFromResult(asset.ID, processedAt, res)
	if err := r.store.ReplaceMedia(asset.ID, rows); err != nil {
		ar.Err = err
		return ar
	}

	mdPath := filepath.Join(r.cfg.Paths.OutputDir, textutil.TranscriptFileName(asset.ID))
	doc := transcript.Document{MediaID: asset.ID, ProcessedAt: processedAt, Result: res}
	if err := fileutil.WriteAtomic(mdPath, 0o644, func(w io.Writer) error {
		return transcript.WriteMarkdown(w, doc)
	}); err != nil {
		logging.WarnWithContext(logger, "markdown export failed", "markdown_export_failed",
			logging.String("path", mdPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the output directory is writable"),
			logging.String(logging.FieldImpact, "time index rows were written; markdown transcript missing"),
		)
		mdPath = ""
	}

	ar.Rows = len(rows)
	ar.Language = res.Language
	ar.Duration = res.Duration
	ar.Clips = res.Clips
	ar.FailedClips = res.FailedClips
	ar.Transcript = mdPath
	logger.Info("asset transcribed",
		logging.Int("rows", ar.Rows),
		logging.String("language", ar.Language),
		logging.Float64("duration_s", ar.Duration),
		logging.Int("failed_clips", ar.FailedClips),
	)
	return ar
}

// prepareAudio returns a path suitable for the transcription capability,
// extracting the speech track to the work directory when needed. The
// returned cleanup removes any extracted file.
func (r *Runner) prepareAudio(ctx context.Context, runID string, asset media.Asset) (string, float64, func(), error) {
	noop := func() {}
	if !asset.NeedsAudioExtraction() {
		return asset.Path, 0, noop, nil
	}
	r.emit(JobState{RunID: runID, Stage: StageExtract, MediaID: asset.ID, Message: "extracting audio"})

	probe, err := r.deps.Prober.Inspect(ctx, asset.Path)
	if err != nil {
		return "", 0, noop, services.Wrap(services.ErrMalformedInput, "pipeline", "probe media", asset.ID, err)
	}
	if probe.AudioStreamCount() == 0 {
		return "", 0, noop, services.Wrap(services.ErrMalformedInput, "pipeline", "probe media",
			fmt.Sprintf("%s has no audio stream", asset.ID), nil)
	}
	sel := audio.Select(probe.Streams)
	logging.WithContext(ctx, r.logger).Debug("audio stream selected",
		logging.String("stream", sel.Label()),
		logging.String("map", sel.MapSpec()),
	)

	dest := filepath.Join(r.cfg.Paths.WorkDir, fmt.Sprintf("%s-%s.m4a", textutil.SanitizeToken(asset.ID), runID))
	cleanup := func() { _ = os.Remove(dest) }
	if err := r.deps.Media.ExtractAudio(ctx, asset.Path, sel.MapSpec(), dest); err != nil {
		cleanup()
		return "", 0, noop, services.CapabilityFailure("extract_audio", asset.ID, err)
	}
	return dest, probe.DurationSeconds(), cleanup, nil
}

func (r *Runner) correlate(ctx context.Context, runID string, assets []media.Asset) (int, error) {
	r.emit(JobState{RunID: runID, Stage: StageFrames, Message: "capturing frames"})
	ctx = services.WithStage(ctx, string(StageFrames))
	correlator := frames.New(r.deps.Media, newAssetResolver(r.cfg.Paths.InputDir, assets), r.deps.Prober, frames.Options{
		ScreenshotsDir:  r.cfg.Paths.ScreenshotsDir,
		StrictTimecodes: r.cfg.Frames.StrictTimecodes,
	}, r.logger)
	captured, err := correlator.Correlate(ctx, r.store)
	if err != nil {
		return 0, err
	}
	return len(captured), nil
}

func (r *Runner) index(ctx context.Context, runID string) (ingest.Summary, error) {
	r.emit(JobState{RunID: runID, Stage: StageIndex, Message: string(ingest.StateEmpty)})
	ctx = services.WithStage(ctx, string(StageIndex))
	progress := map[ingest.State]float64{
		ingest.StateEmpty:           0,
		ingest.StateSegmentsLoaded:  25,
		ingest.StateEmbeddingsBuilt: 75,
		ingest.StateIndexWritten:    100,
	}
	indexer := ingest.New(r.store, r.encoder, ingest.Options{
		RAGDir: r.cfg.Paths.RAGDir,
		Observer: func(s ingest.State) {
			r.emit(JobState{RunID: runID, Stage: StageIndex, Progress: progress[s], Message: string(s)})
		},
	}, r.logger)
	return indexer.Run(ctx)
}
