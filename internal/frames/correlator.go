package frames

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/timecode"
	"lectern/internal/timeindex"
)

// Capturer writes the frame at atMillis of source to dest.
type Capturer interface {
	CaptureFrame(ctx context.Context, source string, atMillis int64, dest string) error
}

// Resolver maps a media id to a readable path.
type Resolver interface {
	Resolve(mediaID string) (string, error)
}

// Prober reports whether a file carries a decodable video stream.
type Prober interface {
	HasVideo(ctx context.Context, path string) (bool, error)
}

// Store is the slice of the time index the correlator needs.
type Store interface {
	ReadAll() ([]timeindex.Row, error)
	SetImages(images []timeindex.Images) error
}

// CapturedFrame describes one image written to the screenshots directory.
type CapturedFrame struct {
	MediaID          string
	TimestampSeconds float64
	ImageID          string
}

// Options configures a Correlator.
type Options struct {
	ScreenshotsDir  string
	StrictTimecodes bool
}

// Correlator captures start and end frames for each time index row.
type Correlator struct {
	capturer Capturer
	resolver Resolver
	prober   Prober
	opts     Options
	logger   *slog.Logger
}

// New builds a correlator.
func New(capturer Capturer, resolver Resolver, prober Prober, opts Options, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Correlator{
		capturer: capturer,
		resolver: resolver,
		prober:   prober,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "frames"),
	}
}

// ImageName returns the file name for the frame at 1-based table position pos.
func ImageName(pos int, edge string) string {
	return fmt.Sprintf("img_%d_%s.jpg", pos, edge)
}

// Correlate captures frames for every row in store and writes the image
// columns back. Rows keep their order; only the image fields change.
func (c *Correlator) Correlate(ctx context.Context, store Store) ([]CapturedFrame, error) {
	rows, err := store.ReadAll()
	if err != nil {
		return nil, err
	}
	if err := c.checkTimecodes(rows); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.opts.ScreenshotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshots dir: %w", err)
	}

	images := make([]timeindex.Images, len(rows))
	var captured []CapturedFrame
	for _, group := range groupByMedia(rows) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mediaCtx := services.WithMediaID(ctx, group.mediaID)
		logger := logging.WithContext(mediaCtx, c.logger)

		source, ok := c.videoSource(mediaCtx, logger, group.mediaID)
		if !ok {
			continue
		}
		for _, idx := range group.indices {
			row := rows[idx]
			pos := idx + 1
			startMs := timecode.ParseMillis(row.StartTime)
			endMs := timecode.ParseMillis(row.EndTime)

			if name, ok := c.capture(mediaCtx, logger, source, startMs, ImageName(pos, "start")); ok {
				images[idx].Start = name
				captured = append(captured, CapturedFrame{MediaID: row.MediaID, TimestampSeconds: float64(startMs) / 1000, ImageID: name})
			}
			if name, ok := c.capture(mediaCtx, logger, source, endMs, ImageName(pos, "end")); ok {
				images[idx].End = name
				captured = append(captured, CapturedFrame{MediaID: row.MediaID, TimestampSeconds: float64(endMs) / 1000, ImageID: name})
			}
		}
		logger.Info("frames captured", logging.Int("rows", len(group.indices)))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := store.SetImages(images); err != nil {
		return nil, fmt.Errorf("write image columns: %w", err)
	}
	c.logger.Info("frame correlation complete",
		logging.Int("rows", len(rows)),
		logging.Int("frames", len(captured)),
	)
	return captured, nil
}

func (c *Correlator) checkTimecodes(rows []timeindex.Row) error {
	if !c.opts.StrictTimecodes {
		return nil
	}
	for i, row := range rows {
		for _, text := range []string{row.StartTime, row.EndTime} {
			if _, err := timecode.ParseMillisStrict(text); err != nil {
				return services.Wrap(services.ErrMalformedInput, "frames", "parse timecode",
					fmt.Sprintf("row %d of %s", i+1, row.MediaID), err)
			}
		}
	}
	return nil
}

func (c *Correlator) videoSource(ctx context.Context, logger *slog.Logger, mediaID string) (string, bool) {
	source, err := c.resolver.Resolve(mediaID)
	if err != nil {
		logging.WarnWithContext(logger, "media not resolvable; skipping frames", "media_unresolved",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the source file is still in the input directory"),
			logging.String(logging.FieldImpact, "rows for this asset have no images"),
		)
		return "", false
	}
	hasVideo, err := c.prober.HasVideo(ctx, source)
	if err != nil {
		logging.WarnWithContext(logger, "media probe failed; skipping frames", "media_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the file decodes with ffprobe"),
			logging.String(logging.FieldImpact, "rows for this asset have no images"),
		)
		return "", false
	}
	if !hasVideo {
		logger.Debug("no video stream; skipping frames")
		return "", false
	}
	return source, true
}

func (c *Correlator) capture(ctx context.Context, logger *slog.Logger, source string, atMillis int64, name string) (string, bool) {
	dest := filepath.Join(c.opts.ScreenshotsDir, name)
	if err := c.capturer.CaptureFrame(ctx, source, atMillis, dest); err != nil {
		logging.WarnWithContext(logger, "frame capture failed", "frame_capture_failed",
			logging.String("image_id", name),
			logging.Int64("at_ms", atMillis),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "timestamp may be past the end of the stream"),
			logging.String(logging.FieldImpact, "image field left empty"),
		)
		return "", false
	}
	return name, true
}

type mediaGroup struct {
	mediaID string
	indices []int
}

func groupByMedia(rows []timeindex.Row) []mediaGroup {
	var groups []mediaGroup
	seen := make(map[string]int)
	for i, row := range rows {
		g, ok := seen[row.MediaID]
		if !ok {
			g = len(groups)
			seen[row.MediaID] = g
			groups = append(groups, mediaGroup{mediaID: row.MediaID})
		}
		groups[g].indices = append(groups[g].indices, i)
	}
	return groups
}
