package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"lectern/internal/fileutil"
)

// DefaultBinary is the ffmpeg executable used when none is configured.
const DefaultBinary = "ffmpeg"

// DefaultJPEGQuality is the mjpeg qscale used for frame captures (1 best, 31 worst).
const DefaultJPEGQuality = 2

// ErrEmptyOutput reports an ffmpeg run that exited cleanly without producing data.
var ErrEmptyOutput = errors.New("ffmpeg produced no output")

// Runner executes a command and returns an error including its output on failure.
type Runner func(ctx context.Context, name string, args ...string) error

// Service runs ffmpeg.
type Service struct {
	binary        string
	jpegQuality   int
	commandRunner Runner
}

// Option customises a Service.
type Option func(*Service)

// WithJPEGQuality sets the qscale for frame captures.
func WithJPEGQuality(q int) Option {
	return func(s *Service) {
		if q >= 1 && q <= 31 {
			s.jpegQuality = q
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner Runner) Option {
	return func(s *Service) {
		s.commandRunner = runner
	}
}

// New creates a Service for binary.
func New(binary string, opts ...Option) *Service {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	s := &Service{binary: binary, jpegQuality: DefaultJPEGQuality}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractAudio converts the mapped audio stream of source to mono 16 kHz AAC
// in dest. mapSpec is an ffmpeg stream specifier such as "0:a:0".
func (s *Service) ExtractAudio(ctx context.Context, source, mapSpec, dest string) error {
	if strings.TrimSpace(mapSpec) == "" {
		mapSpec = "0:a:0"
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", mapSpec,
	}
	args = append(args, speechAudioArgs(dest)...)
	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	return checkOutput(dest)
}

// ExtractClip writes the [offset, offset+duration) window of source as a
// mono 16 kHz AAC clip.
func (s *Service) ExtractClip(ctx context.Context, source string, offset, duration float64, dest string) error {
	if duration <= 0 {
		return fmt.Errorf("extract clip: invalid duration %v", duration)
	}
	if offset < 0 {
		return fmt.Errorf("extract clip: invalid offset %v", offset)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(offset),
		"-t", formatSeconds(duration),
		"-i", source,
		"-map", "0:a:0",
	}
	args = append(args, speechAudioArgs(dest)...)
	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg extract clip: %w", err)
	}
	return checkOutput(dest)
}

// CaptureFrame writes the video frame at atMillis to dest as a JPEG.
func (s *Service) CaptureFrame(ctx context.Context, source string, atMillis int64, dest string) error {
	if atMillis < 0 {
		atMillis = 0
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatMillis(atMillis),
		"-i", source,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(s.jpegQuality),
		dest,
	}
	if err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg capture frame: %w", err)
	}
	return checkOutput(dest)
}

func speechAudioArgs(dest string) []string {
	return []string{
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "aac",
		"-b:a", "64k",
		dest,
	}
}

func (s *Service) run(ctx context.Context, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func checkOutput(dest string) error {
	if !fileutil.NonEmptyFile(dest) {
		_ = os.Remove(dest)
		return fmt.Errorf("%w: %s", ErrEmptyOutput, dest)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func formatMillis(ms int64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}
