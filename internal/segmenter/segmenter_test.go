package segmenter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/services"
)

type stubProber struct {
	duration float64
	err      error
}

func (p stubProber) Duration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

type stubExtractor struct {
	calls []float64
	fail  map[int]bool
	empty map[int]bool
}

func (e *stubExtractor) ExtractClip(_ context.Context, _ string, offset, _ float64, dest string) error {
	idx := len(e.calls)
	e.calls = append(e.calls, offset)
	if e.fail[idx] {
		return errors.New("ffmpeg failed")
	}
	data := []byte("aac")
	if e.empty[idx] {
		data = nil
	}
	return os.WriteFile(dest, data, 0o644)
}

func TestPlanOffsetsAndCount(t *testing.T) {
	tests := []struct {
		total, clip float64
		count       int
	}{
		{0, 600, 1},
		{599, 600, 1},
		{600, 600, 2},
		{1200, 600, 3},
		{1799.9, 600, 3},
		{3600, 600, 7},
	}
	for _, tt := range tests {
		clips := Plan(tt.total, tt.clip)
		if len(clips) != tt.count {
			t.Fatalf("Plan(%v, %v) count = %d, want %d", tt.total, tt.clip, len(clips), tt.count)
		}
		for i, c := range clips {
			if c.Index != i || c.Offset != float64(i)*tt.clip || c.Duration != tt.clip {
				t.Fatalf("Plan(%v, %v)[%d] = %+v", tt.total, tt.clip, i, c)
			}
		}
	}
}

func TestPlanWithoutClipLength(t *testing.T) {
	clips := Plan(90, 0)
	if len(clips) != 1 || clips[0].Offset != 0 || clips[0].Duration != 90 {
		t.Fatalf("unexpected plan %+v", clips)
	}
}

func TestSplitTwentyMinutesYieldsThreeClips(t *testing.T) {
	ext := &stubExtractor{}
	s := New(stubProber{duration: 1200}, ext, Options{ClipSeconds: 600}, nil)
	clips, err := s.Split(context.Background(), "/in/talk.m4a", t.TempDir())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("expected 3 clips, got %d", len(clips))
	}
	for i, want := range []float64{0, 600, 1200} {
		if clips[i].Offset != want {
			t.Fatalf("clip %d offset = %v, want %v", i, clips[i].Offset, want)
		}
		if filepath.Base(clips[i].Path) == "" {
			t.Fatalf("clip %d has no path", i)
		}
	}
}

func TestSplitDropsFailedAndEmptyClips(t *testing.T) {
	ext := &stubExtractor{fail: map[int]bool{1: true}, empty: map[int]bool{2: true}}
	s := New(stubProber{duration: 1900}, ext, Options{ClipSeconds: 600}, nil)
	clips, err := s.Split(context.Background(), "/in/talk.m4a", t.TempDir())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(ext.calls) != 4 {
		t.Fatalf("expected 4 extraction attempts without retry, got %d", len(ext.calls))
	}
	if len(clips) != 2 || clips[0].Index != 0 || clips[1].Index != 3 || clips[1].Offset != 1800 {
		t.Fatalf("unexpected clips %+v", clips)
	}
}

func TestSplitUsesFallbackDuration(t *testing.T) {
	ext := &stubExtractor{}
	s := New(stubProber{err: errors.New("probe failed")}, ext, Options{ClipSeconds: 600, FallbackSeconds: 1800}, nil)
	clips, err := s.Split(context.Background(), "/in/talk.m4a", t.TempDir())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(clips) != 4 {
		t.Fatalf("expected 4 clips from fallback, got %d", len(clips))
	}

	def := New(stubProber{err: errors.New("probe failed")}, &stubExtractor{}, Options{}, nil)
	clips, err = def.Split(context.Background(), "/in/talk.m4a", t.TempDir())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(clips) != 7 {
		t.Fatalf("expected 7 clips from default fallback, got %d", len(clips))
	}
}

func TestSplitNoClipsIsCapabilityFailure(t *testing.T) {
	ext := &stubExtractor{fail: map[int]bool{0: true}}
	s := New(stubProber{duration: 10}, ext, Options{}, nil)
	_, err := s.Split(context.Background(), "/in/talk.m4a", t.TempDir())
	if !errors.Is(err, services.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
}

func TestSplitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(stubProber{duration: 1200}, &stubExtractor{}, Options{}, nil)
	if _, err := s.Split(ctx, "/in/talk.m4a", t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
