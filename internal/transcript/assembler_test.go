package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lectern/internal/segmenter"
	"lectern/internal/services"
)

type stubTranscriber struct {
	mu      sync.Mutex
	byName  map[string]Transcription
	fail    map[string]error
	delay   map[string]time.Duration
	calls   atomic.Int64
	blocked bool
}

func (s *stubTranscriber) Transcribe(ctx context.Context, path string) (Transcription, error) {
	s.calls.Add(1)
	name := filepath.Base(path)
	if s.blocked {
		<-ctx.Done()
		return Transcription{}, ctx.Err()
	}
	if d := s.delay[name]; d > 0 {
		time.Sleep(d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[name]; err != nil {
		return Transcription{}, err
	}
	return s.byName[name], nil
}

type stubSplitter struct {
	offsets []float64
	workDir string
}

func (s *stubSplitter) Split(_ context.Context, _ string, workDir string) ([]segmenter.Clip, error) {
	s.workDir = workDir
	clips := make([]segmenter.Clip, 0, len(s.offsets))
	for i, off := range s.offsets {
		path := filepath.Join(workDir, fmt.Sprintf("clip_%03d.m4a", i+1))
		if err := os.WriteFile(path, []byte("aac"), 0o644); err != nil {
			return nil, err
		}
		clips = append(clips, segmenter.Clip{Index: i, Offset: off, Duration: 600, Path: path})
	}
	return clips, nil
}

func writeSource(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.m4a")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExceedsLimit(t *testing.T) {
	path := writeSource(t, 10)
	if over, err := ExceedsLimit(path, 10); err != nil || over {
		t.Fatalf("ExceedsLimit(10) = (%v, %v)", over, err)
	}
	if over, _ := ExceedsLimit(path, 9); !over {
		t.Fatal("expected 10 bytes to exceed 9")
	}
	if over, _ := ExceedsLimit(path, 0); over {
		t.Fatal("expected non-positive limit to never split")
	}
	if _, err := ExceedsLimit(filepath.Join(t.TempDir(), "missing"), 1); err == nil {
		t.Fatal("expected stat error")
	}
}

func TestAssembleWholeFileKeepsDetectedLanguage(t *testing.T) {
	source := writeSource(t, 10)
	tr := &stubTranscriber{byName: map[string]Transcription{
		"talk.m4a": {
			Language: "zh",
			Segments: []Segment{{Start: 5, End: 7, Speaker: "B", Text: "second"}, {Start: 0, End: 4, Speaker: "A", Text: "first"}},
		},
	}}
	split := &stubSplitter{}
	a := NewAssembler(tr, split, Options{MaxUploadBytes: 100}, nil)

	res, err := a.Assemble(context.Background(), source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if split.workDir != "" {
		t.Fatal("splitter must not run for a file within the limit")
	}
	if res.Language != "zh" || res.Clips != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Segments[0].Text != "first" || res.Segments[1].Text != "second" {
		t.Fatalf("segments not sorted by start: %+v", res.Segments)
	}
	if res.Duration != 7 {
		t.Fatalf("duration = %v, want 7", res.Duration)
	}
	if res.Text != "first second" {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestAssembleThreeClipsWithMiddleFailure(t *testing.T) {
	source := writeSource(t, 100)
	tr := &stubTranscriber{
		byName: map[string]Transcription{
			"clip_001.m4a": {Language: "en", Text: "one", Segments: []Segment{{Start: 1, End: 10, Speaker: "A", Text: "one"}}},
			"clip_003.m4a": {Language: "en", Text: "three", Segments: []Segment{{Start: 0, End: 5, Speaker: "A", Text: "three a"}, {Start: 30, End: 42.5, Speaker: "B", Text: "three b"}}},
		},
		fail: map[string]error{"clip_002.m4a": errors.New("502 bad gateway")},
	}
	split := &stubSplitter{offsets: []float64{0, 600, 1200}}
	a := NewAssembler(tr, split, Options{MaxUploadBytes: 10, WorkDir: t.TempDir()}, nil)

	res, err := a.Assemble(context.Background(), source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Clips != 3 || res.FailedClips != 1 {
		t.Fatalf("clips = %d failed = %d", res.Clips, res.FailedClips)
	}
	if res.Language != LanguageAuto {
		t.Fatalf("language = %q, want auto", res.Language)
	}
	want := []Segment{
		{Start: 1, End: 10, Speaker: "A", Text: "one"},
		{Start: 1200, End: 1205, Speaker: "A", Text: "three a"},
		{Start: 1230, End: 1242.5, Speaker: "B", Text: "three b"},
	}
	if len(res.Segments) != len(want) {
		t.Fatalf("segments = %+v", res.Segments)
	}
	for i := range want {
		if res.Segments[i] != want[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, res.Segments[i], want[i])
		}
	}
	if res.Duration != 1242.5 {
		t.Fatalf("duration = %v", res.Duration)
	}
	if res.Text != "one three" {
		t.Fatalf("text = %q", res.Text)
	}
	if _, err := os.Stat(split.workDir); !os.IsNotExist(err) {
		t.Fatalf("clip directory %s not removed", split.workDir)
	}
}

func TestAssembleConcurrentClipsMergeInOffsetOrder(t *testing.T) {
	source := writeSource(t, 100)
	tr := &stubTranscriber{
		byName: map[string]Transcription{
			"clip_001.m4a": {Segments: []Segment{{Start: 0, End: 1, Text: "a"}}},
			"clip_002.m4a": {Segments: []Segment{{Start: 0, End: 1, Text: "b"}}},
			"clip_003.m4a": {Segments: []Segment{{Start: 0, End: 1, Text: "c"}}},
		},
		delay: map[string]time.Duration{"clip_001.m4a": 40 * time.Millisecond, "clip_002.m4a": 20 * time.Millisecond},
	}
	split := &stubSplitter{offsets: []float64{0, 600, 1200}}
	a := NewAssembler(tr, split, Options{MaxUploadBytes: 10, Concurrency: 3, WorkDir: t.TempDir()}, nil)

	res, err := a.Assemble(context.Background(), source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := ""
	for i, seg := range res.Segments {
		got += seg.Text
		if i > 0 && seg.Start < res.Segments[i-1].Start {
			t.Fatalf("segments out of order: %+v", res.Segments)
		}
	}
	if got != "abc" {
		t.Fatalf("merge order = %q, want abc", got)
	}
	if res.Segments[2].Start != 1200 {
		t.Fatalf("third segment start = %v", res.Segments[2].Start)
	}
}

func TestAssembleSingleClipKeepsLanguage(t *testing.T) {
	source := writeSource(t, 100)
	tr := &stubTranscriber{byName: map[string]Transcription{
		"clip_001.m4a": {Language: "ja", Segments: []Segment{{Start: 0, End: 2, Text: "x"}}},
	}}
	a := NewAssembler(tr, &stubSplitter{offsets: []float64{0}}, Options{MaxUploadBytes: 10, WorkDir: t.TempDir()}, nil)
	res, err := a.Assemble(context.Background(), source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Language != "ja" {
		t.Fatalf("language = %q, want ja", res.Language)
	}
}

func TestAssembleAllClipsFailedJoinsCauses(t *testing.T) {
	source := writeSource(t, 100)
	errA := errors.New("clip one down")
	errB := errors.New("clip two down")
	tr := &stubTranscriber{fail: map[string]error{"clip_001.m4a": errA, "clip_002.m4a": errB}}
	split := &stubSplitter{offsets: []float64{0, 600}}
	a := NewAssembler(tr, split, Options{MaxUploadBytes: 10, WorkDir: t.TempDir()}, nil)

	_, err := a.Assemble(context.Background(), source)
	if !errors.Is(err, services.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both clip causes in %v", err)
	}
	if _, statErr := os.Stat(split.workDir); !os.IsNotExist(statErr) {
		t.Fatal("clip directory not removed after failure")
	}
}

func TestAssembleEmptyOutputIsError(t *testing.T) {
	source := writeSource(t, 10)
	tr := &stubTranscriber{byName: map[string]Transcription{"talk.m4a": {Language: "en"}}}
	a := NewAssembler(tr, &stubSplitter{}, Options{MaxUploadBytes: 100}, nil)
	if _, err := a.Assemble(context.Background(), source); !errors.Is(err, services.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
}

func TestAssembleTextOnlyIsAccepted(t *testing.T) {
	source := writeSource(t, 10)
	tr := &stubTranscriber{byName: map[string]Transcription{"talk.m4a": {Text: "just words"}}}
	a := NewAssembler(tr, &stubSplitter{}, Options{MaxUploadBytes: 100}, nil)
	res, err := a.Assemble(context.Background(), source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Text != "just words" || res.Language != LanguageUnknown || len(res.Segments) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAssembleTimeoutIsNotRetried(t *testing.T) {
	source := writeSource(t, 10)
	tr := &stubTranscriber{blocked: true}
	a := NewAssembler(tr, &stubSplitter{}, Options{MaxUploadBytes: 100, Timeout: 20 * time.Millisecond}, nil)

	_, err := a.Assemble(context.Background(), source)
	if !errors.Is(err, services.ErrTimeout) || !errors.Is(err, services.ErrCapabilityUnavailable) {
		t.Fatalf("expected timeout capability failure, got %v", err)
	}
	if tr.calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", tr.calls.Load())
	}
}

func TestAssembleCancelledContext(t *testing.T) {
	source := writeSource(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &stubTranscriber{}
	a := NewAssembler(tr, &stubSplitter{offsets: []float64{0, 600}}, Options{MaxUploadBytes: 10, WorkDir: t.TempDir()}, nil)
	if _, err := a.Assemble(ctx, source); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShiftedClampsNegativeAndInvertedTimes(t *testing.T) {
	seg := Segment{Start: -2, End: -5}.shifted(0)
	if seg.Start != 0 || seg.End != 0 {
		t.Fatalf("unexpected clamp %+v", seg)
	}
	seg = Segment{Start: 3, End: 1}.shifted(600)
	if seg.Start != 603 || seg.End != 603 {
		t.Fatalf("unexpected clamp %+v", seg)
	}
}
