package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/embedding"
	"lectern/internal/ragstore"
	"lectern/internal/services"
	"lectern/internal/testsupport"
	"lectern/internal/timeindex"
	"lectern/internal/vectorindex"
)

func newIndexer(t *testing.T, rows []timeindex.Row, embedder embedding.BatchEmbedder, ragDir string, ids ...string) (*Indexer, *[]State) {
	t.Helper()
	source := testsupport.SeedTimeIndex(t, filepath.Join(t.TempDir(), "transcripts.csv"), rows)
	var states []State
	next := 0
	ix := New(source, embedding.NewEncoder(embedder, embedding.Options{BatchSize: 2}, nil), Options{
		RAGDir:   ragDir,
		Observer: func(s State) { states = append(states, s) },
		NewBuildID: func() string {
			id := ids[next]
			next++
			return id
		},
	}, nil)
	return ix, &states
}

func TestRunSkipsBlankRowsAndKeepsIDCorrespondence(t *testing.T) {
	ragDir := t.TempDir()
	rows := []timeindex.Row{
		{MediaID: "a.mp4", StartTime: "00:00", EndTime: "00:02", Speaker: "A", Text: "hello"},
		{MediaID: "a.mp4", StartTime: "00:02", EndTime: "00:03", Speaker: "A", Text: "   "},
		{MediaID: "a.mp4", StartTime: "00:03", EndTime: "00:05", Speaker: "B", Text: "world", StartImage: "img_3_start.jpg"},
	}
	embedder := &testsupport.KeywordEmbedder{Keywords: []string{"hello", "world"}}
	ix, states := newIndexer(t, rows, embedder, ragDir, "b1")

	summary, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Records != 2 || summary.BuildID != "b1" || summary.Dimension != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if embedder.Calls() != 1 {
		t.Fatalf("expected one embedding batch, got %d", embedder.Calls())
	}
	want := []State{StateEmpty, StateSegmentsLoaded, StateEmbeddingsBuilt, StateIndexWritten}
	if len(*states) != len(want) {
		t.Fatalf("unexpected states %v", *states)
	}
	for i, s := range want {
		if (*states)[i] != s {
			t.Fatalf("state %d = %s, want %s", i, (*states)[i], s)
		}
	}

	gen, err := Current(ragDir)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	index, err := vectorindex.Load(gen.IndexPath())
	if err != nil {
		t.Fatalf("Load index: %v", err)
	}
	store, err := ragstore.Open(context.Background(), gen.StorePath())
	if err != nil {
		t.Fatalf("Open store: %v", err)
	}
	defer store.Close()
	count, _ := store.Count(context.Background())
	if index.Len() != count || count != 2 {
		t.Fatalf("index has %d vectors, store has %d records", index.Len(), count)
	}
	meta, err := store.Meta(context.Background())
	if err != nil || meta.BuildID != index.BuildID || meta.Model != "keyword-test" {
		t.Fatalf("build stamps disagree: meta=%+v index=%q err=%v", meta, index.BuildID, err)
	}
	records, err := store.RecordsByVectorIDs(context.Background(), []int64{0, 1})
	if err != nil {
		t.Fatalf("RecordsByVectorIDs: %v", err)
	}
	if records[0].Content != "hello" || records[1].Content != "world" || records[1].StartImage != "img_3_start.jpg" {
		t.Fatalf("records do not follow row order: %+v", records)
	}
	// Vector 1 is the "world" vector.
	hits, err := index.Search([]float32{0, 1, 0}, 1)
	if err != nil || hits[0].ID != 1 {
		t.Fatalf("vector 1 does not encode row 3: %+v, %v", hits, err)
	}
}

func TestRunReplacesAndPrunesPreviousGeneration(t *testing.T) {
	ragDir := t.TempDir()
	rows := []timeindex.Row{{MediaID: "a", Text: "one"}}
	ix, _ := newIndexer(t, rows, &testsupport.KeywordEmbedder{}, ragDir, "first", "second")

	if _, err := ix.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(summary.Pruned) != 1 || summary.Pruned[0] != "first" {
		t.Fatalf("expected first generation pruned, got %v", summary.Pruned)
	}
	gen, err := Current(ragDir)
	if err != nil || gen.BuildID != "second" {
		t.Fatalf("Current = %+v, %v", gen, err)
	}
	if _, err := os.Stat(filepath.Join(ragDir, "gen-first")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("old generation still present: %v", err)
	}
}

func TestFailedRunKeepsLiveGeneration(t *testing.T) {
	ragDir := t.TempDir()
	rows := []timeindex.Row{{MediaID: "a", Text: "one"}}
	embedder := &testsupport.KeywordEmbedder{}
	ix, states := newIndexer(t, rows, embedder, ragDir, "good", "bad")
	if _, err := ix.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	embedder.Err = errors.New("quota exhausted")
	_, err := ix.Run(context.Background())
	if !errors.Is(err, services.ErrIngestionAborted) {
		t.Fatalf("expected ErrIngestionAborted, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("cause not preserved: %v", err)
	}
	if last := (*states)[len(*states)-1]; last != StateSegmentsLoaded {
		t.Fatalf("expected to stop at segments-loaded, got %s", last)
	}
	gen, err := Current(ragDir)
	if err != nil || gen.BuildID != "good" {
		t.Fatalf("live generation changed: %+v, %v", gen, err)
	}
	entries, _ := os.ReadDir(ragDir)
	for _, e := range entries {
		if e.Name() == "gen-bad" {
			t.Fatal("staging generation left behind")
		}
	}
}

func TestRunAbortsWithoutText(t *testing.T) {
	ragDir := t.TempDir()
	ix, _ := newIndexer(t, []timeindex.Row{{MediaID: "a", Text: ""}}, &testsupport.KeywordEmbedder{}, ragDir, "x")
	if _, err := ix.Run(context.Background()); !errors.Is(err, services.ErrIngestionAborted) {
		t.Fatalf("expected ErrIngestionAborted, got %v", err)
	}
	if _, err := Current(ragDir); !errors.Is(err, services.ErrStoreNotReady) {
		t.Fatalf("expected no committed generation, got %v", err)
	}

	missing := New(timeindex.New(filepath.Join(t.TempDir(), "none.csv")),
		embedding.NewEncoder(&testsupport.KeywordEmbedder{}, embedding.Options{}, nil),
		Options{RAGDir: ragDir}, nil)
	if _, err := missing.Run(context.Background()); !errors.Is(err, services.ErrIngestionAborted) || !errors.Is(err, timeindex.ErrNotFound) {
		t.Fatalf("expected aborted run for missing time index, got %v", err)
	}
}

func TestCurrentRejectsBadPointer(t *testing.T) {
	ragDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(ragDir, CurrentFile), []byte("missing\n"), 0o644); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	if _, err := Current(ragDir); !errors.Is(err, services.ErrStoreNotReady) {
		t.Fatalf("expected ErrStoreNotReady, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(ragDir, CurrentFile), []byte("../etc\n"), 0o644); err != nil {
		t.Fatalf("write pointer: %v", err)
	}
	if _, err := Current(ragDir); !errors.Is(err, services.ErrStoreNotReady) {
		t.Fatalf("expected ErrStoreNotReady for traversal, got %v", err)
	}
}
