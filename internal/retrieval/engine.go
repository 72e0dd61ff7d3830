package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"lectern/internal/fileutil"
	"lectern/internal/ingest"
	"lectern/internal/logging"
	"lectern/internal/ragstore"
	"lectern/internal/services"
	"lectern/internal/vectorindex"
)

// DefaultTopK is used when the caller does not pick k.
const DefaultTopK = 5

// QueryEncoder embeds a query with the normalisation used at ingestion.
type QueryEncoder interface {
	EncodeQuery(ctx context.Context, query string) ([]float32, error)
	Model() string
}

// Result is one ranked hit joined with its stored metadata.
type Result struct {
	Score      float32 `json:"score"`
	VectorID   int64   `json:"vector_id"`
	MediaID    string  `json:"media_id"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	StartImage string  `json:"start_image"`
	EndImage   string  `json:"end_image"`
}

// Options configures an Engine.
type Options struct {
	RAGDir         string
	ScreenshotsDir string
}

// Engine runs searches against the live generation.
type Engine struct {
	encoder QueryEncoder
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	loaded *generation
}

type generation struct {
	buildID string
	index   *vectorindex.Flat
	store   *ragstore.Store
	meta    ragstore.BuildMeta
}

// New constructs an engine.
func New(encoder QueryEncoder, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		encoder: encoder,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "retrieval"),
	}
}

// Close releases the cached generation.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded == nil {
		return nil
	}
	err := e.loaded.store.Close()
	e.loaded = nil
	return err
}

func notReady(msg string, err error) error {
	return services.Wrap(services.ErrStoreNotReady, "retrieval", "load generation", msg, err)
}

// Status summarises the live generation.
type Status struct {
	BuildID   string
	Model     string
	Dimension int
	Records   int
}

// Status loads the live generation and reports its stamp.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	gen, err := e.acquire(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		BuildID:   gen.buildID,
		Model:     gen.meta.Model,
		Dimension: gen.index.Dim(),
		Records:   gen.index.Len(),
	}, nil
}

// Search returns up to k results for query ordered by descending score.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k < 1 {
		return nil, services.Wrap(services.ErrInvalidInput, "retrieval", "search", fmt.Sprintf("k must be at least 1, got %d", k), nil)
	}
	if strings.TrimSpace(query) == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "retrieval", "search", "query is empty", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	gen, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := e.encoder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) != gen.index.Dim() {
		return nil, notReady(fmt.Sprintf("query dimension %d does not match index dimension %d", len(vec), gen.index.Dim()), nil)
	}
	hits, err := gen.index.Search(vec, k)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "retrieval", "search", "", err)
	}

	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		if hit.ID >= 0 {
			ids = append(ids, hit.ID)
		}
	}
	records, err := gen.store.RecordsByVectorIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	results := make([]Result, 0, len(ids))
	for _, hit := range hits {
		if hit.ID < 0 {
			continue
		}
		rec, ok := records[hit.ID]
		if !ok {
			e.logger.Debug("hit missing from metadata store", logging.Int64("vector_id", hit.ID))
			continue
		}
		results = append(results, Result{
			Score:      hit.Score,
			VectorID:   hit.ID,
			MediaID:    rec.MediaID,
			StartTime:  rec.StartTime,
			EndTime:    rec.EndTime,
			Speaker:    rec.Speaker,
			Text:       rec.Content,
			Language:   rec.Language,
			StartImage: e.imagePath(rec.StartImage),
			EndImage:   e.imagePath(rec.EndImage),
		})
	}
	e.logger.Debug("search complete",
		logging.Int("k", k),
		logging.Int("results", len(results)),
		logging.String("build_id", gen.buildID),
	)
	return results, nil
}

func (e *Engine) imagePath(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return ""
	}
	path := filepath.Join(e.opts.ScreenshotsDir, name)
	if !fileutil.Exists(path) {
		return ""
	}
	return path
}

// acquire returns the cached generation, reloading when CURRENT has moved.
// Callers hold e.mu.
func (e *Engine) acquire(ctx context.Context) (*generation, error) {
	current, err := ingest.Current(e.opts.RAGDir)
	if err != nil {
		return nil, err
	}
	if e.loaded != nil && e.loaded.buildID == current.BuildID {
		return e.loaded, nil
	}

	gen, err := e.load(ctx, current)
	if err != nil {
		return nil, err
	}
	if e.loaded != nil {
		_ = e.loaded.store.Close()
	}
	e.loaded = gen
	e.logger.Info("generation loaded",
		logging.String("build_id", gen.buildID),
		logging.Int("records", gen.index.Len()),
	)
	return gen, nil
}

func (e *Engine) load(ctx context.Context, current ingest.Generation) (*generation, error) {
	index, err := vectorindex.Load(current.IndexPath())
	if err != nil {
		return nil, notReady("vector index unavailable", err)
	}
	store, err := ragstore.Open(ctx, current.StorePath())
	if err != nil {
		return nil, notReady("metadata store unavailable", err)
	}
	meta, err := store.Meta(ctx)
	if err != nil {
		_ = store.Close()
		if errors.Is(err, ragstore.ErrNoBuildMeta) {
			return nil, notReady("metadata store has no build stamp", err)
		}
		return nil, notReady("read build stamp", err)
	}

	switch {
	case meta.BuildID != index.BuildID || meta.BuildID != current.BuildID:
		_ = store.Close()
		return nil, notReady(fmt.Sprintf("build id mismatch: pointer %s, index %s, store %s",
			current.BuildID, index.BuildID, meta.BuildID), nil)
	case meta.RecordCount != index.Len():
		_ = store.Close()
		return nil, notReady(fmt.Sprintf("index holds %d vectors but store expects %d", index.Len(), meta.RecordCount), nil)
	case meta.Model != e.encoder.Model():
		_ = store.Close()
		return nil, notReady(fmt.Sprintf("index built with model %q, query encoder uses %q (re-run 'lectern index')",
			meta.Model, e.encoder.Model()), nil)
	}
	return &generation{buildID: current.BuildID, index: index, store: store, meta: meta}, nil
}
