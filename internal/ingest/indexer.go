package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"lectern/internal/logging"
	"lectern/internal/ragstore"
	"lectern/internal/services"
	"lectern/internal/timeindex"
	"lectern/internal/vectorindex"
)

// State is the indexer lifecycle stage.
type State string

const (
	StateEmpty           State = "empty"
	StateSegmentsLoaded  State = "segments-loaded"
	StateEmbeddingsBuilt State = "embeddings-built"
	StateIndexWritten    State = "index-written"
)

// Observer receives state transitions.
type Observer func(State)

// RowSource supplies time index rows in stored order.
type RowSource interface {
	ReadAll() ([]timeindex.Row, error)
}

// Encoder turns texts into unit vectors in input order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Options configures an Indexer.
type Options struct {
	RAGDir   string
	Observer Observer
	// NewBuildID and Now are overridable for tests.
	NewBuildID func() string
	Now        func() time.Time
}

// Summary describes a committed generation.
type Summary struct {
	BuildID    string
	Records    int
	Dimension  int
	Model      string
	Generation Generation
	Pruned     []string
}

// Indexer builds and commits generations.
type Indexer struct {
	source  RowSource
	encoder Encoder
	opts    Options
	logger  *slog.Logger
	state   State
}

// New constructs an indexer.
func New(source RowSource, encoder Encoder, opts Options, logger *slog.Logger) *Indexer {
	if opts.NewBuildID == nil {
		opts.NewBuildID = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Indexer{
		source:  source,
		encoder: encoder,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "ingest"),
		state:   StateEmpty,
	}
}

// State returns the last reached state.
func (ix *Indexer) State() State {
	return ix.state
}

func (ix *Indexer) transition(s State) {
	ix.state = s
	ix.logger.Debug("indexer state", logging.String("state", string(s)))
	if ix.opts.Observer != nil {
		ix.opts.Observer(s)
	}
}

func abort(op, msg string, err error) error {
	return services.Wrap(services.ErrIngestionAborted, "ingest", op, msg, err)
}

// Run embeds every row with text and commits a new generation. Any failure
// before the commit removes the partial generation and leaves the live one
// untouched.
func (ix *Indexer) Run(ctx context.Context) (Summary, error) {
	ix.transition(StateEmpty)
	logger := logging.WithContext(ctx, ix.logger)

	rows, err := ix.source.ReadAll()
	if err != nil {
		return Summary{}, abort("load segments", "", err)
	}
	records, texts := recordsFromRows(rows)
	if len(records) == 0 {
		return Summary{}, abort("load segments", fmt.Sprintf("no rows with text among %d", len(rows)), nil)
	}
	ix.transition(StateSegmentsLoaded)
	logger.Info("segments loaded",
		logging.Int("rows", len(rows)),
		logging.Int("records", len(records)),
	)

	vectors, err := ix.encoder.Encode(ctx, texts)
	if err != nil {
		return Summary{}, abort("embed segments", "", err)
	}
	if len(vectors) != len(records) {
		return Summary{}, abort("embed segments",
			fmt.Sprintf("got %d vectors for %d records", len(vectors), len(records)), nil)
	}
	dim := len(vectors[0])
	ix.transition(StateEmbeddingsBuilt)

	buildID := ix.opts.NewBuildID()
	gen := GenerationFor(ix.opts.RAGDir, buildID)
	if err := os.MkdirAll(gen.Dir, 0o755); err != nil {
		return Summary{}, abort("stage generation", gen.Dir, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(gen.Dir)
		}
	}()

	if err := ix.writeIndex(gen, vectors); err != nil {
		return Summary{}, err
	}
	if err := ix.writeStore(ctx, gen, records, dim); err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, abort("commit generation", "", err)
	}
	if err := commit(ix.opts.RAGDir, gen); err != nil {
		return Summary{}, abort("commit generation", "", err)
	}
	committed = true
	ix.transition(StateIndexWritten)

	summary := Summary{
		BuildID:    buildID,
		Records:    len(records),
		Dimension:  dim,
		Model:      ix.encoder.Model(),
		Generation: gen,
	}
	pruned, err := prune(ix.opts.RAGDir, buildID)
	summary.Pruned = pruned
	if err != nil {
		logging.WarnWithContext(logger, "old generations not fully pruned", "generation_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove stale gen-* directories manually"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}
	logger.Info("generation committed",
		logging.String("build_id", buildID),
		logging.Int("records", len(records)),
		logging.Int("dimension", dim),
		logging.Int("pruned", len(pruned)),
	)
	return summary, nil
}

func (ix *Indexer) writeIndex(gen Generation, vectors [][]float32) error {
	index := vectorindex.NewFlat(len(vectors[0]))
	index.BuildID = gen.BuildID
	if _, err := index.Add(vectors...); err != nil {
		return abort("build index", "", err)
	}
	if err := index.Save(gen.IndexPath()); err != nil {
		return abort("write index", "", err)
	}
	return nil
}

func (ix *Indexer) writeStore(ctx context.Context, gen Generation, records []ragstore.Record, dim int) error {
	store, err := ragstore.Create(ctx, gen.StorePath())
	if err != nil {
		return abort("write store", "", err)
	}
	defer store.Close()
	if err := store.InsertRecords(ctx, records); err != nil {
		return abort("write store", "", err)
	}
	meta := ragstore.BuildMeta{
		BuildID:     gen.BuildID,
		Model:       ix.encoder.Model(),
		Dimension:   dim,
		RecordCount: len(records),
		CreatedAt:   ix.opts.Now(),
	}
	if err := store.WriteMeta(ctx, meta); err != nil {
		return abort("write store", "", err)
	}
	if err := store.Close(); err != nil {
		return abort("write store", "", err)
	}
	return nil
}

// recordsFromRows keeps rows whose trimmed text is non-empty and assigns
// dense vector ids in stored order.
func recordsFromRows(rows []timeindex.Row) ([]ragstore.Record, []string) {
	var records []ragstore.Record
	var texts []string
	for _, row := range rows {
		text := strings.TrimSpace(row.Text)
		if text == "" {
			continue
		}
		records = append(records, ragstore.Record{
			VectorID:    int64(len(records)),
			MediaID:     row.MediaID,
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
			Speaker:     row.Speaker,
			Content:     text,
			Language:    row.Language,
			ProcessedAt: row.ProcessedAt,
			StartImage:  row.StartImage,
			EndImage:    row.EndImage,
		})
		texts = append(texts, text)
	}
	return records, texts
}
