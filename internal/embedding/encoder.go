package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"lectern/internal/logging"
	"lectern/internal/services"
)

// DefaultBatchSize is the number of texts sent per capability call.
const DefaultBatchSize = 32

// BatchEmbedder is the embedding capability.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Options configures an Encoder.
type Options struct {
	BatchSize   int
	Concurrency int
}

// Encoder produces unit-length vectors for text.
type Encoder struct {
	embedder BatchEmbedder
	opts     Options
	logger   *slog.Logger
}

// NewEncoder wraps embedder.
func NewEncoder(embedder BatchEmbedder, opts Options, logger *slog.Logger) *Encoder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Encoder{
		embedder: embedder,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "embedding"),
	}
}

// Model returns the identifier of the underlying embedding model.
func (e *Encoder) Model() string {
	return e.embedder.Model()
}

// Normalize applies the text normalisation used before embedding.
func Normalize(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// EncodeQuery embeds a single query string.
func (e *Encoder) EncodeQuery(ctx context.Context, query string) ([]float32, error) {
	text := Normalize(query)
	if text == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "embedding", "encode query", "query is empty", nil)
	}
	vectors, err := e.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, services.CapabilityFailure("embedding", "encode query", err)
	}
	if len(vectors) != 1 {
		return nil, services.Wrap(services.ErrCapabilityUnavailable, "embedding", "encode query",
			fmt.Sprintf("expected 1 vector, got %d", len(vectors)), nil)
	}
	if err := unitNormalize(vectors[0]); err != nil {
		return nil, services.Wrap(services.ErrCapabilityUnavailable, "embedding", "encode query", "", err)
	}
	return vectors[0], nil
}

// Encode embeds texts in batches and returns one unit vector per text in
// input order. All vectors share one dimension.
func (e *Encoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	normalized := make([]string, len(texts))
	for i, text := range texts {
		normalized[i] = Normalize(text)
		if normalized[i] == "" {
			return nil, services.Wrap(services.ErrInvalidInput, "embedding", "encode",
				fmt.Sprintf("text %d is empty", i), nil)
		}
	}

	batches := (len(normalized) + e.opts.BatchSize - 1) / e.opts.BatchSize
	out := make([][]float32, len(normalized))
	var done atomic.Int64
	progress := logging.NewProgressSampler(20)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.Concurrency)
	for b := range batches {
		lo := b * e.opts.BatchSize
		hi := min(lo+e.opts.BatchSize, len(normalized))
		group.Go(func() error {
			vectors, err := e.embedder.EmbedBatch(gctx, normalized[lo:hi])
			if err != nil {
				return services.CapabilityFailure("embedding", fmt.Sprintf("embed batch %d", b+1), err)
			}
			if len(vectors) != hi-lo {
				return services.Wrap(services.ErrCapabilityUnavailable, "embedding", "embed batch",
					fmt.Sprintf("batch %d: expected %d vectors, got %d", b+1, hi-lo, len(vectors)), nil)
			}
			for i, vec := range vectors {
				if err := unitNormalize(vec); err != nil {
					return services.Wrap(services.ErrCapabilityUnavailable, "embedding", "embed batch",
						fmt.Sprintf("text %d", lo+i), err)
				}
				out[lo+i] = vec
			}
			n := int(done.Add(1))
			if progress.ShouldLog("embedding", n, batches) {
				e.logger.Info("embedding progress",
					logging.Int("batches_done", n),
					logging.Int("batches_total", batches),
				)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, vec := range out {
		if len(vec) != dim {
			return nil, services.Wrap(services.ErrCapabilityUnavailable, "embedding", "encode",
				fmt.Sprintf("vector %d has dimension %d, want %d", i, len(vec), dim), nil)
		}
	}
	return out, nil
}

func unitNormalize(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector")
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	n := math.Sqrt(sum)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("vector norm %v cannot be normalised", n)
	}
	for i, v := range vec {
		vec[i] = float32(float64(v) / n)
	}
	return nil
}
