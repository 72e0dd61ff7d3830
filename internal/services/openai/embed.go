package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedBatch returns one vector per text, in input order. Vectors are
// returned as the API produced them; normalisation is the caller's concern.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "openai embed"
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%s: input %d is empty", op, i)
		}
	}
	req := embeddingRequest{
		Model:          c.cfg.Model,
		Input:          texts,
		Dimensions:     c.cfg.Dimensions,
		EncodingFormat: "float",
	}

	payload, err := c.post(ctx, op, "embeddings", jsonBody(req))
	if err != nil {
		return nil, err
	}
	var parsed embeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w (payload snippet: %s)", op, err, snippet(string(payload)))
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%s: expected %d vectors, got %d", op, len(texts), len(parsed.Data))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float32, len(texts))
	dim := -1
	for i, item := range parsed.Data {
		if item.Index != i {
			return nil, fmt.Errorf("%s: response indices are not 0..%d", op, len(texts)-1)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%s: vector %d is empty", op, i)
		}
		if dim >= 0 && len(item.Embedding) != dim {
			return nil, fmt.Errorf("%s: vector %d has dimension %d, want %d", op, i, len(item.Embedding), dim)
		}
		dim = len(item.Embedding)
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
