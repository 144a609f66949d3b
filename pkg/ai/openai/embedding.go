package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"paperkg/pkg/ai"
	"paperkg/pkg/common"
)

// GenerateEmbedding embeds a single input text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateEmbeddings embeds a batch of texts in a single provider request,
// padding blank inputs to a zero vector rather than sending them (the
// provider rejects empty strings).
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if c.Embed == nil {
		return nil, fmt.Errorf("openai embedding client not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	idxMap := make([]int, 0, len(texts))
	nonEmpty := make([]string, 0, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, common.EmbeddingDimensions)
			continue
		}
		idxMap = append(idxMap, i)
		nonEmpty = append(nonEmpty, t)
	}
	if len(nonEmpty) == 0 {
		return out, nil
	}

	start := time.Now()
	resp, err := c.Embed.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: nonEmpty},
		Model: c.embedModel,
	})
	if err != nil {
		return nil, err
	}
	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(resp.Usage.PromptTokens),
		TotalTokens: int(resp.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(resp.Data) != len(nonEmpty) {
		return nil, fmt.Errorf("openai embeddings: result size mismatch: got %d want %d", len(resp.Data), len(nonEmpty))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(nonEmpty) {
			return nil, fmt.Errorf("openai embeddings: index out of range: %d", d.Index)
		}
		out[idxMap[d.Index]] = toFixedDimVector(d.Embedding, common.EmbeddingDimensions)
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("openai embeddings: missing result for index %d", i)
		}
	}
	return out, nil
}

func toFixedDimVector(v []float64, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim && i < len(v); i++ {
		out[i] = float32(v[i])
	}
	return out
}

