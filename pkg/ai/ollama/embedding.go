package ollama

import (
	"context"
	"strings"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateEmbedding creates a vector embedding for input using the configured
// embedding model. Blank input yields a zero vector.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	if strings.TrimSpace(string(input)) == "" {
		return make([]float32, c.embeddingDim), nil
	}

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(ctx, req)
	if err != nil {
		c.modifyMetrics(ai.ModelMetrics{Requests: 1, Failures: 1})
		return nil, classify("embedding", err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:    1,
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	var vec []float32
	if len(res.Embeddings) > 0 {
		vec = res.Embeddings[0]
	}
	dim := c.embeddingDim
	if dim <= 0 {
		return vec, nil
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out, nil
}
