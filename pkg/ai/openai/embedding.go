package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// ErrEmbeddingsDisabled is returned when no embedding endpoint is configured.
var ErrEmbeddingsDisabled = errors.New("openai embeddings are not configured")

// GenerateEmbedding creates a vector embedding for input. The vector is
// truncated or zero padded to the configured dimension.
func (c *GraphOpenAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if c.EmbeddingClient == nil {
		return nil, ErrEmbeddingsDisabled
	}

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(string(input))},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(ctx, body)
	if err != nil {
		c.modifyMetrics(ai.ModelMetrics{Requests: 1, Failures: 1})
		return nil, classify("embedding", err)
	}
	c.modifyMetrics(ai.ModelMetrics{
		Requests:    1,
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != 1 {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want 1", len(response.Data))
	}
	return fitDimension(response.Data[0].Embedding, c.embeddingDim), nil
}

func fitDimension(values []float64, dim int) []float32 {
	if dim <= 0 {
		dim = len(values)
	}
	vec := make([]float32, dim)
	for i := 0; i < dim && i < len(values); i++ {
		vec[i] = float32(values[i])
	}
	return vec
}
