package openai

import (
	"errors"
	"sync"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient talks to any OpenAI-compatible endpoint. Chat and
// embedding traffic may go to different hosts.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel  string
	extractionModel string
	embeddingDim    int

	chatURL string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for
// creating a new GraphOpenAIClient.
//
// ExtractionModel is used for both extraction and pair classification.
// EmbeddingDim truncates or pads vectors to the store's column width.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel  string
	ExtractionModel string
	EmbeddingDim    int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string
}

// NewGraphOpenAIClient creates a client from params. Embeddings are disabled
// when no embedding key is configured.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ExtractionModel: "gpt-4o-mini",
//		EmbeddingModel:  "text-embedding-3-small",
//		EmbeddingDim:    1536,
//		ChatKey:         os.Getenv("AI_CHAT_KEY"),
//		EmbeddingKey:    os.Getenv("AI_EMBED_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		extractionModel: params.ExtractionModel,
		embeddingDim:    params.EmbeddingDim,
		chatURL:         params.ChatURL,

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	// Retries are driven by the pipeline's backoff policy.
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// classify maps SDK errors onto the ai error taxonomy.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.Classify(op, apiErr.StatusCode, err)
	}
	return ai.Classify(op, 0, err)
}

// ResetMetrics clears the accumulated usage counters.
func (c *GraphOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns a copy of the accumulated usage counters.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *GraphOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.Requests += m.Requests
	c.metrics.Failures += m.Failures
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
	if c.metrics.DurationMs > 0 {
		c.metrics.TokenPerSecond = float32(c.metrics.OutputTokens) / (float32(c.metrics.DurationMs) / 1000)
	}
}
