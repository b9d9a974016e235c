package ollama

import (
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements ai.GraphAIClient against a local or hosted
// Ollama server. reqLock bounds the number of in-flight requests so a busy
// worker pool does not overload a single GPU host.
type GraphOllamaClient struct {
	embeddingModel  string
	extractionModel string
	embeddingDim    int

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel  string
	ExtractionModel string
	EmbeddingDim    int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient connects to the Ollama server at BaseURL, or the
// OLLAMA_HOST default when empty.
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.ApiKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	var cli *api.Client
	if u != nil {
		cli = api.NewClient(u, httpClient)
	} else {
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}

	return &GraphOllamaClient{
		embeddingModel:  params.EmbeddingModel,
		extractionModel: params.ExtractionModel,
		embeddingDim:    params.EmbeddingDim,

		reqLock: semaphore.NewWeighted(maxReq),

		Client: cli,
	}, nil
}

func classify(op string, err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.Classify(op, statusErr.StatusCode, err)
	}
	return ai.Classify(op, 0, err)
}
