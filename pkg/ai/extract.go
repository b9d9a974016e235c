package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// ExtractedItem is a concept or method as returned by the model.
type ExtractedItem struct {
	Name        string  `json:"name" jsonschema_description:"Short canonical name of the item."`
	Description string  `json:"description" jsonschema_description:"One or two sentences describing the item."`
	Category    string  `json:"category" jsonschema:"enum=architecture,enum=algorithm,enum=technique,enum=theory,enum=task,enum=other" jsonschema_description:"Category of the item."`
	Confidence  float64 `json:"confidence" jsonschema:"minimum=0,maximum=1" jsonschema_description:"Certainty that the item is correct."`
}

// ExtractedDataset is a dataset or benchmark named by the paper.
type ExtractedDataset struct {
	Name        string `json:"name" jsonschema_description:"Exact dataset name as written in the paper."`
	Description string `json:"description" jsonschema_description:"What the dataset contains."`
}

// ExtractedMetric is a reported evaluation result.
type ExtractedMetric struct {
	Name    string `json:"name" jsonschema_description:"Metric name, e.g. accuracy or BLEU."`
	Value   string `json:"value" jsonschema_description:"Reported value as written."`
	Dataset string `json:"dataset" jsonschema_description:"Dataset the value was measured on, if stated."`
}

// ExtractionResponse is the structured result of the raw extraction call.
type ExtractionResponse struct {
	Concepts []ExtractedItem    `json:"concepts" jsonschema_description:"Concepts introduced or built on by the paper."`
	Methods  []ExtractedItem    `json:"methods" jsonschema_description:"Methods applied by the paper."`
	Datasets []ExtractedDataset `json:"datasets" jsonschema_description:"Datasets the paper evaluates on."`
	Metrics  []ExtractedMetric  `json:"metrics" jsonschema_description:"Reported evaluation results."`
}

// Validate rejects answers whose scores fall outside [0,1]. Missing names or
// descriptions are left for the caller's filtering.
func (r *ExtractionResponse) Validate() error {
	for i, c := range r.Concepts {
		if !validScore(c.Confidence) {
			return fmt.Errorf("concepts[%d]: confidence %v out of range", i, c.Confidence)
		}
	}
	for i, m := range r.Methods {
		if !validScore(m.Confidence) {
			return fmt.Errorf("methods[%d]: confidence %v out of range", i, m.Confidence)
		}
	}
	return nil
}

func validScore(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// ExtractionInput is the paper text handed to the extraction prompt.
type ExtractionInput struct {
	Title    string
	Abstract string
	FullText string
}

// BuildExtractionPrompt renders ExtractionPrompt for in.
func BuildExtractionPrompt(in ExtractionInput) string {
	categories := make([]string, len(common.Categories))
	for i, c := range common.Categories {
		categories[i] = string(c)
	}
	return fmt.Sprintf(
		ExtractionPrompt,
		in.Title,
		in.Abstract,
		in.FullText,
		strings.Join(categories, ", "),
	)
}

// CallExtractionAI runs the raw extraction call, retrying transient failures
// with backoff. Malformed answers are returned immediately.
func CallExtractionAI(
	ctx context.Context,
	aiClient GraphAIClient,
	in ExtractionInput,
	backoff util.Backoff,
	opts ...GenerateOption,
) (*ExtractionResponse, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	prompt := BuildExtractionPrompt(in)
	return util.RetryBackoff(ctx, backoff.WithRetryable(IsTransient), func(ctx context.Context) (*ExtractionResponse, error) {
		var res ExtractionResponse
		err := aiClient.GenerateCompletionWithFormat(
			ctx,
			"paper_extraction",
			"Concepts, methods, datasets and metrics extracted from a paper.",
			prompt,
			&res,
			opts...,
		)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
}
