package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const defaultContext = 4096

// contextSize estimates num_ctx for prompt. Returns 0 when the model default
// is large enough.
func contextSize(prompt string) (int, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return 0, err
	}
	tokens := len(enc.Encode(prompt, nil, nil)) + 1024
	if tokens <= defaultContext {
		return 0, nil
	}
	return tokens, nil
}

func (c *GraphOllamaClient) chat(ctx context.Context, op string, options ai.GenerateOptions, prompt string, format json.RawMessage) (string, error) {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}
	// Without the encoder the server default context applies.
	if numCtx, err := contextSize(prompt); err != nil {
		logger.Debug("[AI] Token encoder unavailable", "err", err)
	} else if numCtx > 0 {
		req.Options["num_ctx"] = numCtx
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		c.modifyMetrics(ai.ModelMetrics{Requests: 1, Failures: 1})
		return "", classify(op, err)
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	if final.Message.Content == "" {
		return "", &ai.MalformedResponseError{Name: op, Err: errors.New("empty response from model")}
	}
	return final.Message.Content, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.3,
	}, opts...)
	return c.chat(ctx, "completion", options, prompt, nil)
}

// GenerateCompletionWithFormat enforces a JSON schema and decodes into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	rv := reflect.ValueOf(out)
	if out == nil || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	content, err := c.chat(ctx, name, options, prompt, formatBytes)
	if err != nil {
		return err
	}
	return ai.DecodeStructured(name, content, out)
}
