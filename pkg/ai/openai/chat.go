package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/openai/openai-go/v3"
)

func (c *GraphOpenAIClient) buildMessages(options ai.GenerateOptions, prompt string) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	return append(msgs, openai.UserMessage(prompt))
}

func (c *GraphOpenAIClient) complete(ctx context.Context, op string, body openai.ChatCompletionNewParams) (string, error) {
	if c.ChatClient == nil {
		return "", errors.New("openai chat client is not configured")
	}

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		c.modifyMetrics(ai.ModelMetrics{Requests: 1, Failures: 1})
		logger.Debug("[AI] Request failed", "op", op, "err", err)
		return "", classify(op, err)
	}
	duration := time.Since(start).Milliseconds()

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", &ai.MalformedResponseError{Name: op, Err: errors.New("no choices in response from model")}
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", &ai.MalformedResponseError{
			Name: op,
			Err:  fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason),
		}
	}
	return message, nil
}

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated completion as plain text.
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.3,
	}, opts...)

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    c.buildMessages(options, prompt),
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}

	return c.complete(ctx, "completion", body)
}

// GenerateCompletionWithFormat sends a prompt with a strict JSON schema
// derived from out and decodes the answer into out.
//
// Example:
//
//	var res ai.ClassificationResponse
//	err := client.GenerateCompletionWithFormat(ctx, "concept_relation", "...", prompt, &res)
func (c *GraphOpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      ai.GenerateSchema(out),
		Strict:      openai.Bool(true),
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    c.buildMessages(options, prompt),
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}

	message, err := c.complete(ctx, name, body)
	if err != nil {
		return err
	}
	return ai.DecodeStructured(name, message, out)
}
