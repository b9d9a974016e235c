package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// scriptedClient answers GenerateCompletionWithFormat from a list of raw
// responses or errors, one per call.
type scriptedClient struct {
	answers []string
	errs    []error
	calls   int
	prompts []string
}

func (c *scriptedClient) GenerateCompletion(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	return "", nil
}

func (c *scriptedClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...GenerateOption) error {
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return c.errs[i]
	}
	return DecodeStructured(name, c.answers[i], out)
}

func (c *scriptedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, nil
}

func (c *scriptedClient) ResetMetrics()            {}
func (c *scriptedClient) GetMetrics() ModelMetrics { return ModelMetrics{} }

func TestCallClassifyAI_RetriesTransientOnly(t *testing.T) {
	client := &scriptedClient{
		answers: []string{"", `{"relation":"improves_on","improvement_kind":"speed","confidence":0.8,"rationale":"faster"}`},
		errs:    []error{&TransientError{Op: "chat", StatusCode: 429}},
	}
	newer := common.Entity{Name: "FlashAttention", Description: "IO-aware exact attention."}
	older := common.Entity{Name: "Attention", Description: "Softmax attention."}

	res, err := CallClassifyAI(context.Background(), client, newer, older, util.Backoff{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("CallClassifyAI() error = %v", err)
	}
	if res.Relation != RelationImprovesOn || res.ImprovementKind != "speed" {
		t.Fatalf("unexpected response %+v", res)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", client.calls)
	}
}

func TestCallClassifyAI_MalformedNotRetried(t *testing.T) {
	client := &scriptedClient{answers: []string{`{"relation":"improves_on","confidence":0.8}`, ""}}
	_, err := CallClassifyAI(context.Background(), client, common.Entity{}, common.Entity{}, util.Backoff{MaxAttempts: 3})
	if !IsMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("malformed answer retried: %d calls", client.calls)
	}
}

func TestCallExtractionAI_PromptCarriesPaper(t *testing.T) {
	client := &scriptedClient{answers: []string{`{"concepts":[],"methods":[],"datasets":[],"metrics":[]}`}}
	in := ExtractionInput{Title: "Attention Is All You Need", Abstract: "We propose the Transformer."}
	res, err := CallExtractionAI(context.Background(), client, in, util.Backoff{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("CallExtractionAI() error = %v", err)
	}
	if len(res.Concepts) != 0 {
		t.Fatalf("expected no concepts, got %+v", res.Concepts)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected one prompt")
	}
	p := client.prompts[0]
	for _, want := range []string{"Attention Is All You Need", "We propose the Transformer.", "architecture, algorithm"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
