package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/config"
	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/citation"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
	"github.com/OFFIS-RIT/litgraph/pkg/store/memory"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle extracts one concept from every paper except those whose
// title contains "broken".
type stubOracle struct{}

func (stubOracle) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("unused")
}

func (stubOracle) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	switch res := out.(type) {
	case *ai.ExtractionResponse:
		if strings.Contains(prompt, "broken") {
			return &ai.MalformedResponseError{Name: name, Err: errors.New("not json")}
		}
		*res = ai.ExtractionResponse{Concepts: []ai.ExtractedItem{{
			Name:        "Self-Attention",
			Description: "Attention of a sequence over its own positions to build representations.",
			Category:    "mechanism",
			Confidence:  0.9,
		}}}
		return nil
	case *ai.ClassificationResponse:
		*res = ai.ClassificationResponse{Relation: ai.RelationNone, Confidence: 0.9}
		return nil
	}
	return errors.New("unexpected call")
}

func (stubOracle) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("no embeddings")
}

func (stubOracle) ResetMetrics()               {}
func (stubOracle) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type reportBucket struct {
	objects map[string][]byte
}

func (b *reportBucket) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := b.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *reportBucket) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	b.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func testApp(t *testing.T, papers ...common.Paper) (*App, *reportBucket) {
	t.Helper()
	refs := map[string][]string{}
	for i := 1; i < len(papers); i++ {
		refs[papers[0].ID] = append(refs[papers[0].ID], papers[i].ID)
	}
	bucket := &reportBucket{objects: map[string][]byte{}}
	return &App{
		Cfg:   config.Config{S3: config.S3Config{Bucket: "litgraph"}},
		AI:    stubOracle{},
		Store: memory.New(),
		Fetcher: citation.NewSnapshot(citation.SnapshotFile{
			Papers:     papers,
			References: refs,
		}),
		Graph: graph.NewGraphClient(graph.NewGraphClientParams{
			ParallelPapers: 2,
			PaperTimeout:   5 * time.Second,
			Backoff:        &util.Backoff{MaxAttempts: 1},
		}),
		Objects: bucket,
	}, bucket
}

func TestExecuteRunSettlesRun(t *testing.T) {
	a, bucket := testApp(t,
		common.Paper{ID: "seed", Title: "Seed paper", CitationCount: 10},
		common.Paper{ID: "ref", Title: "Referenced paper", CitationCount: 5},
	)
	ctx := context.Background()

	result, err := a.ExecuteRun(ctx, queue.RunRequest{RunID: "run-1", Seed: "seed", Limit: 2})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.EqualValues(t, 2, result.Stats.Attempted)

	run, err := a.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, common.RunCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.EqualValues(t, 2, run.Stats.Succeeded)

	tasks, err := a.Store.ListTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, common.TaskCompleted, task.State)
	}

	var report RunReport
	require.NoError(t, json.Unmarshal(bucket.objects["runs/run-1/report.json"], &report))
	assert.Equal(t, "run-1", report.Run.ID)
	assert.Len(t, report.Tasks, 2)
}

func TestExecuteRunRecordsPaperFailures(t *testing.T) {
	a, _ := testApp(t,
		common.Paper{ID: "seed", Title: "Seed paper"},
		common.Paper{ID: "bad", Title: "A broken paper"},
	)
	ctx := context.Background()

	result, err := a.ExecuteRun(ctx, queue.RunRequest{RunID: "run-2", Seed: "seed", Limit: 2})
	require.NoError(t, err, "paper failures must not fail the run message")
	assert.True(t, result.Failed())

	run, err := a.Store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, common.RunFailed, run.Status)
	assert.Equal(t, "1 of 2 papers failed", run.Error)
}

func TestExecuteRunSkipsSettledRun(t *testing.T) {
	a, _ := testApp(t, common.Paper{ID: "seed", Title: "Seed paper"})
	ctx := context.Background()

	_, err := a.ExecuteRun(ctx, queue.RunRequest{RunID: "run-3", Seed: "seed", Limit: 1})
	require.NoError(t, err)

	again, err := a.ExecuteRun(ctx, queue.RunRequest{RunID: "run-3", Seed: "seed", Limit: 1})
	require.NoError(t, err)
	assert.Empty(t, again.Outcomes)
	assert.EqualValues(t, 1, again.Stats.Attempted)
}

func TestValidatePaper(t *testing.T) {
	a, _ := testApp(t, common.Paper{ID: "seed", Title: "Seed paper"})
	ctx := context.Background()

	_, err := a.ValidatePaper(ctx, "seed")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = a.ExecuteRun(ctx, queue.RunRequest{RunID: "run-4", Seed: "seed", Limit: 1})
	require.NoError(t, err)

	report, err := a.ValidatePaper(ctx, "seed")
	require.NoError(t, err)
	assert.Equal(t, "seed", report.PaperID)
	assert.True(t, report.ConsistencyOK)
}

func TestNewAIClientPicksAdapter(t *testing.T) {
	client, err := NewAIClient(config.AIConfig{Adapter: "openai", ChatKey: "k", ExtractionModel: "m"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestNewFetcherUsesSnapshot(t *testing.T) {
	_, _, err := newFetcher(config.CitationConfig{SnapshotPath: t.TempDir() + "/missing.json"})
	assert.Error(t, err)

	f, closeFn, err := newFetcher(config.CitationConfig{RPS: 1})
	require.NoError(t, err)
	defer closeFn()
	_, ok := f.(*citation.SemanticScholar)
	assert.True(t, ok)
}
