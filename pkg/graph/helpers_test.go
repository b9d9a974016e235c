package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store/memory"
)

var (
	titleRe = regexp.MustCompile(`Title: (.*)\n`)
	newRe   = regexp.MustCompile(`NEW concept: (.*)\n`)
	oldRe   = regexp.MustCompile(`OLD concept: (.*)\n`)
)

// fakeOracle answers extraction by paper title and classification by the
// (new, old) concept names. Unknown titles extract nothing; unknown pairs
// classify as none.
type fakeOracle struct {
	mu          sync.Mutex
	extractions map[string]ai.ExtractionResponse
	extractErrs map[string]error
	relations   map[[2]string]ai.ClassificationResponse
	classifyErr map[[2]string]error
	delay       map[string]time.Duration
	calls       map[string]int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		extractions: map[string]ai.ExtractionResponse{},
		extractErrs: map[string]error{},
		relations:   map[[2]string]ai.ClassificationResponse{},
		classifyErr: map[[2]string]error{},
		delay:       map[string]time.Duration{},
		calls:       map[string]int{},
	}
}

func (f *fakeOracle) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeOracle) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not scripted")
}

func (f *fakeOracle) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()

	switch name {
	case "paper_extraction":
		title := firstGroup(titleRe, prompt)
		f.mu.Lock()
		delay, err, res := f.delay[title], f.extractErrs[title], f.extractions[title]
		f.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
		*out.(*ai.ExtractionResponse) = res
		return nil
	case "concept_relation":
		pair := [2]string{firstGroup(newRe, prompt), firstGroup(oldRe, prompt)}
		f.mu.Lock()
		err, res, ok := f.classifyErr[pair], f.relations[pair]
		f.mu.Unlock()
		if err != nil {
			return err
		}
		if !ok {
			res = ai.ClassificationResponse{Relation: ai.RelationNone, Confidence: 0.9}
		}
		*out.(*ai.ClassificationResponse) = res
		return nil
	}
	return fmt.Errorf("unexpected call %s", name)
}

func (f *fakeOracle) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("no embeddings")
}

func (f *fakeOracle) ResetMetrics()               {}
func (f *fakeOracle) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func testClient() *GraphClient {
	return NewGraphClient(NewGraphClientParams{
		ReferencesPerStep: 10,
		ExpandPerStep:     2,
		CandidateLimit:    5,
		ParallelPapers:    3,
		PaperTimeout:      5 * time.Second,
		Backoff:           &util.Backoff{MaxAttempts: 1},
	})
}

func seedPapers(st *memory.Store, papers ...common.Paper) {
	for _, p := range papers {
		if _, _, err := st.EnsurePaper(context.Background(), p); err != nil {
			panic(err)
		}
	}
}

func item(name, description string, confidence float64) ai.ExtractedItem {
	return ai.ExtractedItem{Name: name, Description: description, Category: "architecture", Confidence: confidence}
}
