package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store/memory"
)

type stateLog struct {
	mu     sync.Mutex
	states map[string][]common.TaskState
}

func newStateLog() *stateLog {
	return &stateLog{states: map[string][]common.TaskState{}}
}

func (l *stateLog) SaveTask(ctx context.Context, task common.Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[task.PaperID] = append(l.states[task.PaperID], task.State)
	return nil
}

func (l *stateLog) of(paperID string) []common.TaskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.states[paperID])
}

func fivePapers(t *testing.T) (*memory.Store, *fakeOracle, []common.PaperRef) {
	t.Helper()
	st := memory.New()
	oracle := newFakeOracle()
	var refs []common.PaperRef
	for i := 1; i <= 5; i++ {
		p := common.Paper{ID: fmt.Sprintf("p%d", i), Title: fmt.Sprintf("Paper %d", i)}
		seedPapers(st, p)
		oracle.extractions[p.Title] = ai.ExtractionResponse{
			Concepts: []ai.ExtractedItem{item(fmt.Sprintf("Concept %d", i), longDescription, 0.9)},
		}
		refs = append(refs, p.Ref())
	}
	return st, oracle, refs
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	st, oracle, refs := fivePapers(t)
	oracle.extractErrs["Paper 3"] = errors.New("model unavailable")
	log := newStateLog()

	res := NewCoordinator(testClient(), oracle, st, WithTaskRecorder(log)).
		ProcessBatch(context.Background(), "run-1", refs)

	if res.Stats.Attempted != 5 || res.Stats.Succeeded != 4 || res.Stats.Failed != 1 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if !res.Failed() {
		t.Fatal("batch should report a failure")
	}
	if len(res.Outcomes) != 5 {
		t.Fatalf("outcomes = %d", len(res.Outcomes))
	}
	for i, out := range res.Outcomes {
		if out.Task.PaperID != refs[i].ID || out.Task.Position != i {
			t.Errorf("outcome %d out of order: %+v", i, out.Task)
		}
		if i == 2 {
			if out.Err == nil || out.Task.State != common.TaskFailed || out.Task.Error == "" {
				t.Errorf("paper 3 should fail: %+v", out)
			}
			if out.Validation == nil {
				t.Error("later stages still run after an oracle failure")
			}
			continue
		}
		if out.Err != nil || out.Task.State != common.TaskCompleted {
			t.Errorf("paper %d should succeed: %v", i+1, out.Err)
		}
		if out.Task.EntitiesCreated != 1 || out.Task.EdgesCreated < 1 {
			t.Errorf("paper %d task counters %+v", i+1, out.Task)
		}
	}

	concepts, _ := st.ListAll(context.Background(), common.EntityConcept)
	if len(concepts) != 4 {
		t.Fatalf("expected concepts from the 4 healthy papers, got %d", len(concepts))
	}
	if res.Stats.EntitiesCreated != 4 {
		t.Errorf("EntitiesCreated = %d", res.Stats.EntitiesCreated)
	}

	if got := log.of("p3"); !slices.Equal(got, []common.TaskState{common.TaskPending, common.TaskProcessing, common.TaskFailed}) {
		t.Errorf("p3 states = %v", got)
	}
	if got := log.of("p1"); !slices.Equal(got, []common.TaskState{common.TaskPending, common.TaskProcessing, common.TaskCompleted}) {
		t.Errorf("p1 states = %v", got)
	}
}

func TestProcessBatchTimesOutSlowPapers(t *testing.T) {
	st, oracle, refs := fivePapers(t)
	oracle.delay["Paper 2"] = time.Second
	g := NewGraphClient(NewGraphClientParams{
		ParallelPapers: 5,
		PaperTimeout:   100 * time.Millisecond,
		Backoff:        &util.Backoff{MaxAttempts: 1},
	})

	started := time.Now()
	res := NewCoordinator(g, oracle, st).ProcessBatch(context.Background(), "run-1", refs)

	if elapsed := time.Since(started); elapsed > 900*time.Millisecond {
		t.Fatalf("slow paper was not cut off: %v", elapsed)
	}
	if res.Stats.Failed != 1 || res.Stats.Succeeded != 4 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if err := res.Outcomes[1].Err; !IsTimeout(err) {
		t.Fatalf("expected a timeout, got %v", err)
	}
}

type inflightOracle struct {
	*fakeOracle
	current, peak atomic.Int32
}

func (o *inflightOracle) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	n := o.current.Add(1)
	defer o.current.Add(-1)
	for {
		peak := o.peak.Load()
		if n <= peak || o.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return o.fakeOracle.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...)
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	st, fake, refs := fivePapers(t)
	oracle := &inflightOracle{fakeOracle: fake}

	res := NewCoordinator(testClient(), oracle, st).ProcessBatch(context.Background(), "run-1", refs)
	if res.Stats.Succeeded != 5 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	if peak := oracle.peak.Load(); peak > 3 {
		t.Fatalf("peak concurrency %d exceeds 3", peak)
	}
}

func TestProcessBatchLeases(t *testing.T) {
	st, oracle, refs := fivePapers(t)
	log := newStateLog()
	var released atomic.Int32
	busy := errors.New("lease busy")
	lease := func(ctx context.Context, paperID string) (context.Context, func(), error) {
		if paperID == "p4" {
			return nil, nil, busy
		}
		return ctx, func() { released.Add(1) }, nil
	}

	res := NewCoordinator(testClient(), oracle, st, WithLease(lease), WithTaskRecorder(log)).
		ProcessBatch(context.Background(), "run-1", refs)

	if res.Stats.Failed != 1 || !errors.Is(res.Outcomes[3].Err, busy) {
		t.Fatalf("p4 should fail on its lease: %+v", res.Outcomes[3])
	}
	if got := released.Load(); got != 4 {
		t.Errorf("released %d leases, want 4", got)
	}
	if got := log.of("p4"); !slices.Equal(got, []common.TaskState{common.TaskPending, common.TaskFailed}) {
		t.Errorf("p4 states = %v", got)
	}
	if oracle.count("paper_extraction") != 4 {
		t.Errorf("leased-out paper must not be extracted")
	}
}

type panickyStore struct {
	*memory.Store
	paperID string
}

func (s *panickyStore) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	if id == s.paperID {
		panic("corrupt row")
	}
	return s.Store.GetPaper(ctx, id)
}

func TestProcessBatchRecoversPanics(t *testing.T) {
	mem, oracle, refs := fivePapers(t)
	st := &panickyStore{Store: mem, paperID: "p5"}

	res := NewCoordinator(testClient(), oracle, st).ProcessBatch(context.Background(), "run-1", refs)
	if res.Stats.Failed != 1 || res.Outcomes[4].Err == nil {
		t.Fatalf("panic not converted into a failure: %+v", res.Stats)
	}
	if res.Outcomes[4].Task.State != common.TaskFailed {
		t.Errorf("state = %s", res.Outcomes[4].Task.State)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	res := NewCoordinator(testClient(), newFakeOracle(), memory.New()).ProcessBatch(context.Background(), "run-1", nil)
	if res.Stats.Attempted != 0 || len(res.Outcomes) != 0 || res.Failed() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunTraversesAndProcesses(t *testing.T) {
	st := memory.New()
	oracle := newFakeOracle()
	oracle.extractions["Seed"] = ai.ExtractionResponse{
		Concepts: []ai.ExtractedItem{item("Residual Connection", longDescription, 0.9)},
	}
	oracle.extractions["r10"] = ai.ExtractionResponse{
		Concepts: []ai.ExtractedItem{item("Dense Connection", longDescription, 0.9)},
	}
	oracle.relations[[2]string{"Dense Connection", "Residual Connection"}] = improvesOn("quality")

	g := NewGraphClient(NewGraphClientParams{
		ReferencesPerStep: 10,
		ExpandPerStep:     2,
		ParallelPapers:    1,
		PaperTimeout:      5 * time.Second,
		Backoff:           &util.Backoff{MaxAttempts: 1},
	})
	res := NewCoordinator(g, oracle, st).Run(context.Background(), eightRefs(), "run-1", common.PaperRef{ID: "seed"}, 3)

	if res.Stats.Attempted != 3 || res.Stats.Succeeded != 3 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	var order []string
	for _, out := range res.Outcomes {
		order = append(order, out.Task.PaperID)
	}
	if want := []string{"seed", "r10", "r9"}; !slices.Equal(order, want) {
		t.Fatalf("processing order = %v, want %v", order, want)
	}

	// 2 cites + 2 introduces + 1 improves.
	if res.Stats.EdgesCreated != 5 {
		t.Errorf("EdgesCreated = %d, want 5", res.Stats.EdgesCreated)
	}
	improvements, _ := st.ListEdges(context.Background(), common.EdgeConceptImproves)
	if len(improvements) != 1 {
		t.Fatalf("improvement edges = %v", improvements)
	}
	papers, _ := st.ListPapers(context.Background())
	if len(papers) != 3 {
		t.Errorf("stored papers = %d", len(papers))
	}
}

func TestProcessBatchLostLeaseFailsPaper(t *testing.T) {
	st, oracle, refs := fivePapers(t)
	oracle.delay["Paper 1"] = time.Second
	lost := errors.New("lease lost")
	lease := func(ctx context.Context, paperID string) (context.Context, func(), error) {
		if paperID != "p1" {
			return ctx, func() {}, nil
		}
		leaseCtx, cancel := context.WithCancelCause(ctx)
		time.AfterFunc(20*time.Millisecond, func() { cancel(lost) })
		return leaseCtx, func() { cancel(context.Canceled) }, nil
	}

	res := NewCoordinator(testClient(), oracle, st, WithLease(lease)).ProcessBatch(context.Background(), "run-1", refs[:2])
	if res.Stats.Failed != 1 || res.Outcomes[0].Err == nil {
		t.Fatalf("paper with lost lease should fail: %+v", res.Outcomes[0])
	}
	if res.Outcomes[1].Err != nil {
		t.Fatalf("other paper failed: %v", res.Outcomes[1].Err)
	}
}

func TestProcessBatchAttachesFullTextFirst(t *testing.T) {
	st, oracle, refs := fivePapers(t)
	var attached []string
	var mu sync.Mutex
	fullText := func(ctx context.Context, paperID string) error {
		mu.Lock()
		attached = append(attached, paperID)
		mu.Unlock()
		if paperID == "p2" {
			return errors.New("pdf unavailable")
		}
		return st.AttachFullText(ctx, paperID, "Full text of "+paperID+".")
	}

	res := NewCoordinator(testClient(), oracle, st, WithFullText(fullText)).ProcessBatch(context.Background(), "run-1", refs)
	if res.Stats.Succeeded != 5 {
		t.Fatalf("full-text failures must not fail papers: %+v", res.Stats)
	}
	if len(attached) != 5 {
		t.Fatalf("attach calls = %v", attached)
	}
	p1, _ := st.GetPaper(context.Background(), "p1")
	if p1.FullText != "Full text of p1." {
		t.Errorf("full text = %q", p1.FullText)
	}
}
