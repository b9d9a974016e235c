package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/citation"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/OFFIS-RIT/litgraph/pkg/graph"

// TaskRecorder persists task state changes. store.RunStore satisfies it.
type TaskRecorder interface {
	SaveTask(ctx context.Context, task common.Task) error
}

// LeaseFunc acquires exclusive processing of a paper across processes. The
// unit runs under the returned context, which ends if the lease is lost.
// release is always called once the unit finishes.
type LeaseFunc func(ctx context.Context, paperID string) (leaseCtx context.Context, release func(), err error)

// FullTextFunc attaches a paper's full text before extraction. Its failure
// is logged and does not fail the paper.
type FullTextFunc func(ctx context.Context, paperID string) error

// PaperOutcome is the settled result of one paper's unit of work.
type PaperOutcome struct {
	Task          common.Task
	Extraction    *ExtractionResult
	Relationships RelationshipResult
	Validation    *ValidationReport
	Err           error
}

// BatchResult holds every outcome in submission order plus the counters.
type BatchResult struct {
	RunID    string
	Outcomes []PaperOutcome
	Stats    common.RunStats
}

// Failed reports whether any paper failed.
func (r BatchResult) Failed() bool {
	return r.Stats.Failed > 0
}

// Coordinator runs papers through extraction, relationship mapping and
// validation. Stages run in order within a paper; papers run concurrently
// up to the client's ParallelPapers, each under its own timeout.
type Coordinator struct {
	graph    *GraphClient
	aiClient ai.GraphAIClient
	store    store.CanonicalStore
	recorder TaskRecorder
	lease    LeaseFunc
	fullText FullTextFunc
	tracer   trace.Tracer
	now      func() time.Time
}

type CoordinatorOption func(*Coordinator)

func WithTaskRecorder(r TaskRecorder) CoordinatorOption {
	return func(c *Coordinator) { c.recorder = r }
}

func WithLease(fn LeaseFunc) CoordinatorOption {
	return func(c *Coordinator) { c.lease = fn }
}

func WithFullText(fn FullTextFunc) CoordinatorOption {
	return func(c *Coordinator) { c.fullText = fn }
}

func WithTracer(t trace.Tracer) CoordinatorOption {
	return func(c *Coordinator) { c.tracer = t }
}

func NewCoordinator(
	g *GraphClient,
	aiClient ai.GraphAIClient,
	storeClient store.CanonicalStore,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		graph:    g,
		aiClient: aiClient,
		store:    storeClient,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run traverses from seed and processes each yielded paper. Papers are
// submitted in traversal order as they are yielded; submission blocks while
// all workers are busy.
func (c *Coordinator) Run(
	ctx context.Context,
	fetcher citation.Fetcher,
	runID string,
	seed common.PaperRef,
	limit int,
) BatchResult {
	traversal := c.graph.Expand(fetcher, c.store, seed, limit, NewVisited())
	result := c.process(ctx, runID, traversal.All(ctx))
	// Cites edges are derived during the walk, not by a paper unit.
	result.Stats.EdgesCreated += int64(traversal.CitesCreated())
	return result
}

// ProcessBatch processes papers under the concurrency bound and waits for
// all of them, successful or not.
func (c *Coordinator) ProcessBatch(ctx context.Context, runID string, papers []common.PaperRef) BatchResult {
	return c.process(ctx, runID, func(yield func(common.PaperRef) bool) {
		for _, p := range papers {
			if !yield(p) {
				return
			}
		}
	})
}

func (c *Coordinator) process(ctx context.Context, runID string, papers func(func(common.PaperRef) bool)) BatchResult {
	var (
		stats    Stats
		mu       sync.Mutex
		outcomes []PaperOutcome
		eg       errgroup.Group
	)
	eg.SetLimit(c.graph.parallelPapers)

	ctx, span := c.tracer.Start(ctx, "graph.run", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	position := 0
	for paper := range papers {
		idx := position
		position++

		task := common.Task{
			RunID:     runID,
			PaperID:   paper.ID,
			Position:  idx,
			State:     common.TaskPending,
			CreatedAt: c.now(),
		}
		c.record(ctx, task)

		mu.Lock()
		outcomes = append(outcomes, PaperOutcome{Task: task})
		mu.Unlock()

		stats.attempted.Add(1)
		eg.Go(func() error {
			out := c.runUnit(ctx, paper, task)

			if out.Err != nil {
				stats.failed.Add(1)
			} else {
				stats.succeeded.Add(1)
			}
			if out.Extraction != nil {
				stats.entitiesCreated.Add(int64(out.Extraction.EntitiesCreated))
				stats.edgesCreated.Add(int64(out.Extraction.EdgesCreated))
			}
			stats.edgesCreated.Add(int64(out.Relationships.EdgesCreated))

			mu.Lock()
			outcomes[idx] = out
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	snapshot := stats.Snapshot()
	span.SetAttributes(
		attribute.Int64("run.attempted", snapshot.Attempted),
		attribute.Int64("run.failed", snapshot.Failed),
	)
	logger.Info("[Coordinator] Run finished",
		"run", runID,
		"attempted", snapshot.Attempted,
		"succeeded", snapshot.Succeeded,
		"failed", snapshot.Failed,
		"entities_created", snapshot.EntitiesCreated,
		"edges_created", snapshot.EdgesCreated,
	)
	return BatchResult{RunID: runID, Outcomes: outcomes, Stats: snapshot}
}

// runUnit is one paper's full pipeline. It never returns an error; failures
// are carried in the outcome and the task state.
func (c *Coordinator) runUnit(ctx context.Context, paper common.PaperRef, task common.Task) (out PaperOutcome) {
	unitCtx, cancel := context.WithTimeout(ctx, c.graph.paperTimeout)
	defer cancel()

	unitCtx, span := c.tracer.Start(unitCtx, "graph.paper", trace.WithAttributes(
		attribute.String("paper.id", paper.ID),
		attribute.Int("paper.position", task.Position),
	))
	defer span.End()

	out.Task = task
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic while processing %s: %v", paper.ID, r)
		}
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
			out.Task = c.transition(ctx, out.Task, common.TaskFailed, out.Err)
			logger.Error("[Coordinator] Paper failed", "paper", paper.ID, "err", out.Err)
			return
		}
		out.Task = c.transition(ctx, out.Task, common.TaskCompleted, nil)
	}()

	if c.lease != nil {
		leaseCtx, release, err := c.lease(unitCtx, paper.ID)
		if err != nil {
			out.Err = fmt.Errorf("lease %s: %w", paper.ID, err)
			return out
		}
		defer release()
		unitCtx = leaseCtx
	}

	out.Task = c.transition(ctx, out.Task, common.TaskProcessing, nil)

	if c.fullText != nil {
		if err := c.stage(unitCtx, "fulltext", func(ctx context.Context) error {
			return c.fullText(ctx, paper.ID)
		}); err != nil {
			logger.Warn("[Coordinator] Full text unavailable, extracting from abstract", "paper", paper.ID, "err", err)
		}
	}

	var extraction *ExtractionResult
	err := c.stage(unitCtx, "extract", func(ctx context.Context) error {
		var err error
		extraction, err = c.graph.Extract(ctx, c.aiClient, c.store, paper)
		return err
	})
	out.Extraction = extraction
	if extraction != nil {
		out.Task.EntitiesCreated = extraction.EntitiesCreated
		out.Task.EdgesCreated = extraction.EdgesCreated
	}
	if err != nil {
		out.Err = err
		return out
	}
	if err := unitCtx.Err(); err != nil {
		out.Err = fmt.Errorf("extract %s: %w", paper.ID, err)
		return out
	}

	_ = c.stage(unitCtx, "relate", func(ctx context.Context) error {
		out.Relationships = c.graph.MapRelationships(ctx, c.aiClient, c.store, paper, extraction.Entities)
		return nil
	})
	out.Task.EdgesCreated += out.Relationships.EdgesCreated
	if err := unitCtx.Err(); err != nil {
		out.Err = fmt.Errorf("relate %s: %w", paper.ID, err)
		return out
	}

	_ = c.stage(unitCtx, "validate", func(ctx context.Context) error {
		report := c.graph.Validate(ctx, c.store, paper)
		out.Validation = &report
		return nil
	})
	if err := unitCtx.Err(); err != nil {
		out.Err = fmt.Errorf("validate %s: %w", paper.ID, err)
		return out
	}

	// An extraction that produced nothing because the oracle failed is
	// reported as a failed paper once the later stages have run.
	if extraction.OracleErr != nil {
		out.Err = fmt.Errorf("extract %s: %w", paper.ID, extraction.OracleErr)
	}
	return out
}

func (c *Coordinator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "graph."+name)
	defer span.End()
	started := time.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logger.Debug("[Coordinator] Stage done", "stage", name, "duration", time.Since(started))
	return err
}

// transition moves task to next when allowed and records it. Recording uses
// the run context so a timed out unit can still be marked failed.
func (c *Coordinator) transition(ctx context.Context, task common.Task, next common.TaskState, cause error) common.Task {
	if !task.State.CanTransition(next) {
		logger.Warn("[Coordinator] Ignoring invalid transition", "paper", task.PaperID, "from", task.State, "to", next)
		return task
	}
	now := c.now()
	task.State = next
	switch next {
	case common.TaskProcessing:
		task.StartedAt = &now
	case common.TaskCompleted, common.TaskFailed:
		task.FinishedAt = &now
	}
	if cause != nil {
		task.Error = cause.Error()
	}
	c.record(ctx, task)
	return task
}

func (c *Coordinator) record(ctx context.Context, task common.Task) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.SaveTask(context.WithoutCancel(ctx), task); err != nil {
		logger.Warn("[Coordinator] Could not record task", "paper", task.PaperID, "state", task.State, "err", err)
	}
}

// IsTimeout reports whether a paper failed because its unit timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
