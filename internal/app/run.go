package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/storage"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

// RunReport is the summary stored next to a finished run.
type RunReport struct {
	Run      common.Run    `json:"run"`
	Tasks    []common.Task `json:"tasks"`
	Failures []string      `json:"failures,omitempty"`
}

// ExecuteRun traverses from the request's seed and processes every yielded
// paper. Individual paper failures are recorded on the run and do not make
// ExecuteRun fail; only run bookkeeping errors and cancellation do, so a
// queue redelivery never reprocesses a settled run.
func (a *App) ExecuteRun(ctx context.Context, req queue.RunRequest) (graph.BatchResult, error) {
	run, err := a.Store.GetRun(ctx, req.RunID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		run = common.Run{
			ID:        req.RunID,
			SeedID:    req.Seed,
			Limit:     req.Limit,
			Status:    common.RunQueued,
			CreatedAt: time.Now(),
		}
		if err := a.Store.CreateRun(ctx, run); err != nil {
			return graph.BatchResult{}, fmt.Errorf("create run: %w", err)
		}
	case err != nil:
		return graph.BatchResult{}, fmt.Errorf("load run: %w", err)
	case run.Status == common.RunCompleted || run.Status == common.RunFailed:
		logger.Info("[App] Run already settled, skipping", "run", run.ID, "status", run.Status)
		return graph.BatchResult{RunID: run.ID, Stats: run.Stats}, nil
	}

	run.Status = common.RunRunning
	if err := a.Store.UpdateRun(ctx, run); err != nil {
		return graph.BatchResult{}, fmt.Errorf("mark run running: %w", err)
	}

	logger.Info("[App] Starting run", "run", run.ID, "seed", run.SeedID, "limit", run.Limit)
	result := a.Coordinator().Run(ctx, a.Fetcher, run.ID, common.PaperRef{ID: run.SeedID}, run.Limit)

	if ctx.Err() != nil {
		// Leave the run as running so a redelivery picks it up again.
		return result, ctx.Err()
	}

	finished := time.Now()
	run.Stats = result.Stats
	run.FinishedAt = &finished
	run.Status = common.RunCompleted
	var failures []string
	for _, out := range result.Outcomes {
		if out.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", out.Task.PaperID, out.Err))
		}
	}
	if result.Failed() {
		run.Status = common.RunFailed
		run.Error = fmt.Sprintf("%d of %d papers failed", result.Stats.Failed, result.Stats.Attempted)
	}
	if err := a.Store.UpdateRun(ctx, run); err != nil {
		return result, fmt.Errorf("settle run: %w", err)
	}

	a.publishRun(ctx, run, failures)
	return result, nil
}

// publishRun mirrors the graph to Neo4j and stores the run report. Both are
// best effort.
func (a *App) publishRun(ctx context.Context, run common.Run, failures []string) {
	if a.Neo4j != nil {
		stats, err := a.Neo4j.Project(ctx, a.Store)
		if err != nil {
			logger.Warn("[Projection] Neo4j projection failed", "run", run.ID, "err", err)
		} else {
			logger.Info("[Projection] Projected graph to Neo4j", "run", run.ID, "papers", stats.Papers, "entities", stats.Entities, "edges", stats.Edges)
		}
	}

	if a.Objects != nil {
		tasks, err := a.Store.ListTasks(ctx, run.ID)
		if err != nil {
			logger.Warn("[App] Listing tasks for report failed", "run", run.ID, "err", err)
		}
		report := RunReport{Run: run, Tasks: tasks, Failures: failures}
		if err := storage.PutJSON(ctx, a.Objects, a.Cfg.S3.Bucket, storage.RunReportKey(run.ID), report); err != nil {
			logger.Warn("[App] Storing run report failed", "run", run.ID, "err", err)
		}
	}
}

// ValidatePaper runs the validator around a stored paper.
func (a *App) ValidatePaper(ctx context.Context, paperID string) (graph.ValidationReport, error) {
	paper, err := a.Store.GetPaper(ctx, paperID)
	if err != nil {
		return graph.ValidationReport{}, err
	}
	ref := common.PaperRef{ID: paper.ID, Title: paper.Title, ExternalIDs: paper.ExternalIDs}
	return a.Graph.Validate(ctx, a.Store, ref), nil
}
