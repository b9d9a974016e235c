package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

func (s *GraphDBStorage) CreateRun(ctx context.Context, run common.Run) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO runs (id, seed_id, paper_limit, status) VALUES ($1, $2, $3, $4)`,
		run.ID, run.SeedID, run.Limit, string(run.Status),
	)
	return mapErr(err)
}

func (s *GraphDBStorage) UpdateRun(ctx context.Context, run common.Run) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE runs SET status = $2, attempted = $3, succeeded = $4, failed = $5,
			entities_created = $6, edges_created = $7, error = $8, finished_at = $9
		WHERE id = $1`,
		run.ID,
		string(run.Status),
		run.Stats.Attempted,
		run.Stats.Succeeded,
		run.Stats.Failed,
		run.Stats.EntitiesCreated,
		run.Stats.EdgesCreated,
		run.Error,
		run.FinishedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *GraphDBStorage) GetRun(ctx context.Context, id string) (common.Run, error) {
	var (
		run    common.Run
		status string
	)
	err := s.conn.QueryRow(ctx,
		`SELECT id, seed_id, paper_limit, status, attempted, succeeded, failed,
			entities_created, edges_created, error, created_at, finished_at
		FROM runs WHERE id = $1`, id,
	).Scan(
		&run.ID, &run.SeedID, &run.Limit, &status,
		&run.Stats.Attempted, &run.Stats.Succeeded, &run.Stats.Failed,
		&run.Stats.EntitiesCreated, &run.Stats.EdgesCreated,
		&run.Error, &run.CreatedAt, &run.FinishedAt,
	)
	if err != nil {
		return common.Run{}, mapErr(err)
	}
	run.Status = common.RunStatus(status)
	return run, nil
}

func (s *GraphDBStorage) SaveTask(ctx context.Context, task common.Task) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO run_tasks (run_id, paper_id, position, state, error, entities_created, edges_created, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, paper_id) DO UPDATE SET
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			entities_created = EXCLUDED.entities_created,
			edges_created = EXCLUDED.edges_created,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		task.RunID, task.PaperID, task.Position, string(task.State), task.Error,
		task.EntitiesCreated, task.EdgesCreated, task.StartedAt, task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s/%s: %w", task.RunID, task.PaperID, mapErr(err))
	}
	return nil
}

func (s *GraphDBStorage) ListTasks(ctx context.Context, runID string) ([]common.Task, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT run_id, paper_id, position, state, error, entities_created, edges_created,
			created_at, started_at, finished_at
		FROM run_tasks WHERE run_id = $1 ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Task
	for rows.Next() {
		var (
			t     common.Task
			state string
		)
		if err := rows.Scan(
			&t.RunID, &t.PaperID, &t.Position, &state, &t.Error,
			&t.EntitiesCreated, &t.EdgesCreated,
			&t.CreatedAt, &t.StartedAt, &t.FinishedAt,
		); err != nil {
			return nil, err
		}
		t.State = common.TaskState(state)
		out = append(out, t)
	}
	return out, rows.Err()
}
