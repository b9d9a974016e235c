package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

func (s *Store) CreateRun(ctx context.Context, run common.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, seed_id, paper_limit, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SeedID, run.Limit, string(run.Status), s.now())
	return mapErr(err)
}

func (s *Store) UpdateRun(ctx context.Context, run common.Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, attempted = ?, succeeded = ?, failed = ?,
			entities_created = ?, edges_created = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(run.Status), run.Stats.Attempted, run.Stats.Succeeded, run.Stats.Failed,
		run.Stats.EntitiesCreated, run.Stats.EdgesCreated, run.Error, nullTime(run.FinishedAt), run.ID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (common.Run, error) {
	var (
		run      common.Run
		status   string
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, seed_id, paper_limit, status, attempted, succeeded, failed,
			entities_created, edges_created, error, created_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(
		&run.ID, &run.SeedID, &run.Limit, &status,
		&run.Stats.Attempted, &run.Stats.Succeeded, &run.Stats.Failed,
		&run.Stats.EntitiesCreated, &run.Stats.EdgesCreated,
		&run.Error, &run.CreatedAt, &finished,
	)
	if err != nil {
		return common.Run{}, mapErr(err)
	}
	run.Status = common.RunStatus(status)
	run.FinishedAt = timePtr(finished)
	return run, nil
}

func (s *Store) SaveTask(ctx context.Context, task common.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_tasks (run_id, paper_id, position, state, error, entities_created, edges_created,
			created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, paper_id) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			entities_created = excluded.entities_created,
			edges_created = excluded.edges_created,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		task.RunID, task.PaperID, task.Position, string(task.State), task.Error,
		task.EntitiesCreated, task.EdgesCreated, s.now(), nullTime(task.StartedAt), nullTime(task.FinishedAt))
	if err != nil {
		return fmt.Errorf("save task %s/%s: %w", task.RunID, task.PaperID, mapErr(err))
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, runID string) ([]common.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, paper_id, position, state, error, entities_created, edges_created,
			created_at, started_at, finished_at
		FROM run_tasks WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Task
	for rows.Next() {
		var (
			t                 common.Task
			state             string
			started, finished sql.NullTime
		)
		if err := rows.Scan(&t.RunID, &t.PaperID, &t.Position, &state, &t.Error,
			&t.EntitiesCreated, &t.EdgesCreated, &t.CreatedAt, &started, &finished); err != nil {
			return nil, err
		}
		t.State = common.TaskState(state)
		t.StartedAt = timePtr(started)
		t.FinishedAt = timePtr(finished)
		out = append(out, t)
	}
	return out, rows.Err()
}
