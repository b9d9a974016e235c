package common

import "time"

// TaskState is the lifecycle of one paper-processing task.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition enforces pending -> processing -> completed | failed.
// A pending task may also fail directly, e.g. when its lease is busy.
func (s TaskState) CanTransition(next TaskState) bool {
	switch s {
	case TaskPending:
		return next == TaskProcessing || next == TaskFailed
	case TaskProcessing:
		return next == TaskCompleted || next == TaskFailed
	}
	return false
}

// Task records the state of one paper inside a run.
type Task struct {
	RunID           string     `json:"run_id"`
	PaperID         string     `json:"paper_id"`
	Position        int        `json:"position"`
	State           TaskState  `json:"state"`
	Error           string     `json:"error,omitempty"`
	EntitiesCreated int        `json:"entities_created"`
	EdgesCreated    int        `json:"edges_created"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// RunStats is a point-in-time copy of a run's aggregate counters.
type RunStats struct {
	Attempted       int64 `json:"attempted"`
	Succeeded       int64 `json:"succeeded"`
	Failed          int64 `json:"failed"`
	EntitiesCreated int64 `json:"entities_created"`
	EdgesCreated    int64 `json:"edges_created"`
}

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one traversal plus the processing of every paper it yielded.
type Run struct {
	ID         string     `json:"id"`
	SeedID     string     `json:"seed_id"`
	Limit      int        `json:"limit"`
	Status     RunStatus  `json:"status"`
	Stats      RunStats   `json:"stats"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
