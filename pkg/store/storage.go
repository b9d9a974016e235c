package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrUniqueViolation is returned by Insert when another entity of the
	// same kind already holds the normalized key.
	ErrUniqueViolation = errors.New("store: unique constraint violation")
	// ErrAlreadyLinked is returned by Link when the edge already exists. The
	// existing edge is returned alongside it.
	ErrAlreadyLinked = errors.New("store: already linked")
	// ErrDanglingEdge is returned by Link when an endpoint does not exist.
	ErrDanglingEdge = errors.New("store: edge endpoint does not exist")
	// ErrFullTextAttached is returned when a paper already has its full text.
	ErrFullTextAttached = errors.New("store: full text already attached")
	// ErrSelfLoop is returned when linking a concept to itself.
	ErrSelfLoop = errors.New("store: self-referencing edge")
)

// CanonicalStore is the persistent graph of papers, entities and edges.
// Uniqueness of (kind, normalized key) is enforced by the store itself so
// concurrent workers can race on Insert safely.
type CanonicalStore interface {
	// EnsurePaper inserts p unless a paper with the same ID exists. The
	// stored paper is returned together with whether it was created.
	EnsurePaper(ctx context.Context, p common.Paper) (common.Paper, bool, error)
	GetPaper(ctx context.Context, id string) (common.Paper, error)
	ListPapers(ctx context.Context) ([]common.Paper, error)
	// AttachFullText sets the paper body. It succeeds once per paper.
	AttachFullText(ctx context.Context, paperID, text string) error

	GetByNormalizedKey(ctx context.Context, kind common.EntityKind, key string) (common.Entity, error)
	Insert(ctx context.Context, e common.Entity) (common.Entity, error)
	ListAll(ctx context.Context, kind common.EntityKind) ([]common.Entity, error)

	Link(ctx context.Context, e common.Edge) (common.Edge, error)
	ListEdges(ctx context.Context, kind common.EdgeKind) ([]common.Edge, error)

	// CandidateConcepts returns up to limit concepts other than c that are
	// worth classifying against it. Backends with embeddings order by vector
	// distance; others by recency.
	CandidateConcepts(ctx context.Context, c common.Entity, limit int) ([]common.Entity, error)
}

// RunStore records runs and the state of each paper task.
type RunStore interface {
	CreateRun(ctx context.Context, run common.Run) error
	UpdateRun(ctx context.Context, run common.Run) error
	GetRun(ctx context.Context, id string) (common.Run, error)
	SaveTask(ctx context.Context, task common.Task) error
	ListTasks(ctx context.Context, runID string) ([]common.Task, error)
}

// Store is implemented by backends that hold both the graph and run records.
type Store interface {
	CanonicalStore
	RunStore
	Close() error
}
