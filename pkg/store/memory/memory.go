// Package memory is an in-process CanonicalStore and RunStore. It backs
// tests and dry runs of the CLI; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

type entityKey struct {
	kind common.EntityKind
	key  string
}

// Store keeps every row in maps guarded by one RWMutex. Insertion order is
// tracked so listings are deterministic.
type Store struct {
	mu sync.RWMutex

	papers     map[string]common.Paper
	paperOrder []string

	entities    map[string]common.Entity
	byKey       map[entityKey]string
	entityOrder map[common.EntityKind][]string

	edges     map[common.EdgeKey]common.Edge
	edgeOrder map[common.EdgeKind][]common.EdgeKey

	runs  map[string]common.Run
	tasks map[string][]common.Task

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		papers:      make(map[string]common.Paper),
		entities:    make(map[string]common.Entity),
		byKey:       make(map[entityKey]string),
		entityOrder: make(map[common.EntityKind][]string),
		edges:       make(map[common.EdgeKey]common.Edge),
		edgeOrder:   make(map[common.EdgeKind][]common.EdgeKey),
		runs:        make(map[string]common.Run),
		tasks:       make(map[string][]common.Task),
		now:         time.Now,
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error { return nil }

func (s *Store) EnsurePaper(ctx context.Context, p common.Paper) (common.Paper, bool, error) {
	if p.ID == "" {
		return common.Paper{}, false, fmt.Errorf("paper id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.papers[p.ID]; ok {
		return existing, false, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.papers[p.ID] = p
	s.paperOrder = append(s.paperOrder, p.ID)
	return p, true, nil
}

func (s *Store) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[id]
	if !ok {
		return common.Paper{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPapers(ctx context.Context) ([]common.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Paper, 0, len(s.paperOrder))
	for _, id := range s.paperOrder {
		out = append(out, s.papers[id])
	}
	return out, nil
}

func (s *Store) AttachFullText(ctx context.Context, paperID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.papers[paperID]
	if !ok {
		return store.ErrNotFound
	}
	if p.FullText != "" {
		return store.ErrFullTextAttached
	}
	p.FullText = text
	s.papers[paperID] = p
	return nil
}

func (s *Store) GetByNormalizedKey(ctx context.Context, kind common.EntityKind, key string) (common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[entityKey{kind, key}]
	if !ok {
		return common.Entity{}, store.ErrNotFound
	}
	return s.entities[id], nil
}

// Insert is an atomic compare-and-insert on (kind, key).
func (s *Store) Insert(ctx context.Context, e common.Entity) (common.Entity, error) {
	if err := store.ValidateEntity(e); err != nil {
		return common.Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entityKey{e.Kind, e.Key}
	if _, taken := s.byKey[k]; taken {
		return common.Entity{}, store.ErrUniqueViolation
	}
	if _, taken := s.entities[e.ID]; taken {
		return common.Entity{}, store.ErrUniqueViolation
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.entities[e.ID] = e
	s.byKey[k] = e.ID
	s.entityOrder[e.Kind] = append(s.entityOrder[e.Kind], e.ID)
	return e, nil
}

func (s *Store) ListAll(ctx context.Context, kind common.EntityKind) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.entityOrder[kind]
	out := make([]common.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entities[id])
	}
	return out, nil
}

func (s *Store) exists(nodeKind, id string) bool {
	if nodeKind == common.NodePaper {
		_, ok := s.papers[id]
		return ok
	}
	e, ok := s.entities[id]
	return ok && string(e.Kind) == nodeKind
}

func (s *Store) Link(ctx context.Context, e common.Edge) (common.Edge, error) {
	if err := store.ValidateEdge(e); err != nil {
		return common.Edge{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.Key()
	if existing, ok := s.edges[key]; ok {
		return existing, store.ErrAlreadyLinked
	}
	fromKind, toKind := e.Kind.Endpoints()
	if !s.exists(fromKind, e.From) || !s.exists(toKind, e.To) {
		return common.Edge{}, store.ErrDanglingEdge
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.edges[key] = e
	s.edgeOrder[e.Kind] = append(s.edgeOrder[e.Kind], key)
	return e, nil
}

func (s *Store) ListEdges(ctx context.Context, kind common.EdgeKind) ([]common.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.edgeOrder[kind]
	out := make([]common.Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.edges[k])
	}
	return out, nil
}

// CandidateConcepts returns the most recently inserted concepts first.
func (s *Store) CandidateConcepts(ctx context.Context, c common.Entity, limit int) ([]common.Entity, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.entityOrder[common.EntityConcept]
	out := make([]common.Entity, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		if ids[i] == c.ID {
			continue
		}
		out = append(out, s.entities[ids[i]])
	}
	return out, nil
}

func (s *Store) CreateRun(ctx context.Context, run common.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return store.ErrUniqueViolation
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	s.runs[run.ID] = run
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, run common.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	run.CreatedAt = existing.CreatedAt
	s.runs[run.ID] = run
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (common.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return common.Run{}, store.ErrNotFound
	}
	return run, nil
}

// SaveTask upserts by (run, paper).
func (s *Store) SaveTask(ctx context.Context, task common.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.tasks[task.RunID]
	idx := slices.IndexFunc(tasks, func(t common.Task) bool { return t.PaperID == task.PaperID })
	if idx >= 0 {
		tasks[idx] = task
		return nil
	}
	s.tasks[task.RunID] = append(tasks, task)
	return nil
}

func (s *Store) ListTasks(ctx context.Context, runID string) ([]common.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := slices.Clone(s.tasks[runID])
	slices.SortStableFunc(tasks, func(a, b common.Task) int { return a.Position - b.Position })
	return tasks, nil
}
