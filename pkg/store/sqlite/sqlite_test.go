//go:build cgo

package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPaper(t *testing.T, s *Store, id string) {
	t.Helper()
	_, _, err := s.EnsurePaper(context.Background(), common.Paper{ID: id, Title: "Paper " + id})
	require.NoError(t, err)
}

func TestEnsurePaperIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC)

	p, created, err := s.EnsurePaper(ctx, common.Paper{
		ID: "p1", Title: "Attention", Authors: []string{"Vaswani", "Shazeer"}, PublishedAt: &published,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"Vaswani", "Shazeer"}, p.Authors)
	require.NotNil(t, p.PublishedAt)
	assert.True(t, published.Equal(*p.PublishedAt))

	_, created, err = s.EnsurePaper(ctx, common.Paper{ID: "p1", Title: "changed"})
	require.NoError(t, err)
	assert.False(t, created)

	papers, err := s.ListPapers(ctx)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "Attention", papers[0].Title)
}

func TestAttachFullTextOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedPaper(t, s, "p1")

	require.NoError(t, s.AttachFullText(ctx, "p1", "body"))
	assert.ErrorIs(t, s.AttachFullText(ctx, "p1", "again"), store.ErrFullTextAttached)
	assert.ErrorIs(t, s.AttachFullText(ctx, "missing", "body"), store.ErrNotFound)

	p, err := s.GetPaper(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "body", p.FullText)
}

func TestInsertEnforcesUniqueKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedPaper(t, s, "p1")

	e := common.Entity{ID: "c1", Kind: common.EntityConcept, Name: "Attention", Key: "attention", Confidence: 0.9, PaperID: "p1"}
	_, err := s.Insert(ctx, e)
	require.NoError(t, err)

	e.ID = "c2"
	_, err = s.Insert(ctx, e)
	assert.ErrorIs(t, err, store.ErrUniqueViolation)

	e.ID = "m1"
	e.Kind = common.EntityMethod
	_, err = s.Insert(ctx, e)
	assert.NoError(t, err, "same key under another kind is distinct")
}

func TestConcurrentGetOrInsertYieldsOneRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedPaper(t, s, "p1")

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := store.GetOrInsert(ctx, s, common.Entity{
				ID: "c" + string(rune('a'+i)), Kind: common.EntityConcept, Name: "Dropout", Key: "dropout",
				Confidence: 0.7, PaperID: "p1",
			})
			if assert.NoError(t, err) {
				mu.Lock()
				ids[got.ID] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	all, err := s.ListAll(ctx, common.EntityConcept)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLinkSemantics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedPaper(t, s, "p1")
	seedPaper(t, s, "p2")

	cites := common.Edge{Kind: common.EdgePaperCites, From: "p1", To: "p2"}
	_, err := s.Link(ctx, cites)
	require.NoError(t, err)

	_, err = s.Link(ctx, cites)
	assert.ErrorIs(t, err, store.ErrAlreadyLinked)

	_, err = s.Link(ctx, common.Edge{Kind: common.EdgePaperCites, From: "p1", To: "ghost"})
	assert.ErrorIs(t, err, store.ErrDanglingEdge)

	_, err = s.Link(ctx, common.Edge{Kind: common.EdgePaperUsesMethod, From: "p1", To: "p2"})
	assert.ErrorIs(t, err, store.ErrDanglingEdge, "endpoint must be a method")

	edges, err := s.ListEdges(ctx, common.EdgePaperCites)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestCandidateConceptsMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedPaper(t, s, "p1")

	for _, key := range []string{"a", "b", "c", "d"} {
		_, err := s.Insert(ctx, common.Entity{ID: key, Kind: common.EntityConcept, Name: key, Key: key, Confidence: 0.6, PaperID: "p1"})
		require.NoError(t, err)
	}

	got, err := s.CandidateConcepts(ctx, common.Entity{ID: "d"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRunRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, common.Run{ID: "r1", SeedID: "p1", Limit: 3, Status: common.RunRunning}))
	now := time.Now().UTC()
	require.NoError(t, s.SaveTask(ctx, common.Task{RunID: "r1", PaperID: "p2", Position: 1, State: common.TaskPending}))
	require.NoError(t, s.SaveTask(ctx, common.Task{RunID: "r1", PaperID: "p1", Position: 0, State: common.TaskPending}))
	require.NoError(t, s.SaveTask(ctx, common.Task{
		RunID: "r1", PaperID: "p1", Position: 0, State: common.TaskCompleted, EntitiesCreated: 4, StartedAt: &now, FinishedAt: &now,
	}))

	tasks, err := s.ListTasks(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "p1", tasks[0].PaperID)
	assert.Equal(t, common.TaskCompleted, tasks[0].State)
	assert.Equal(t, 4, tasks[0].EntitiesCreated)
	assert.NotNil(t, tasks[0].FinishedAt)
	assert.Nil(t, tasks[1].StartedAt)

	require.NoError(t, s.UpdateRun(ctx, common.Run{
		ID: "r1", Status: common.RunCompleted, Stats: common.RunStats{Attempted: 2, Succeeded: 2}, FinishedAt: &now,
	}))
	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, common.RunCompleted, run.Status)
	assert.Equal(t, int64(2), run.Stats.Succeeded)
	assert.Equal(t, 3, run.Limit)

	assert.ErrorIs(t, s.UpdateRun(ctx, common.Run{ID: "nope"}), store.ErrNotFound)
	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
