package graph

import (
	"context"
	"errors"
	"iter"
	"slices"

	"github.com/OFFIS-RIT/litgraph/pkg/citation"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

// Visited is the set of paper ids a traversal has popped. It is owned by the
// caller so that a run carries no hidden state between traversals.
type Visited struct {
	ids map[string]struct{}
}

func NewVisited() *Visited {
	return &Visited{ids: make(map[string]struct{})}
}

func (v *Visited) Has(id string) bool {
	_, ok := v.ids[id]
	return ok
}

// Mark adds id and reports whether it was new.
func (v *Visited) Mark(id string) bool {
	if v.Has(id) {
		return false
	}
	v.ids[id] = struct{}{}
	return true
}

func (v *Visited) Len() int { return len(v.ids) }

// Traversal is a breadth-first walk of the citation graph from a seed. It is
// lazy: each call to Next does only the work needed for one more paper. A
// Traversal is single-use and not safe for concurrent use.
type Traversal struct {
	fetcher citation.Fetcher
	store   store.CanonicalStore
	k, n    int
	limit   int

	visited  *Visited
	frontier []common.PaperRef
	pending  *common.Paper
	yielded  int
	consumed bool

	// Cites edges whose far endpoint is not stored yet, keyed by that id.
	deferred     map[string][]common.Edge
	citesCreated int
}

// Expand starts a traversal from seed that yields at most limit papers. A nil
// visited set gets a fresh one.
func (g *GraphClient) Expand(
	fetcher citation.Fetcher,
	storeClient store.CanonicalStore,
	seed common.PaperRef,
	limit int,
	visited *Visited,
) *Traversal {
	if visited == nil {
		visited = NewVisited()
	}
	return &Traversal{
		fetcher:  fetcher,
		store:    storeClient,
		k:        g.referencesPerStep,
		n:        g.expandPerStep,
		limit:    limit,
		visited:  visited,
		frontier: []common.PaperRef{seed},
		deferred: make(map[string][]common.Edge),
	}
}

// Next returns the next paper in BFS order, or false once the frontier is
// empty or limit papers were yielded.
func (t *Traversal) Next(ctx context.Context) (common.PaperRef, bool) {
	if t.pending != nil {
		current := *t.pending
		t.pending = nil
		if t.yielded < t.limit {
			t.expand(ctx, current)
		}
	}

	for t.yielded < t.limit && len(t.frontier) > 0 {
		if ctx.Err() != nil {
			return common.PaperRef{}, false
		}
		ref := t.frontier[0]
		t.frontier = t.frontier[1:]
		if !t.visited.Mark(ref.ID) {
			continue
		}

		paper, err := t.ensure(ctx, ref)
		if err != nil {
			logger.Warn("[Traversal] Dropping paper that could not be stored", "id", ref.ID, "err", err)
			continue
		}
		t.yielded++
		t.pending = &paper
		return paper.Ref(), true
	}
	return common.PaperRef{}, false
}

// All returns the remaining papers as a sequence. The sequence can be ranged
// over once; later calls yield nothing.
func (t *Traversal) All(ctx context.Context) iter.Seq[common.PaperRef] {
	return func(yield func(common.PaperRef) bool) {
		if t.consumed {
			return
		}
		t.consumed = true
		for {
			ref, ok := t.Next(ctx)
			if !ok || !yield(ref) {
				return
			}
		}
	}
}

// Yielded returns how many papers the traversal has produced.
func (t *Traversal) Yielded() int { return t.yielded }

// CitesCreated returns the number of paper_cites edges the walk stored.
func (t *Traversal) CitesCreated() int { return t.citesCreated }

// ensure loads metadata for ref and stores the paper. Missing metadata falls
// back to what the ref carries; only a store failure drops the paper.
func (t *Traversal) ensure(ctx context.Context, ref common.PaperRef) (common.Paper, error) {
	paper, err := t.fetcher.GetPaper(ctx, ref.ID)
	if err != nil {
		logger.Warn("[Traversal] Metadata unavailable, using reference", "id", ref.ID, "err", err)
		paper = common.Paper{
			ID:            ref.ID,
			Title:         ref.Title,
			CitationCount: ref.CitationCount,
			ExternalIDs:   ref.ExternalIDs,
		}
	}
	if paper.ID == "" {
		paper.ID = ref.ID
	}
	// The fetcher may resolve an alias such as "ARXIV:..." to its own id.
	if paper.ID != ref.ID && !t.visited.Mark(paper.ID) {
		return common.Paper{}, errors.New("resolves to an already visited paper")
	}

	stored, created, err := t.store.EnsurePaper(ctx, paper)
	if err != nil {
		return common.Paper{}, err
	}
	if created {
		logger.Debug("[Traversal] Paper stored", "id", stored.ID, "title", stored.Title)
	}
	t.flushDeferred(ctx, ref.ID, stored.ID)
	return stored, nil
}

// expand fetches up to K references and K citations of paper, ranks the
// union by citation count and pushes the top N. A failed fetch drops this
// paper's expansion only.
func (t *Traversal) expand(ctx context.Context, paper common.Paper) {
	refs, err := t.fetcher.GetReferences(ctx, paper.ID, t.k)
	if err != nil {
		logger.Warn("[Traversal] Reference fetch failed, not expanding", "id", paper.ID, "err", err)
		return
	}
	cites, err := t.fetcher.GetCitations(ctx, paper.ID, t.k)
	if err != nil {
		logger.Warn("[Traversal] Citation fetch failed, not expanding", "id", paper.ID, "err", err)
		return
	}

	type neighbour struct {
		ref  common.PaperRef
		edge common.Edge
	}
	seen := make(map[string]struct{}, len(refs)+len(cites))
	merged := make([]neighbour, 0, len(refs)+len(cites))
	for _, r := range refs {
		if _, dup := seen[r.ID]; dup || r.ID == "" || r.ID == paper.ID {
			continue
		}
		seen[r.ID] = struct{}{}
		merged = append(merged, neighbour{r, common.Edge{Kind: common.EdgePaperCites, From: paper.ID, To: r.ID}})
	}
	for _, c := range cites {
		if _, dup := seen[c.ID]; dup || c.ID == "" || c.ID == paper.ID {
			continue
		}
		seen[c.ID] = struct{}{}
		merged = append(merged, neighbour{c, common.Edge{Kind: common.EdgePaperCites, From: c.ID, To: paper.ID}})
	}

	// Stable so equal counts keep discovery order.
	slices.SortStableFunc(merged, func(a, b neighbour) int {
		return b.ref.CitationCount - a.ref.CitationCount
	})
	if len(merged) > t.n {
		merged = merged[:t.n]
	}

	for _, nb := range merged {
		t.frontier = append(t.frontier, nb.ref)
		t.link(ctx, nb.ref.ID, nb.edge)
	}
	logger.Debug("[Traversal] Expanded", "id", paper.ID, "candidates", len(refs)+len(cites), "pushed", len(merged))
}

// link stores a cites edge now if the neighbour is already stored, otherwise
// once the neighbour is yielded.
func (t *Traversal) link(ctx context.Context, neighbourID string, e common.Edge) {
	created, err := store.LinkOnce(ctx, t.store, e)
	switch {
	case err == nil:
		if created {
			t.citesCreated++
		}
	case errors.Is(err, store.ErrDanglingEdge):
		t.deferred[neighbourID] = append(t.deferred[neighbourID], e)
	default:
		logger.Warn("[Traversal] Could not store citation edge", "from", e.From, "to", e.To, "err", err)
	}
}

func (t *Traversal) flushDeferred(ctx context.Context, refID, storedID string) {
	edges := t.deferred[refID]
	delete(t.deferred, refID)
	for _, e := range edges {
		if e.From == refID {
			e.From = storedID
		}
		if e.To == refID {
			e.To = storedID
		}
		created, err := store.LinkOnce(ctx, t.store, e)
		if err != nil {
			logger.Warn("[Traversal] Could not store citation edge", "from", e.From, "to", e.To, "err", err)
			continue
		}
		if created {
			t.citesCreated++
		}
	}
}
