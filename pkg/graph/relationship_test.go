package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store/memory"
)

func insertConcept(t *testing.T, st *memory.Store, id, name string) common.Entity {
	t.Helper()
	e, err := st.Insert(context.Background(), common.Entity{
		ID:          id,
		Kind:        common.EntityConcept,
		Name:        name,
		Key:         common.NormalizeKey(name),
		Description: longDescription,
		Category:    common.CategoryArchitecture,
		Confidence:  0.9,
		PaperID:     "p0",
	})
	if err != nil {
		t.Fatalf("insert %s: %v", name, err)
	}
	return e
}

func improvesOn(kind string) ai.ClassificationResponse {
	return ai.ClassificationResponse{Relation: ai.RelationImprovesOn, ImprovementKind: kind, Confidence: 0.85}
}

func relationStore(t *testing.T) (*memory.Store, common.Entity, common.Entity, common.Entity) {
	t.Helper()
	st := memory.New()
	seedPapers(st, common.Paper{ID: "p0", Title: "Older"})
	rnn := insertConcept(t, st, "c-rnn", "RNN")
	lstm := insertConcept(t, st, "c-lstm", "LSTM")
	tr := insertConcept(t, st, "c-tr", "Transformer")
	return st, rnn, lstm, tr
}

func TestMapRelationshipsLinksImprovements(t *testing.T) {
	st, rnn, lstm, tr := relationStore(t)
	oracle := newFakeOracle()
	oracle.relations[[2]string{"Transformer", "LSTM"}] = improvesOn("speed")
	oracle.relations[[2]string{"Transformer", "RNN"}] = ai.ClassificationResponse{Relation: ai.RelationExtends, Confidence: 0.7}

	res := testClient().MapRelationships(context.Background(), oracle, st,
		common.PaperRef{ID: "p0"}, ValidatedEntities{Concepts: []common.Entity{tr}})

	if res.Pairs != 2 || res.Classified != 2 {
		t.Fatalf("pairs=%d classified=%d, want 2/2", res.Pairs, res.Classified)
	}
	if res.Improvements != 1 || res.EdgesCreated != 1 {
		t.Fatalf("improvements=%d created=%d", res.Improvements, res.EdgesCreated)
	}

	edges, _ := st.ListEdges(context.Background(), common.EdgeConceptImproves)
	if len(edges) != 1 {
		t.Fatalf("expected one improvement edge, got %v", edges)
	}
	e := edges[0]
	if e.From != tr.ID || e.To != lstm.ID {
		t.Errorf("edge direction %s -> %s", e.From, e.To)
	}
	if e.Improvement != common.ImprovementSpeed || e.Confidence != 0.85 {
		t.Errorf("edge attributes %+v", e)
	}
	for _, e := range edges {
		if e.To == rnn.ID {
			t.Error("extends must not be stored")
		}
	}
}

func TestMapRelationshipsIsIdempotent(t *testing.T) {
	st, _, _, tr := relationStore(t)
	oracle := newFakeOracle()
	oracle.relations[[2]string{"Transformer", "LSTM"}] = improvesOn("quality")
	g := testClient()
	entities := ValidatedEntities{Concepts: []common.Entity{tr}}

	g.MapRelationships(context.Background(), oracle, st, common.PaperRef{ID: "p0"}, entities)
	again := g.MapRelationships(context.Background(), oracle, st, common.PaperRef{ID: "p0"}, entities)

	if again.Improvements != 1 || again.EdgesCreated != 0 {
		t.Fatalf("second pass improvements=%d created=%d", again.Improvements, again.EdgesCreated)
	}
}

func TestMapRelationshipsSkipsFailedPairs(t *testing.T) {
	st, _, _, tr := relationStore(t)
	oracle := newFakeOracle()
	oracle.classifyErr[[2]string{"Transformer", "LSTM"}] = &ai.MalformedResponseError{Name: "concept_relation", Err: errors.New("garbage")}
	oracle.relations[[2]string{"Transformer", "RNN"}] = improvesOn("generalization")

	res := testClient().MapRelationships(context.Background(), oracle, st,
		common.PaperRef{ID: "p0"}, ValidatedEntities{Concepts: []common.Entity{tr}})

	if len(res.Errors) != 1 || !IsMalformedData(res.Errors[0]) {
		t.Fatalf("expected one malformed pair error, got %v", res.Errors)
	}
	if res.EdgesCreated != 1 {
		t.Fatalf("remaining pair not processed: %+v", res)
	}
}

func TestMapRelationshipsAvoidsCycles(t *testing.T) {
	st, rnn, lstm, tr := relationStore(t)
	ctx := context.Background()
	for _, e := range []common.Edge{
		{Kind: common.EdgeConceptImproves, From: tr.ID, To: lstm.ID, Confidence: 0.9, Improvement: common.ImprovementSpeed},
		{Kind: common.EdgeConceptImproves, From: lstm.ID, To: rnn.ID, Confidence: 0.9, Improvement: common.ImprovementQuality},
	} {
		if _, err := st.Link(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	oracle := newFakeOracle()
	oracle.relations[[2]string{"RNN", "Transformer"}] = improvesOn("simplicity")

	res := testClient().MapRelationships(ctx, oracle, st,
		common.PaperRef{ID: "p0"}, ValidatedEntities{Concepts: []common.Entity{rnn}})

	if res.CyclesAvoided != 1 || res.EdgesCreated != 0 {
		t.Fatalf("cycle not avoided: %+v", res)
	}
	edges, _ := st.ListEdges(ctx, common.EdgeConceptImproves)
	if len(edges) != 2 {
		t.Fatalf("edge count = %d", len(edges))
	}
	if cycles := FindCycles(edges); len(cycles) != 0 {
		t.Fatalf("unexpected cycles %v", cycles)
	}
}

func TestMapRelationshipsWithoutConcepts(t *testing.T) {
	oracle := newFakeOracle()
	res := testClient().MapRelationships(context.Background(), oracle, memory.New(),
		common.PaperRef{ID: "p0"}, ValidatedEntities{})
	if res.Pairs != 0 || oracle.count("concept_relation") != 0 {
		t.Fatalf("unexpected work %+v", res)
	}
}

func TestAdjacencyReaches(t *testing.T) {
	a := newAdjacency()
	a.add("a", "b")
	a.add("b", "c")
	a.add("b", "c")

	if !a.reaches("a", "c") || !a.reaches("a", "a") {
		t.Fatal("expected a to reach c and itself")
	}
	if a.reaches("c", "a") {
		t.Fatal("c must not reach a")
	}
	if len(a.out["b"]) != 1 {
		t.Fatalf("duplicate adjacency %v", a.out["b"])
	}
}
