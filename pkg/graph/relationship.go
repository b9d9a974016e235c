package graph

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

// RelationshipResult summarises the pairs classified for one paper.
type RelationshipResult struct {
	Pairs        int
	Classified   int
	Improvements int
	EdgesCreated int
	// CyclesAvoided counts improves_on answers that would have closed a
	// cycle and were not stored.
	CyclesAvoided int
	Errors        []error
}

// MapRelationships classifies each concept of the paper against a bounded
// set of existing concepts and stores improves_on answers as
// concept_improves edges. Failures are per pair and never abort the paper.
func (g *GraphClient) MapRelationships(
	ctx context.Context,
	aiClient ai.GraphAIClient,
	storeClient store.CanonicalStore,
	paper common.PaperRef,
	entities ValidatedEntities,
) RelationshipResult {
	var res RelationshipResult
	if len(entities.Concepts) == 0 {
		return res
	}

	improves, err := loadImprovesGraph(ctx, storeClient)
	if err != nil {
		logger.Warn("[Relate] Could not load improvement edges, skipping paper", "paper", paper.ID, "err", err)
		res.Errors = append(res.Errors, err)
		return res
	}

	for _, concept := range entities.Concepts {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, ctx.Err())
			break
		}
		candidates, err := storeClient.CandidateConcepts(ctx, concept, g.candidateLimit)
		if err != nil {
			logger.Warn("[Relate] Candidate lookup failed", "concept", concept.Name, "err", err)
			res.Errors = append(res.Errors, &ItemError{Item: concept.Name, Err: err})
			continue
		}

		for _, older := range candidates {
			if older.ID == concept.ID {
				continue
			}
			res.Pairs++
			g.classifyPair(ctx, aiClient, storeClient, improves, concept, older, &res)
		}
	}

	logger.Info("[Relate] Paper processed",
		"paper", paper.ID,
		"pairs", res.Pairs,
		"improvements", res.Improvements,
		"created", res.EdgesCreated,
		"errors", len(res.Errors),
	)
	return res
}

func (g *GraphClient) classifyPair(
	ctx context.Context,
	aiClient ai.GraphAIClient,
	storeClient store.CanonicalStore,
	improves *adjacency,
	newer, older common.Entity,
	res *RelationshipResult,
) {
	pair := fmt.Sprintf("%s -> %s", newer.Name, older.Name)

	answer, err := ai.CallClassifyAI(ctx, aiClient, newer, older, g.backoff, ai.WithTemperature(0))
	if err != nil {
		err = classifyOracleErr("classification", err)
		logger.Warn("[Relate] Classification failed, skipping pair", "pair", pair, "err", err)
		res.Errors = append(res.Errors, &ItemError{Item: pair, Err: err})
		return
	}
	res.Classified++
	if answer.Relation != ai.RelationImprovesOn {
		return
	}
	res.Improvements++

	kind, _ := common.ParseImprovementKind(answer.ImprovementKind)
	if improves.reaches(older.ID, newer.ID) {
		logger.Warn("[Relate] Improvement would close a cycle, not stored", "pair", pair)
		res.CyclesAvoided++
		return
	}

	created, err := store.LinkOnce(ctx, storeClient, common.Edge{
		Kind:        common.EdgeConceptImproves,
		From:        newer.ID,
		To:          older.ID,
		Confidence:  answer.Confidence,
		Improvement: kind,
	})
	if err != nil {
		logger.Warn("[Relate] Could not store improvement", "pair", pair, "err", err)
		res.Errors = append(res.Errors, &ItemError{Item: pair, Err: err})
		return
	}
	improves.add(newer.ID, older.ID)
	if created {
		res.EdgesCreated++
	}
}

// adjacency is a directed graph over entity ids.
type adjacency struct {
	out map[string][]string
}

func newAdjacency() *adjacency {
	return &adjacency{out: make(map[string][]string)}
}

func (a *adjacency) add(from, to string) {
	for _, existing := range a.out[from] {
		if existing == to {
			return
		}
	}
	a.out[from] = append(a.out[from], to)
}

// reaches reports whether to is reachable from from, including from == to.
func (a *adjacency) reaches(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]struct{}{from: {}}
	stack := []string{from}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range a.out[node] {
			if next == to {
				return true
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}

func loadImprovesGraph(ctx context.Context, storeClient store.CanonicalStore) (*adjacency, error) {
	edges, err := storeClient.ListEdges(ctx, common.EdgeConceptImproves)
	if err != nil {
		return nil, fmt.Errorf("list improvement edges: %w", err)
	}
	a := newAdjacency()
	for _, e := range edges {
		a.add(e.From, e.To)
	}
	return a, nil
}
