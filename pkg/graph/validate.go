package graph

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"github.com/agnivade/levenshtein"
)

// ViolationKind names a consistency check.
type ViolationKind string

const (
	ViolationDanglingEndpoint ViolationKind = "dangling_endpoint"
	ViolationConfidence       ViolationKind = "confidence_out_of_range"
	ViolationSelfLoop         ViolationKind = "self_loop"
	ViolationCycle            ViolationKind = "cycle"
	ViolationStoreRead        ViolationKind = "store_read"
)

// ConsistencyViolation is one broken invariant found by the validator. It is
// reported, never returned as an error.
type ConsistencyViolation struct {
	Kind    ViolationKind `json:"kind"`
	Edge    *common.Edge  `json:"edge,omitempty"`
	Cycle   []string      `json:"cycle,omitempty"`
	Message string        `json:"message"`
}

// DuplicateGroup lists entities of one kind sharing a normalized key.
type DuplicateGroup struct {
	Kind common.EntityKind `json:"kind"`
	Key  string            `json:"key"`
	IDs  []string          `json:"ids"`
}

// SoftDuplicate is a pair of entities with different keys whose names are
// similar enough to deserve a look. No action is taken on them.
type SoftDuplicate struct {
	Kind       common.EntityKind `json:"kind"`
	A          string            `json:"a"`
	B          string            `json:"b"`
	KeyA       string            `json:"key_a"`
	KeyB       string            `json:"key_b"`
	Similarity float64           `json:"similarity"`
}

// ValidationReport is the advisory result of validating the graph after a
// paper was processed.
type ValidationReport struct {
	PaperID        string                 `json:"paper_id"`
	Duplicates     []DuplicateGroup       `json:"duplicates"`
	SoftDuplicates []SoftDuplicate        `json:"soft_duplicates"`
	ConsistencyOK  bool                   `json:"consistency_ok"`
	Conflicts      []ConsistencyViolation `json:"conflicts"`
}

// HasCycle reports whether a cycle conflict was found.
func (r ValidationReport) HasCycle() bool {
	return slices.ContainsFunc(r.Conflicts, func(v ConsistencyViolation) bool {
		return v.Kind == ViolationCycle
	})
}

// Validate checks the graph around paper: exact and near duplicates among
// concepts and methods, the paper's own edges, and every concept_improves
// edge including global cycle detection. It only reads.
func (g *GraphClient) Validate(
	ctx context.Context,
	storeClient store.CanonicalStore,
	paper common.PaperRef,
) ValidationReport {
	report := ValidationReport{PaperID: paper.ID}
	hard := 0
	fail := func(v ConsistencyViolation) {
		report.Conflicts = append(report.Conflicts, v)
		hard++
	}

	entities := make(map[common.EntityKind]map[string]common.Entity, len(common.EntityKinds))
	for _, kind := range common.EntityKinds {
		list, err := storeClient.ListAll(ctx, kind)
		if err != nil {
			fail(ConsistencyViolation{Kind: ViolationStoreRead, Message: fmt.Sprintf("list %s: %v", kind, err)})
			report.ConsistencyOK = false
			return report
		}
		byID := make(map[string]common.Entity, len(list))
		for _, e := range list {
			byID[e.ID] = e
		}
		entities[kind] = byID
		if kind == common.EntityDataset {
			continue
		}
		report.Duplicates = append(report.Duplicates, duplicateGroups(kind, list)...)
		report.SoftDuplicates = append(report.SoftDuplicates, nearDuplicates(kind, list, g.nearDuplicateThreshold)...)
	}

	for _, kind := range []common.EdgeKind{
		common.EdgePaperIntroducesConcept,
		common.EdgePaperUsesMethod,
		common.EdgePaperEvaluatesOnDataset,
	} {
		edges, err := storeClient.ListEdges(ctx, kind)
		if err != nil {
			fail(ConsistencyViolation{Kind: ViolationStoreRead, Message: fmt.Sprintf("list %s: %v", kind, err)})
			continue
		}
		_, toKind := kind.Endpoints()
		for _, e := range edges {
			if e.From != paper.ID {
				continue
			}
			for _, v := range checkEdge(e, nil, entities[common.EntityKind(toKind)]) {
				fail(v)
			}
		}
	}

	improves, err := storeClient.ListEdges(ctx, common.EdgeConceptImproves)
	if err != nil {
		fail(ConsistencyViolation{Kind: ViolationStoreRead, Message: fmt.Sprintf("list %s: %v", common.EdgeConceptImproves, err)})
	} else {
		concepts := entities[common.EntityConcept]
		for _, e := range improves {
			for _, v := range checkEdge(e, concepts, concepts) {
				fail(v)
			}
		}
		for _, cycle := range FindCycles(improves) {
			fail(ConsistencyViolation{
				Kind:    ViolationCycle,
				Cycle:   cycle,
				Message: fmt.Sprintf("concept_improves cycle of length %d", len(cycle)-1),
			})
		}
	}

	report.ConsistencyOK = hard == 0 && len(report.Duplicates) <= g.maxDuplicates
	if !report.ConsistencyOK {
		logger.Warn("[Validate] Inconsistent graph",
			"paper", paper.ID,
			"duplicates", len(report.Duplicates),
			"conflicts", len(report.Conflicts),
		)
	} else {
		logger.Debug("[Validate] Graph consistent", "paper", paper.ID, "soft_duplicates", len(report.SoftDuplicates))
	}
	return report
}

// checkEdge verifies endpoints and confidence of e. A nil from map skips the
// source check (papers are not loaded).
func checkEdge(e common.Edge, from, to map[string]common.Entity) []ConsistencyViolation {
	var out []ConsistencyViolation
	edge := e
	if from != nil {
		if _, ok := from[e.From]; !ok {
			out = append(out, ConsistencyViolation{
				Kind: ViolationDanglingEndpoint, Edge: &edge,
				Message: fmt.Sprintf("%s source %s does not exist", e.Kind, e.From),
			})
		}
	}
	if _, ok := to[e.To]; !ok {
		out = append(out, ConsistencyViolation{
			Kind: ViolationDanglingEndpoint, Edge: &edge,
			Message: fmt.Sprintf("%s target %s does not exist", e.Kind, e.To),
		})
	}
	if e.Kind.Scored() && !store.ValidConfidence(e.Confidence) {
		out = append(out, ConsistencyViolation{
			Kind: ViolationConfidence, Edge: &edge,
			Message: fmt.Sprintf("%s %s -> %s has confidence %v", e.Kind, e.From, e.To, e.Confidence),
		})
	}
	if e.Kind == common.EdgeConceptImproves && e.From == e.To {
		out = append(out, ConsistencyViolation{
			Kind: ViolationSelfLoop, Edge: &edge,
			Message: fmt.Sprintf("%s improves itself", e.From),
		})
	}
	return out
}

func duplicateGroups(kind common.EntityKind, list []common.Entity) []DuplicateGroup {
	byKey := make(map[string][]string)
	var keys []string
	for _, e := range list {
		if _, ok := byKey[e.Key]; !ok {
			keys = append(keys, e.Key)
		}
		byKey[e.Key] = append(byKey[e.Key], e.ID)
	}
	var out []DuplicateGroup
	for _, key := range keys {
		if ids := byKey[key]; len(ids) > 1 {
			out = append(out, DuplicateGroup{Kind: kind, Key: key, IDs: ids})
		}
	}
	return out
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func nearDuplicates(kind common.EntityKind, list []common.Entity, threshold float64) []SoftDuplicate {
	var out []SoftDuplicate
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			a, b := list[i], list[j]
			if a.Key == b.Key {
				continue
			}
			if sim := Similarity(a.Key, b.Key); sim >= threshold {
				out = append(out, SoftDuplicate{
					Kind: kind, A: a.ID, B: b.ID, KeyA: a.Key, KeyB: b.Key, Similarity: sim,
				})
			}
		}
	}
	return out
}

// FindCycles runs an iterative depth-first search over the directed graph
// of edges and returns one cycle per back edge, as the path from the target
// of the back edge around to itself. Nodes and neighbours are visited in
// sorted order so results are stable.
func FindCycles(edges []common.Edge) [][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
		if _, ok := adj[e.To]; !ok {
			adj[e.To] = nil
		}
	}
	nodes := make([]string, 0, len(adj))
	for n, next := range adj {
		slices.Sort(next)
		adj[n] = slices.Compact(next)
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)

	const (
		white = iota
		grey
		black
	)
	type frame struct {
		node string
		next int
	}
	color := make(map[string]int, len(nodes))
	var cycles [][]string

	for _, root := range nodes {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		color[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(adj[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			child := adj[top.node][top.next]
			top.next++

			switch color[child] {
			case white:
				color[child] = grey
				stack = append(stack, frame{node: child})
			case grey:
				// Back edge: the grey frames from child to top form the cycle.
				start := slices.IndexFunc(stack, func(f frame) bool { return f.node == child })
				cycle := make([]string, 0, len(stack)-start+1)
				for _, f := range stack[start:] {
					cycle = append(cycle, f.node)
				}
				cycles = append(cycles, append(cycle, child))
			}
		}
	}
	return cycles
}
