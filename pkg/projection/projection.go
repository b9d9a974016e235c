// Package projection mirrors the canonical graph into Neo4j for graph
// queries and visual exploration. The canonical store stays the source of
// truth; the projection is rebuilt idempotently with MERGE.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

const defaultBatchSize = 500

// Snapshot is everything read from the canonical store for one projection.
type Snapshot struct {
	Papers   []common.Paper
	Entities []common.Entity
	Edges    []common.Edge
}

// Stats counts what a projection wrote.
type Stats struct {
	Papers   int `json:"papers"`
	Entities int `json:"entities"`
	Edges    int `json:"edges"`
}

// ReadSnapshot loads every paper, entity and edge from st.
func ReadSnapshot(ctx context.Context, st store.CanonicalStore) (Snapshot, error) {
	var snap Snapshot
	papers, err := st.ListPapers(ctx)
	if err != nil {
		return snap, fmt.Errorf("list papers: %w", err)
	}
	snap.Papers = papers
	for _, kind := range common.EntityKinds {
		list, err := st.ListAll(ctx, kind)
		if err != nil {
			return snap, fmt.Errorf("list %s: %w", kind, err)
		}
		snap.Entities = append(snap.Entities, list...)
	}
	for _, kind := range common.EdgeKinds {
		list, err := st.ListEdges(ctx, kind)
		if err != nil {
			return snap, fmt.Errorf("list %s: %w", kind, err)
		}
		snap.Edges = append(snap.Edges, list...)
	}
	return snap, nil
}

// nodeLabel maps a node kind to its Neo4j label.
func nodeLabel(kind string) string {
	switch kind {
	case common.NodePaper:
		return "Paper"
	case string(common.EntityConcept):
		return "Concept"
	case string(common.EntityMethod):
		return "Method"
	case string(common.EntityDataset):
		return "Dataset"
	}
	return ""
}

// relType maps an edge kind to its Neo4j relationship type.
func relType(kind common.EdgeKind) string {
	switch kind {
	case common.EdgePaperIntroducesConcept:
		return "INTRODUCES"
	case common.EdgePaperUsesMethod:
		return "USES"
	case common.EdgePaperEvaluatesOnDataset:
		return "EVALUATES_ON"
	case common.EdgePaperCites:
		return "CITES"
	case common.EdgeConceptImproves:
		return "IMPROVES"
	}
	return ""
}

func paperRows(papers []common.Paper, syncedAt string) []map[string]any {
	rows := make([]map[string]any, 0, len(papers))
	for _, p := range papers {
		published := ""
		if p.PublishedAt != nil {
			published = p.PublishedAt.UTC().Format(time.DateOnly)
		}
		rows = append(rows, map[string]any{
			"id":             p.ID,
			"title":          p.Title,
			"year":           int64(p.Year),
			"published_at":   published,
			"citation_count": int64(p.CitationCount),
			"doi":            p.ExternalIDs.DOI,
			"arxiv":          p.ExternalIDs.ArXiv,
			"s2":             p.ExternalIDs.SemanticScholar,
			"authors":        append([]string{}, p.Authors...),
			"has_full_text":  p.HasFullText(),
			"synced_at":      syncedAt,
		})
	}
	return rows
}

// entityRows groups entity parameters by label.
func entityRows(entities []common.Entity, syncedAt string) map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, e := range entities {
		label := nodeLabel(string(e.Kind))
		if label == "" {
			continue
		}
		out[label] = append(out[label], map[string]any{
			"id":          e.ID,
			"name":        e.Name,
			"key":         e.Key,
			"description": e.Description,
			"category":    string(e.Category),
			"confidence":  e.Confidence,
			"paper_id":    e.PaperID,
			"synced_at":   syncedAt,
		})
	}
	return out
}

// edgeRows groups edge parameters by edge kind.
func edgeRows(edges []common.Edge, syncedAt string) map[common.EdgeKind][]map[string]any {
	out := make(map[common.EdgeKind][]map[string]any)
	for _, e := range edges {
		if relType(e.Kind) == "" {
			continue
		}
		row := map[string]any{
			"from_id":   e.From,
			"to_id":     e.To,
			"synced_at": syncedAt,
		}
		if e.Kind.Scored() {
			row["confidence"] = e.Confidence
		}
		if e.Kind == common.EdgeConceptImproves {
			row["improvement"] = string(e.Improvement)
		}
		out[e.Kind] = append(out[e.Kind], row)
	}
	return out
}

func nodeCypher(label string) string {
	return fmt.Sprintf(`
UNWIND $rows AS row
MERGE (n:%s {id: row.id})
SET n += row
`, label)
}

func edgeCypher(kind common.EdgeKind) string {
	from, to := kind.Endpoints()
	return fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:%s {id: row.from_id})
MATCH (b:%s {id: row.to_id})
MERGE (a)-[r:%s]->(b)
SET r += row
`, nodeLabel(from), nodeLabel(to), relType(kind))
}
