package common

import (
	"strings"
	"time"
)

// ExternalIDs holds the identifiers a paper is known by outside this graph.
type ExternalIDs struct {
	SemanticScholar string `json:"s2,omitempty"`
	ArXiv           string `json:"arxiv,omitempty"`
	DOI             string `json:"doi,omitempty"`
}

// CanonicalID picks the most stable identifier available.
// Priority order: DOI > arXiv > Semantic Scholar. Returns "" if none is set.
func CanonicalID(ids ExternalIDs) string {
	if doi := strings.TrimSpace(ids.DOI); doi != "" {
		return "doi:" + strings.ToLower(doi)
	}
	if arxiv := strings.TrimSpace(ids.ArXiv); arxiv != "" {
		return "arxiv:" + arxiv
	}
	if s2 := strings.TrimSpace(ids.SemanticScholar); s2 != "" {
		return "s2:" + s2
	}
	return ""
}

// PaperRef is the lightweight handle the traversal passes around. ID is the
// identifier used by the citation fetcher; CitationCount is the ranking key
// for expansion.
type PaperRef struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	CitationCount int         `json:"citation_count"`
	ExternalIDs   ExternalIDs `json:"external_ids"`
}

// Paper is the stored form of a research paper. FullText is attached at most
// once after creation.
type Paper struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	ExternalIDs   ExternalIDs `json:"external_ids"`
	Abstract      string      `json:"abstract,omitempty"`
	Authors       []string    `json:"authors,omitempty"`
	Year          int         `json:"year,omitempty"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
	CitationCount int         `json:"citation_count"`
	PDFURL        string      `json:"pdf_url,omitempty"`
	FullText      string      `json:"full_text,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Ref returns the traversal handle for p.
func (p Paper) Ref() PaperRef {
	return PaperRef{
		ID:            p.ID,
		Title:         p.Title,
		CitationCount: p.CitationCount,
		ExternalIDs:   p.ExternalIDs,
	}
}

// HasFullText reports whether a parser already attached the paper body.
func (p Paper) HasFullText() bool {
	return p.FullText != ""
}

// EntityKind is one of the three structurally identical extracted entity kinds.
type EntityKind string

const (
	EntityConcept EntityKind = "concept"
	EntityMethod  EntityKind = "method"
	EntityDataset EntityKind = "dataset"
)

// EntityKinds lists every kind in a stable order.
var EntityKinds = []EntityKind{EntityConcept, EntityMethod, EntityDataset}

func (k EntityKind) Valid() bool {
	switch k {
	case EntityConcept, EntityMethod, EntityDataset:
		return true
	}
	return false
}

// Categorized reports whether entities of this kind carry a Category.
func (k EntityKind) Categorized() bool {
	return k == EntityConcept || k == EntityMethod
}

// Category tags concepts and methods. Datasets have none.
type Category string

const (
	CategoryArchitecture Category = "architecture"
	CategoryAlgorithm    Category = "algorithm"
	CategoryTechnique    Category = "technique"
	CategoryTheory       Category = "theory"
	CategoryTask         Category = "task"
	CategoryOther        Category = "other"
)

// Categories lists every category, used for the extraction schema enum.
var Categories = []Category{
	CategoryArchitecture,
	CategoryAlgorithm,
	CategoryTechnique,
	CategoryTheory,
	CategoryTask,
	CategoryOther,
}

// ParseCategory maps free text to a Category, defaulting to CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// Entity is a concept, method or dataset. Key is the normalized key and is
// unique per kind. PaperID records the paper that first introduced it.
type Entity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	Key         string     `json:"key"`
	Description string     `json:"description"`
	Category    Category   `json:"category,omitempty"`
	Confidence  float64    `json:"confidence"`
	PaperID     string     `json:"paper_id"`
	Embedding   []float32  `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EdgeKind names one of the fixed relationship types.
type EdgeKind string

const (
	EdgePaperIntroducesConcept  EdgeKind = "paper_introduces_concept"
	EdgePaperUsesMethod         EdgeKind = "paper_uses_method"
	EdgePaperEvaluatesOnDataset EdgeKind = "paper_evaluates_on_dataset"
	EdgePaperCites              EdgeKind = "paper_cites"
	EdgeConceptImproves         EdgeKind = "concept_improves"
)

// EdgeKinds lists every edge kind in a stable order.
var EdgeKinds = []EdgeKind{
	EdgePaperIntroducesConcept,
	EdgePaperUsesMethod,
	EdgePaperEvaluatesOnDataset,
	EdgePaperCites,
	EdgeConceptImproves,
}

func (k EdgeKind) Valid() bool {
	for _, known := range EdgeKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Scored reports whether edges of this kind carry a confidence.
func (k EdgeKind) Scored() bool {
	return k == EdgePaperIntroducesConcept || k == EdgeConceptImproves
}

// Endpoints returns the node kinds on both ends of the edge. Papers are
// reported as "paper".
func (k EdgeKind) Endpoints() (from, to string) {
	switch k {
	case EdgePaperIntroducesConcept:
		return NodePaper, string(EntityConcept)
	case EdgePaperUsesMethod:
		return NodePaper, string(EntityMethod)
	case EdgePaperEvaluatesOnDataset:
		return NodePaper, string(EntityDataset)
	case EdgePaperCites:
		return NodePaper, NodePaper
	case EdgeConceptImproves:
		return string(EntityConcept), string(EntityConcept)
	}
	return "", ""
}

// NodePaper is the endpoint kind of paper nodes.
const NodePaper = "paper"

// LinkKindFor returns the paper-to-entity edge kind for an entity kind.
func LinkKindFor(kind EntityKind) EdgeKind {
	switch kind {
	case EntityConcept:
		return EdgePaperIntroducesConcept
	case EntityMethod:
		return EdgePaperUsesMethod
	default:
		return EdgePaperEvaluatesOnDataset
	}
}

// ImprovementKind tags a ConceptImproves edge.
type ImprovementKind string

const (
	ImprovementSpeed          ImprovementKind = "speed"
	ImprovementQuality        ImprovementKind = "quality"
	ImprovementGeneralization ImprovementKind = "generalization"
	ImprovementSimplicity     ImprovementKind = "simplicity"
)

var ImprovementKinds = []ImprovementKind{
	ImprovementSpeed,
	ImprovementQuality,
	ImprovementGeneralization,
	ImprovementSimplicity,
}

// ParseImprovementKind returns false for anything outside the fixed set.
func ParseImprovementKind(s string) (ImprovementKind, bool) {
	k := ImprovementKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ImprovementKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Edge is a directed relationship. Confidence is only meaningful for scored
// kinds and Improvement only for EdgeConceptImproves. Each kind is unique on
// its (From, To) pair.
type Edge struct {
	Kind        EdgeKind        `json:"kind"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Confidence  float64         `json:"confidence,omitempty"`
	Improvement ImprovementKind `json:"improvement,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// EdgeKey identifies an edge by kind and endpoints.
type EdgeKey struct {
	Kind     EdgeKind
	From, To string
}

func (e Edge) Key() EdgeKey {
	return EdgeKey{Kind: e.Kind, From: e.From, To: e.To}
}
