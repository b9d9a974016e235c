package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	minConfidence         = 0.5
	shortDescriptionRunes = 20
	shortDescriptionScale = 0.8
	datasetConfidence     = 1.0
)

// ValidatedEntities are the canonical entities a paper resolved to, after
// disambiguation, filtering and persistence.
type ValidatedEntities struct {
	PaperID  string
	Concepts []common.Entity
	Methods  []common.Entity
	Datasets []common.Entity
	// Metrics are reported by the oracle but have no node kind.
	Metrics []ai.ExtractedMetric
}

func (v ValidatedEntities) Len() int {
	return len(v.Concepts) + len(v.Methods) + len(v.Datasets)
}

// ExtractionResult is the outcome of the extraction pipeline for one paper.
// OracleErr is set when pass 1 failed; the entity lists are then empty.
type ExtractionResult struct {
	Entities        ValidatedEntities
	Dropped         int
	EntitiesCreated int
	EdgesCreated    int
	OracleErr       error
	Errors          []error
}

// candidate is an extracted item travelling through passes 2 and 3.
type candidate struct {
	kind        common.EntityKind
	name        string
	key         string
	description string
	category    common.Category
	confidence  float64
	existing    *common.Entity
}

func (c candidate) label() string {
	return fmt.Sprintf("%s %q", c.kind, c.name)
}

// Extract runs the three extraction passes for paper and persists what
// survives. Oracle failures yield an empty result with OracleErr set;
// failures of single items are collected in Errors. An error is returned only
// when the paper cannot be loaded or every persistence attempt failed.
func (g *GraphClient) Extract(
	ctx context.Context,
	aiClient ai.GraphAIClient,
	storeClient store.CanonicalStore,
	ref common.PaperRef,
) (*ExtractionResult, error) {
	paper, err := storeClient.GetPaper(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("load paper %s: %w", ref.ID, err)
	}

	result := &ExtractionResult{Entities: ValidatedEntities{PaperID: paper.ID}}

	raw, err := g.rawExtract(ctx, aiClient, paper)
	if err != nil {
		result.OracleErr = err
		logger.Warn("[Extract] Pass 1 failed, continuing with no entities", "paper", paper.ID, "err", err)
		return result, nil
	}
	result.Entities.Metrics = raw.Metrics

	candidates := g.disambiguate(ctx, storeClient, raw)
	kept, dropped := g.validateCandidates(candidates)
	result.Dropped = dropped

	g.persist(ctx, storeClient, paper.ID, kept, result)

	logger.Info("[Extract] Paper processed",
		"paper", paper.ID,
		"concepts", len(result.Entities.Concepts),
		"methods", len(result.Entities.Methods),
		"datasets", len(result.Entities.Datasets),
		"metrics", len(result.Entities.Metrics),
		"dropped", dropped,
		"created", result.EntitiesCreated,
		"errors", len(result.Errors),
	)

	if len(kept) > 0 && len(result.Errors) == len(kept) {
		return result, fmt.Errorf("persist entities of %s: %w", paper.ID, errors.Join(result.Errors...))
	}
	return result, nil
}

// rawExtract is pass 1.
func (g *GraphClient) rawExtract(ctx context.Context, aiClient ai.GraphAIClient, paper common.Paper) (*ai.ExtractionResponse, error) {
	in := ai.ExtractionInput{
		Title:    paper.Title,
		Abstract: paper.Abstract,
		FullText: truncateToTokens(paper.FullText, g.fullTextMaxTokens, tokenCounter(g.tokenEncoder)),
	}
	res, err := ai.CallExtractionAI(ctx, aiClient, in, g.backoff, ai.WithTemperature(0))
	if err != nil {
		return nil, classifyOracleErr("extraction", err)
	}
	return res, nil
}

// disambiguate is pass 2: every item is looked up by its key, a hit rebinds
// the item to the stored entity.
func (g *GraphClient) disambiguate(ctx context.Context, storeClient store.CanonicalStore, raw *ai.ExtractionResponse) []candidate {
	out := make([]candidate, 0, len(raw.Concepts)+len(raw.Methods)+len(raw.Datasets))
	for _, c := range raw.Concepts {
		out = append(out, itemCandidate(common.EntityConcept, c))
	}
	for _, m := range raw.Methods {
		out = append(out, itemCandidate(common.EntityMethod, m))
	}
	for _, d := range raw.Datasets {
		name := strings.TrimSpace(d.Name)
		out = append(out, candidate{
			kind:        common.EntityDataset,
			name:        name,
			key:         common.KeyFor(common.EntityDataset, name),
			description: strings.TrimSpace(d.Description),
			confidence:  datasetConfidence,
		})
	}

	for i := range out {
		c := &out[i]
		if c.key == "" {
			continue
		}
		existing, err := storeClient.GetByNormalizedKey(ctx, c.kind, c.key)
		switch {
		case err == nil:
			c.existing = &existing
			c.name = existing.Name
			c.key = existing.Key
		case errors.Is(err, store.ErrNotFound):
		default:
			logger.Warn("[Extract] Lookup failed, treating as new", "item", c.label(), "err", err)
		}
	}
	return out
}

func itemCandidate(kind common.EntityKind, item ai.ExtractedItem) candidate {
	name := strings.TrimSpace(item.Name)
	return candidate{
		kind:        kind,
		name:        name,
		key:         common.KeyFor(kind, name),
		description: strings.TrimSpace(item.Description),
		category:    common.ParseCategory(item.Category),
		confidence:  item.Confidence,
	}
}

// validateCandidates is pass 3. Concepts with short descriptions lose a
// fifth of their confidence; description length is only a rough quality
// signal.
func (g *GraphClient) validateCandidates(in []candidate) ([]candidate, int) {
	kept := make([]candidate, 0, len(in))
	dropped := 0
	for _, c := range in {
		if c.name == "" || c.key == "" || c.description == "" {
			dropped++
			continue
		}
		if c.kind != common.EntityDataset {
			if !store.ValidConfidence(c.confidence) || c.confidence < minConfidence {
				dropped++
				continue
			}
		}
		if c.kind == common.EntityConcept && c.existing == nil &&
			utf8.RuneCountInString(c.description) < shortDescriptionRunes {
			c.confidence *= shortDescriptionScale
		}
		c.confidence = min(max(c.confidence, 0), 1)
		kept = append(kept, c)
	}
	return kept, dropped
}

// persist stores each candidate and links it to the paper. Items are
// independent: a failure is recorded and the next item is attempted.
func (g *GraphClient) persist(
	ctx context.Context,
	storeClient store.CanonicalStore,
	paperID string,
	kept []candidate,
	result *ExtractionResult,
) {
	seen := make(map[string]struct{}, len(kept))
	for _, c := range kept {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, &ItemError{Item: c.label(), Err: ctx.Err()})
			continue
		}

		entity, created, err := g.resolve(ctx, storeClient, paperID, c)
		if err != nil {
			logger.Warn("[Extract] Could not persist item", "paper", paperID, "item", c.label(), "err", err)
			result.Errors = append(result.Errors, &ItemError{Item: c.label(), Err: err})
			continue
		}
		if created {
			result.EntitiesCreated++
		}

		edge := common.Edge{
			Kind: common.LinkKindFor(entity.Kind),
			From: paperID,
			To:   entity.ID,
		}
		if edge.Kind.Scored() {
			edge.Confidence = entity.Confidence
		}
		linked, err := store.LinkOnce(ctx, storeClient, edge)
		if err != nil {
			logger.Warn("[Extract] Could not link item", "paper", paperID, "item", c.label(), "err", err)
			result.Errors = append(result.Errors, &ItemError{Item: c.label(), Err: err})
			continue
		}
		if linked {
			result.EdgesCreated++
		}

		if _, dup := seen[entity.ID]; dup {
			continue
		}
		seen[entity.ID] = struct{}{}
		switch entity.Kind {
		case common.EntityConcept:
			result.Entities.Concepts = append(result.Entities.Concepts, entity)
		case common.EntityMethod:
			result.Entities.Methods = append(result.Entities.Methods, entity)
		case common.EntityDataset:
			result.Entities.Datasets = append(result.Entities.Datasets, entity)
		}
	}
}

func (g *GraphClient) resolve(
	ctx context.Context,
	storeClient store.CanonicalStore,
	paperID string,
	c candidate,
) (common.Entity, bool, error) {
	if c.existing != nil {
		return *c.existing, false, nil
	}
	id, err := gonanoid.New()
	if err != nil {
		return common.Entity{}, false, fmt.Errorf("failed to generate ID for entity: %w", err)
	}
	return store.GetOrInsert(ctx, storeClient, common.Entity{
		ID:          id,
		Kind:        c.kind,
		Name:        c.name,
		Key:         c.key,
		Description: c.description,
		Category:    categoryFor(c),
		Confidence:  c.confidence,
		PaperID:     paperID,
	})
}

func categoryFor(c candidate) common.Category {
	if !c.kind.Categorized() {
		return ""
	}
	if c.category == "" {
		return common.CategoryOther
	}
	return c.category
}
