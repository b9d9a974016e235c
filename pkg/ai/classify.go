package ai

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// Relation is the taxonomy a concept pair is classified into.
type Relation string

const (
	RelationImprovesOn Relation = "improves_on"
	RelationExtends    Relation = "extends"
	RelationUses       Relation = "uses"
	RelationEvaluates  Relation = "evaluates"
	RelationNone       Relation = "none"
)

func (r Relation) Valid() bool {
	switch r {
	case RelationImprovesOn, RelationExtends, RelationUses, RelationEvaluates, RelationNone:
		return true
	}
	return false
}

// ClassificationResponse is the structured answer for one directed pair.
type ClassificationResponse struct {
	Relation        Relation `json:"relation" jsonschema:"enum=improves_on,enum=extends,enum=uses,enum=evaluates,enum=none" jsonschema_description:"How the new concept relates to the old one."`
	ImprovementKind string   `json:"improvement_kind" jsonschema_description:"One of speed, quality, generalization, simplicity. Empty unless relation is improves_on."`
	Confidence      float64  `json:"confidence" jsonschema:"minimum=0,maximum=1" jsonschema_description:"Certainty of the classification."`
	Rationale       string   `json:"rationale" jsonschema_description:"One sentence justification."`
}

// Validate enforces the relation taxonomy and, for improves_on, a known
// improvement kind.
func (r *ClassificationResponse) Validate() error {
	if !r.Relation.Valid() {
		return fmt.Errorf("unknown relation %q", r.Relation)
	}
	if !validScore(r.Confidence) {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	if r.Relation == RelationImprovesOn {
		if _, ok := common.ParseImprovementKind(r.ImprovementKind); !ok {
			return fmt.Errorf("improves_on without valid improvement kind %q", r.ImprovementKind)
		}
	}
	return nil
}

// CallClassifyAI classifies the directed pair (newer, older).
func CallClassifyAI(
	ctx context.Context,
	aiClient GraphAIClient,
	newer, older common.Entity,
	backoff util.Backoff,
	opts ...GenerateOption,
) (*ClassificationResponse, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("ai client is nil")
	}
	prompt := fmt.Sprintf(ClassifyPrompt, newer.Name, newer.Description, older.Name, older.Description)
	return util.RetryBackoff(ctx, backoff.WithRetryable(IsTransient), func(ctx context.Context) (*ClassificationResponse, error) {
		var res ClassificationResponse
		err := aiClient.GenerateCompletionWithFormat(
			ctx,
			"concept_relation",
			"Relation between a new and an existing research concept.",
			prompt,
			&res,
			opts...,
		)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
}
