package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const entityColumns = `id, kind, name, norm_key, description, category, confidence, paper_id, created_at`

func scanEntity(row pgxv5.Row) (common.Entity, error) {
	var (
		e        common.Entity
		kind     string
		category string
	)
	err := row.Scan(&e.ID, &kind, &e.Name, &e.Key, &e.Description, &category, &e.Confidence, &e.PaperID, &e.CreatedAt)
	e.Kind = common.EntityKind(kind)
	e.Category = common.Category(category)
	return e, err
}

func collectEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	defer rows.Close()
	var out []common.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetByNormalizedKey(ctx context.Context, kind common.EntityKind, key string) (common.Entity, error) {
	e, err := scanEntity(s.conn.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND norm_key = $2`,
		string(kind), key,
	))
	if err != nil {
		return common.Entity{}, mapErr(err)
	}
	return e, nil
}

// embeddingFor returns the vector stored with a concept, or nil when no
// embedding client is configured or the call fails.
func (s *GraphDBStorage) embeddingFor(ctx context.Context, e common.Entity) any {
	if len(e.Embedding) > 0 {
		return pgvector.NewVector(e.Embedding)
	}
	if s.aiClient == nil || e.Kind != common.EntityConcept {
		return nil
	}
	vec, err := s.aiClient.GenerateEmbedding(ctx, []byte(e.Name+": "+e.Description))
	if err != nil {
		logger.Warn("[Store] Embedding failed, storing concept without vector", "id", e.ID, "err", err)
		return nil
	}
	return pgvector.NewVector(vec)
}

// Insert relies on the (kind, norm_key) unique constraint; a lost race
// surfaces as store.ErrUniqueViolation.
func (s *GraphDBStorage) Insert(ctx context.Context, e common.Entity) (common.Entity, error) {
	if err := store.ValidateEntity(e); err != nil {
		return common.Entity{}, err
	}
	err := s.conn.QueryRow(ctx,
		`INSERT INTO entities (id, kind, name, norm_key, description, category, confidence, paper_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		e.ID,
		string(e.Kind),
		util.SanitizePostgresText(e.Name),
		e.Key,
		util.SanitizePostgresText(e.Description),
		string(e.Category),
		e.Confidence,
		e.PaperID,
		s.embeddingFor(ctx, e),
	).Scan(&e.CreatedAt)
	if err != nil {
		return common.Entity{}, mapErr(err)
	}
	logger.Debug("[Store][Insert] Entity created", "kind", e.Kind, "key", e.Key)
	return e, nil
}

func (s *GraphDBStorage) ListAll(ctx context.Context, kind common.EntityKind) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 ORDER BY created_at, id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return collectEntities(rows)
}

// CandidateConcepts ranks by cosine distance to c's stored embedding. Rows
// without a vector, or a c without one, fall back to most recent first.
func (s *GraphDBStorage) CandidateConcepts(ctx context.Context, c common.Entity, limit int) ([]common.Entity, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		WHERE kind = 'concept' AND id <> $1
		ORDER BY embedding <=> (SELECT embedding FROM entities WHERE id = $1) NULLS LAST, created_at DESC, id
		LIMIT $2`,
		c.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("candidate concepts for %s: %w", c.ID, err)
	}
	return collectEntities(rows)
}
