package sqlite

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

const entityColumns = `id, kind, name, norm_key, description, category, confidence, paper_id, created_at`

func scanEntity(row scanner) (common.Entity, error) {
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

func (s *Store) queryEntities(ctx context.Context, query string, args ...any) ([]common.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

func (s *Store) GetByNormalizedKey(ctx context.Context, kind common.EntityKind, key string) (common.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND norm_key = ?`, string(kind), key))
	if err != nil {
		return common.Entity{}, mapErr(err)
	}
	return e, nil
}

func (s *Store) Insert(ctx context.Context, e common.Entity) (common.Entity, error) {
	if err := store.ValidateEntity(e); err != nil {
		return common.Entity{}, err
	}
	e.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, kind, name, norm_key, description, category, confidence, paper_id, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Name, e.Key, e.Description, string(e.Category), e.Confidence, e.PaperID,
		e.CreatedAt, s.seq.Add(1),
	)
	if err != nil {
		return common.Entity{}, mapErr(err)
	}
	return e, nil
}

func (s *Store) ListAll(ctx context.Context, kind common.EntityKind) ([]common.Entity, error) {
	out, err := s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? ORDER BY seq`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

// CandidateConcepts returns the most recently inserted concepts first.
func (s *Store) CandidateConcepts(ctx context.Context, c common.Entity, limit int) ([]common.Entity, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = 'concept' AND id <> ? ORDER BY seq DESC LIMIT ?`,
		c.ID, limit)
}
