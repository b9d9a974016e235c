package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func existsClause(nodeKind, param string) string {
	if nodeKind == common.NodePaper {
		return fmt.Sprintf(`SELECT 1 FROM papers WHERE id = %s`, param)
	}
	return fmt.Sprintf(`SELECT 1 FROM entities WHERE id = %s AND kind = '%s'`, param, nodeKind)
}

func linkSQL(kind common.EdgeKind) string {
	from, to := kind.Endpoints()
	return fmt.Sprintf(`INSERT INTO edges (kind, from_id, to_id, confidence, improvement)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (%s) AND EXISTS (%s)
		ON CONFLICT (kind, from_id, to_id) DO NOTHING
		RETURNING created_at`, existsClause(from, "$2"), existsClause(to, "$3"))
}

const edgeColumns = `kind, from_id, to_id, confidence, improvement, created_at`

func scanEdge(row pgxv5.Row) (common.Edge, error) {
	var (
		e           common.Edge
		kind        string
		improvement string
	)
	err := row.Scan(&kind, &e.From, &e.To, &e.Confidence, &improvement, &e.CreatedAt)
	e.Kind = common.EdgeKind(kind)
	e.Improvement = common.ImprovementKind(improvement)
	return e, err
}

// Link inserts e when both endpoints exist. No returned row means either the
// edge already exists or an endpoint is missing; a follow-up read tells
// which.
func (s *GraphDBStorage) Link(ctx context.Context, e common.Edge) (common.Edge, error) {
	if err := store.ValidateEdge(e); err != nil {
		return common.Edge{}, err
	}
	err := s.conn.QueryRow(ctx, linkSQL(e.Kind),
		string(e.Kind), e.From, e.To, e.Confidence, string(e.Improvement),
	).Scan(&e.CreatedAt)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return common.Edge{}, mapErr(err)
	}

	existing, err := scanEdge(s.conn.QueryRow(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE kind = $1 AND from_id = $2 AND to_id = $3`,
		string(e.Kind), e.From, e.To,
	))
	if err == nil {
		return existing, store.ErrAlreadyLinked
	}
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Edge{}, store.ErrDanglingEdge
	}
	return common.Edge{}, err
}

func (s *GraphDBStorage) ListEdges(ctx context.Context, kind common.EdgeKind) ([]common.Edge, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE kind = $1 ORDER BY created_at, from_id, to_id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s edges: %w", kind, err)
	}
	defer rows.Close()

	var out []common.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
