package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

func existsClause(nodeKind, param string) string {
	if nodeKind == common.NodePaper {
		return fmt.Sprintf(`SELECT 1 FROM papers WHERE id = %s`, param)
	}
	return fmt.Sprintf(`SELECT 1 FROM entities WHERE id = %s AND kind = '%s'`, param, nodeKind)
}

const edgeColumns = `kind, from_id, to_id, confidence, improvement, created_at`

func scanEdge(row scanner) (common.Edge, error) {
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

func (s *Store) Link(ctx context.Context, e common.Edge) (common.Edge, error) {
	if err := store.ValidateEdge(e); err != nil {
		return common.Edge{}, err
	}
	from, to := e.Kind.Endpoints()
	e.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO edges (kind, from_id, to_id, confidence, improvement, created_at)
		SELECT ?1, ?2, ?3, ?4, ?5, ?6
		WHERE EXISTS (%s) AND EXISTS (%s)
		ON CONFLICT (kind, from_id, to_id) DO NOTHING`,
		existsClause(from, "?2"), existsClause(to, "?3")),
		string(e.Kind), e.From, e.To, e.Confidence, string(e.Improvement), e.CreatedAt,
	)
	if err != nil {
		return common.Edge{}, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return e, nil
	}

	existing, err := scanEdge(s.db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE kind = ? AND from_id = ? AND to_id = ?`,
		string(e.Kind), e.From, e.To))
	if err == nil {
		return existing, store.ErrAlreadyLinked
	}
	if errors.Is(mapErr(err), store.ErrNotFound) {
		return common.Edge{}, store.ErrDanglingEdge
	}
	return common.Edge{}, err
}

func (s *Store) ListEdges(ctx context.Context, kind common.EdgeKind) ([]common.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE kind = ? ORDER BY rowid`, string(kind))
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
