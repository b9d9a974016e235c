// Package pgx implements the canonical store on PostgreSQL with pgvector.
package pgx

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.Store on PostgreSQL. Uniqueness of
// (kind, norm_key) and edge primary keys is enforced by constraints, so
// concurrent workers rely on the database rather than a process lock.
type GraphDBStorage struct {
	conn     pgxIConn
	aiClient ai.GraphAIClient
	closeFn  func()
}

var _ store.Store = (*GraphDBStorage)(nil)

type GraphDBStorageOption func(*GraphDBStorage)

// WithEmbeddings makes Insert embed concept descriptions so that
// CandidateConcepts can rank by vector distance.
func WithEmbeddings(client ai.GraphAIClient) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.aiClient = client
	}
}

// WithCloser registers a function run by Close, typically pool.Close.
func WithCloser(fn func()) GraphDBStorageOption {
	return func(s *GraphDBStorage) {
		s.closeFn = fn
	}
}

// NewGraphDBStorageWithConnection creates a store over an existing pool or
// connection.
func NewGraphDBStorageWithConnection(
	conn pgxIConn,
	opts ...GraphDBStorageOption,
) *GraphDBStorage {
	s := &GraphDBStorage{conn: conn}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *GraphDBStorage) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgxv5.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return store.ErrUniqueViolation
		case pgForeignKeyViolation:
			return store.ErrDanglingEdge
		case pgCheckViolation:
			if pgErr.ConstraintName == "edges_no_self_improvement" {
				return store.ErrSelfLoop
			}
		}
	}
	return err
}
