// Package sqlite implements the canonical store on a single SQLite file.
// It suits local runs and tests; candidate concepts are ranked by recency.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	sqlite3 "github.com/mattn/go-sqlite3"
)

type Store struct {
	db  *sql.DB
	seq atomic.Int64
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	var maxSeq sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(seq) FROM entities`).Scan(&maxSeq); err != nil {
		db.Close()
		return nil, err
	}
	s.seq.Store(maxSeq.Int64)
	logger.Info("[Store] SQLite ready", "path", path)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return store.ErrUniqueViolation
		case sqlite3.ErrConstraintForeignKey:
			return store.ErrDanglingEdge
		}
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

const paperColumns = `id, title, s2_id, arxiv_id, doi, abstract, authors, year, published_at,
	citation_count, pdf_url, COALESCE(full_text, ''), created_at`

func scanPaper(row scanner) (common.Paper, error) {
	var (
		p         common.Paper
		authors   string
		published sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Title,
		&p.ExternalIDs.SemanticScholar, &p.ExternalIDs.ArXiv, &p.ExternalIDs.DOI,
		&p.Abstract, &authors, &p.Year, &published,
		&p.CitationCount, &p.PDFURL, &p.FullText, &p.CreatedAt,
	)
	if err != nil {
		return common.Paper{}, err
	}
	if err := json.Unmarshal([]byte(authors), &p.Authors); err != nil {
		return common.Paper{}, fmt.Errorf("decode authors of %s: %w", p.ID, err)
	}
	p.PublishedAt = timePtr(published)
	return p, nil
}

func (s *Store) EnsurePaper(ctx context.Context, p common.Paper) (common.Paper, bool, error) {
	if p.ID == "" {
		return common.Paper{}, false, errors.New("paper id is empty")
	}
	authors, err := json.Marshal(p.Authors)
	if err != nil {
		return common.Paper{}, false, err
	}
	if p.Authors == nil {
		authors = []byte("[]")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (id, title, s2_id, arxiv_id, doi, abstract, authors, year, published_at,
			citation_count, pdf_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Title, p.ExternalIDs.SemanticScholar, p.ExternalIDs.ArXiv, p.ExternalIDs.DOI,
		p.Abstract, string(authors), p.Year, nullTime(p.PublishedAt),
		p.CitationCount, p.PDFURL, s.now(),
	)
	if err != nil {
		return common.Paper{}, false, fmt.Errorf("insert paper %s: %w", p.ID, mapErr(err))
	}
	affected, _ := res.RowsAffected()
	stored, err := s.GetPaper(ctx, p.ID)
	if err != nil {
		return common.Paper{}, false, err
	}
	return stored, affected == 1, nil
}

func (s *Store) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	p, err := scanPaper(s.db.QueryRowContext(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = ?`, id))
	if err != nil {
		return common.Paper{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) ListPapers(ctx context.Context) ([]common.Paper, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+paperColumns+` FROM papers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AttachFullText(ctx context.Context, paperID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET full_text = ? WHERE id = ? AND full_text IS NULL`, text, paperID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetPaper(ctx, paperID); err != nil {
		return err
	}
	return store.ErrFullTextAttached
}
