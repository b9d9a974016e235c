package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

const paperColumns = `id, title, s2_id, arxiv_id, doi, abstract, authors, year, published_at,
	citation_count, pdf_url, COALESCE(full_text, ''), created_at`

const insertPaperSQL = `INSERT INTO papers
	(id, title, s2_id, arxiv_id, doi, abstract, authors, year, published_at, citation_count, pdf_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

func scanPaper(row pgxv5.Row) (common.Paper, error) {
	var (
		p         common.Paper
		published *time.Time
	)
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.ExternalIDs.SemanticScholar,
		&p.ExternalIDs.ArXiv,
		&p.ExternalIDs.DOI,
		&p.Abstract,
		&p.Authors,
		&p.Year,
		&published,
		&p.CitationCount,
		&p.PDFURL,
		&p.FullText,
		&p.CreatedAt,
	)
	p.PublishedAt = published
	return p, err
}

func (s *GraphDBStorage) EnsurePaper(ctx context.Context, p common.Paper) (common.Paper, bool, error) {
	if p.ID == "" {
		return common.Paper{}, false, fmt.Errorf("paper id is empty")
	}
	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	tag, err := s.conn.Exec(ctx, insertPaperSQL,
		p.ID,
		util.SanitizePostgresText(p.Title),
		p.ExternalIDs.SemanticScholar,
		p.ExternalIDs.ArXiv,
		p.ExternalIDs.DOI,
		util.SanitizePostgresText(p.Abstract),
		authors,
		p.Year,
		p.PublishedAt,
		p.CitationCount,
		p.PDFURL,
	)
	if err != nil {
		return common.Paper{}, false, fmt.Errorf("insert paper %s: %w", p.ID, mapErr(err))
	}
	stored, err := s.GetPaper(ctx, p.ID)
	if err != nil {
		return common.Paper{}, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (s *GraphDBStorage) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	p, err := scanPaper(s.conn.QueryRow(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = $1`, id))
	if err != nil {
		return common.Paper{}, mapErr(err)
	}
	return p, nil
}

func (s *GraphDBStorage) ListPapers(ctx context.Context) ([]common.Paper, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+paperColumns+` FROM papers ORDER BY created_at, id`)
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

// AttachFullText only writes when full_text is still NULL, so concurrent
// attaches cannot overwrite each other.
func (s *GraphDBStorage) AttachFullText(ctx context.Context, paperID, text string) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE papers SET full_text = $2 WHERE id = $1 AND full_text IS NULL`,
		paperID, util.SanitizePostgresText(text),
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var attached bool
	err = s.conn.QueryRow(ctx, `SELECT full_text IS NOT NULL FROM papers WHERE id = $1`, paperID).Scan(&attached)
	if err != nil {
		return mapErr(err)
	}
	if attached {
		return store.ErrFullTextAttached
	}
	return fmt.Errorf("attach full text to %s: no row updated", paperID)
}
