package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

// FullTextStore is the part of the canonical store the attacher writes to.
type FullTextStore interface {
	GetPaper(ctx context.Context, id string) (common.Paper, error)
	AttachFullText(ctx context.Context, paperID, text string) error
}

// Resolver picks the full-text location of a paper, if one is known.
type Resolver func(p common.Paper) (PaperFile, bool)

// DefaultResolver prefers an explicit PDF link, then the arXiv PDF, then
// the DOI landing page.
func DefaultResolver(pdf, web PaperFileLoader) Resolver {
	return func(p common.Paper) (PaperFile, bool) {
		params := NewPaperFileParams{PaperID: p.ID, Loader: pdf}
		switch {
		case p.PDFURL != "" && pdf != nil:
			params.FilePath = p.PDFURL
			return NewPDFFile(params), true
		case p.ExternalIDs.ArXiv != "" && pdf != nil:
			params.FilePath = "https://arxiv.org/pdf/" + strings.TrimSpace(p.ExternalIDs.ArXiv)
			return NewPDFFile(params), true
		case p.ExternalIDs.DOI != "" && web != nil:
			params.FilePath = "https://doi.org/" + strings.TrimSpace(p.ExternalIDs.DOI)
			params.Loader = web
			return NewWebFile(params), true
		}
		return PaperFile{}, false
	}
}

// Attacher loads a paper's full text and attaches it once.
type Attacher struct {
	store    FullTextStore
	resolve  Resolver
	maxRunes int
}

// NewAttacher creates an attacher. maxRunes caps the stored text; 0 keeps
// all of it.
func NewAttacher(st FullTextStore, resolve Resolver, maxRunes int) *Attacher {
	return &Attacher{store: st, resolve: resolve, maxRunes: maxRunes}
}

// Attach loads and stores the full text of paperID. Papers that already have
// full text or have no known source are left alone without error.
func (a *Attacher) Attach(ctx context.Context, paperID string) error {
	paper, err := a.store.GetPaper(ctx, paperID)
	if err != nil {
		return fmt.Errorf("load paper %s: %w", paperID, err)
	}
	if paper.HasFullText() {
		return nil
	}
	file, ok := a.resolve(paper)
	if !ok {
		logger.Debug("[Loader] No full-text source", "paper", paperID)
		return nil
	}

	raw, err := file.GetText(ctx)
	if err != nil {
		return fmt.Errorf("load full text of %s from %s: %w", paperID, file.FilePath, err)
	}
	text := CleanText(string(raw))
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if a.maxRunes > 0 && utf8.RuneCountInString(text) > a.maxRunes {
		text = string([]rune(text)[:a.maxRunes])
	}
	if text == "" {
		return fmt.Errorf("full text of %s from %s is empty", paperID, file.FilePath)
	}

	err = a.store.AttachFullText(ctx, paperID, text)
	if errors.Is(err, store.ErrFullTextAttached) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("attach full text of %s: %w", paperID, err)
	}
	logger.Info("[Loader] Attached full text", "paper", paperID, "source", file.FilePath, "runes", utf8.RuneCountInString(text))
	return nil
}
