package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/litgraph/pkg/loader"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"github.com/ledongthuc/pdf"
)

// PDFPaperLoader loads PDF files through a byte loader and extracts their
// text page by page.
type PDFPaperLoader struct {
	loader   loader.PaperFileLoader
	maxPages int
	cache    *loader.Cache
}

// NewPDFPaperLoader creates a PDF loader reading raw documents through
// source. maxPages bounds the pages parsed; 0 parses all of them.
func NewPDFPaperLoader(source loader.PaperFileLoader, maxPages int) *PDFPaperLoader {
	return &PDFPaperLoader{
		loader:   source,
		maxPages: maxPages,
		cache:    loader.NewCache(),
	}
}

// GetFileText extracts the text of a PDF paper. Pages that fail to decode
// are skipped.
func (l *PDFPaperLoader) GetFileText(ctx context.Context, file loader.PaperFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}
		text, err := l.parse(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("parse pdf %s: %w", file.FilePath, err)
		}
		return []byte(text), nil
	})
}

func (l *PDFPaperLoader) parse(ctx context.Context, content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	pages := reader.NumPage()
	if l.maxPages > 0 {
		pages = min(pages, l.maxPages)
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("[Loader] Skipping unreadable PDF page", "page", i, "err", err)
			continue
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	text := loader.CleanText(b.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text in %d pages", pages)
	}
	return text, nil
}
