package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/OFFIS-RIT/litgraph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
)

// maxBodyBytes bounds downloads; full texts beyond this are not papers.
const maxBodyBytes = 64 << 20

// WebPaperLoader fetches URLs. HTML pages are reduced to their main article
// text with readability; any other content type is returned as raw bytes so
// a PDF loader can parse it.
type WebPaperLoader struct {
	client    *http.Client
	userAgent string
	cache     *loader.Cache
}

// NewWebPaperLoader creates a web loader using client, or
// http.DefaultClient when nil.
func NewWebPaperLoader(client *http.Client, userAgent string) *WebPaperLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPaperLoader{
		client:    client,
		userAgent: userAgent,
		cache:     loader.NewCache(),
	}
}

// GetFileText fetches a URL and extracts readable text content.
func (l *WebPaperLoader) GetFileText(ctx context.Context, file loader.PaperFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.FilePath, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if l.userAgent != "" {
			req.Header.Set("User-Agent", l.userAgent)
		}

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("failed to fetch url %s: status %d", file.FilePath, resp.StatusCode)
		}
		body := io.LimitReader(resp.Body, maxBodyBytes)

		if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			// Redirects (doi.org) change the base for relative links.
			base := resp.Request.URL
			if base == nil {
				if base, err = url.Parse(file.FilePath); err != nil {
					return nil, fmt.Errorf("failed to parse url: %w", err)
				}
			}
			article, err := readability.FromReader(body, base)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			return []byte(loader.CleanText(builder.String())), nil
		}

		return io.ReadAll(body)
	})
}
