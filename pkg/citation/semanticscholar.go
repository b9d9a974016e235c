package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultSemanticScholarURL = "https://api.semanticscholar.org/graph/v1"

	paperFields = "paperId,title,abstract,year,publicationDate,citationCount,externalIds,authors,openAccessPdf"
	refFields   = "paperId,title,citationCount,externalIds"
)

// SemanticScholar is a Fetcher backed by the Semantic Scholar Graph API.
// Requests share one rate limiter; concurrent lookups of the same paper are
// collapsed into one request.
type SemanticScholar struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	backoff util.Backoff
	group   singleflight.Group
}

var _ Fetcher = (*SemanticScholar)(nil)

type SemanticScholarParams struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond defaults to 1, the unauthenticated quota.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Backoff           *util.Backoff
}

func NewSemanticScholar(params SemanticScholarParams) *SemanticScholar {
	baseURL := strings.TrimRight(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultSemanticScholarURL
	}
	rps := params.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	backoff := util.DefaultBackoff
	if params.Backoff != nil {
		backoff = *params.Backoff
	}

	return &SemanticScholar{
		baseURL: baseURL,
		apiKey:  params.APIKey,
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		backoff: backoff.WithRetryable(IsTransient),
	}
}

type s2ExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type s2Author struct {
	Name string `json:"name"`
}

type s2Paper struct {
	PaperID         string        `json:"paperId"`
	Title           string        `json:"title"`
	Abstract        string        `json:"abstract"`
	Year            int           `json:"year"`
	PublicationDate string        `json:"publicationDate"`
	CitationCount   int           `json:"citationCount"`
	ExternalIDs     s2ExternalIDs `json:"externalIds"`
	Authors         []s2Author    `json:"authors"`
	OpenAccessPDF   *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (p s2Paper) ids() common.ExternalIDs {
	return common.ExternalIDs{
		SemanticScholar: p.PaperID,
		ArXiv:           p.ExternalIDs.ArXiv,
		DOI:             p.ExternalIDs.DOI,
	}
}

func (p s2Paper) ref() common.PaperRef {
	return common.PaperRef{
		ID:            p.PaperID,
		Title:         p.Title,
		CitationCount: p.CitationCount,
		ExternalIDs:   p.ids(),
	}
}

func (p s2Paper) paper() common.Paper {
	out := common.Paper{
		ID:            p.PaperID,
		Title:         p.Title,
		ExternalIDs:   p.ids(),
		Abstract:      p.Abstract,
		Year:          p.Year,
		CitationCount: p.CitationCount,
	}
	for _, a := range p.Authors {
		out.Authors = append(out.Authors, a.Name)
	}
	if t, err := time.Parse(time.DateOnly, p.PublicationDate); err == nil {
		out.PublishedAt = &t
	}
	if p.OpenAccessPDF != nil {
		out.PDFURL = p.OpenAccessPDF.URL
	}
	return out
}

type s2Edge struct {
	CitedPaper  *s2Paper `json:"citedPaper"`
	CitingPaper *s2Paper `json:"citingPaper"`
}

type s2EdgePage struct {
	Data []s2Edge `json:"data"`
}

func (c *SemanticScholar) get(ctx context.Context, op, path string, query url.Values, out any) error {
	_, err := util.RetryBackoff(ctx, c.backoff, func(ctx context.Context) (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("citation %s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return struct{}{}, ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return struct{}{}, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("citation %s: decode: %w", op, err)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *SemanticScholar) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	v, err, shared := c.group.Do("paper:"+id, func() (any, error) {
		var p s2Paper
		err := c.get(ctx, "get paper", "/paper/"+url.PathEscape(id), url.Values{"fields": {paperFields}}, &p)
		if err != nil {
			return common.Paper{}, err
		}
		if p.PaperID == "" {
			return common.Paper{}, ErrNotFound
		}
		return p.paper(), nil
	})
	if shared {
		logger.Debug("[Citation] Shared in-flight paper lookup", "id", id)
	}
	if err != nil {
		return common.Paper{}, err
	}
	return v.(common.Paper), nil
}

func (c *SemanticScholar) neighbours(ctx context.Context, op, id, edge string, limit int) ([]common.PaperRef, error) {
	if limit <= 0 {
		return nil, nil
	}
	var page s2EdgePage
	query := url.Values{"fields": {refFields}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, op, "/paper/"+url.PathEscape(id)+"/"+edge, query, &page); err != nil {
		return nil, err
	}

	refs := make([]common.PaperRef, 0, len(page.Data))
	for _, e := range page.Data {
		p := e.CitedPaper
		if p == nil {
			p = e.CitingPaper
		}
		// Unresolved entries carry no paperId.
		if p == nil || p.PaperID == "" {
			continue
		}
		refs = append(refs, p.ref())
		if len(refs) == limit {
			break
		}
	}
	return refs, nil
}

func (c *SemanticScholar) GetReferences(ctx context.Context, id string, limit int) ([]common.PaperRef, error) {
	return c.neighbours(ctx, "get references", id, "references", limit)
}

func (c *SemanticScholar) GetCitations(ctx context.Context, id string, limit int) ([]common.PaperRef, error) {
	return c.neighbours(ctx, "get citations", id, "citations", limit)
}
