package citation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SemanticScholar {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSemanticScholar(SemanticScholarParams{
		BaseURL:           srv.URL,
		APIKey:            "secret",
		RequestsPerSecond: 1000,
		Backoff:           &util.Backoff{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2},
	})
}

func TestGetPaperDecodesMetadata(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/paper/ARXIV:1706.03762" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("fields") == "" {
			t.Errorf("fields not requested")
		}
		fmt.Fprint(w, `{
			"paperId": "204e3073",
			"title": "Attention Is All You Need",
			"abstract": "The dominant sequence transduction models...",
			"year": 2017,
			"publicationDate": "2017-06-12",
			"citationCount": 90000,
			"externalIds": {"DOI": "10.5555/3295222", "ArXiv": "1706.03762", "CorpusId": 13756489},
			"authors": [{"authorId": "1", "name": "Ashish Vaswani"}],
			"openAccessPdf": {"url": "https://arxiv.org/pdf/1706.03762"}
		}`)
	})

	p, err := c.GetPaper(context.Background(), "ARXIV:1706.03762")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if p.ID != "204e3073" || p.CitationCount != 90000 || p.Year != 2017 {
		t.Fatalf("unexpected paper %+v", p)
	}
	if p.ExternalIDs.ArXiv != "1706.03762" || p.ExternalIDs.SemanticScholar != "204e3073" {
		t.Errorf("unexpected ids %+v", p.ExternalIDs)
	}
	if p.PublishedAt == nil || p.PublishedAt.Month() != time.June {
		t.Errorf("publication date not parsed: %v", p.PublishedAt)
	}
	if len(p.Authors) != 1 || p.Authors[0] != "Ashish Vaswani" {
		t.Errorf("unexpected authors %v", p.Authors)
	}
	if p.PDFURL != "https://arxiv.org/pdf/1706.03762" {
		t.Errorf("unexpected pdf url %q", p.PDFURL)
	}
}

func TestGetPaperNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Paper not found"}`, http.StatusNotFound)
	})

	_, err := c.GetPaper(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReferencesSkipUnresolvedAndRespectLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/paper/p1/references" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q, want 2", got)
		}
		fmt.Fprint(w, `{"data": [
			{"citedPaper": {"paperId": null, "title": "unresolved"}},
			{"citedPaper": {"paperId": "a", "title": "A", "citationCount": 10}},
			{"citedPaper": {"paperId": "b", "title": "B", "citationCount": 3}},
			{"citedPaper": {"paperId": "c", "title": "C", "citationCount": 7}}
		]}`)
	})

	refs, err := c.GetReferences(context.Background(), "p1", 2)
	if err != nil {
		t.Fatalf("GetReferences: %v", err)
	}
	if len(refs) != 2 || refs[0].ID != "a" || refs[1].ID != "b" {
		t.Fatalf("unexpected refs %+v", refs)
	}
	if refs[0].CitationCount != 10 {
		t.Errorf("citation count not decoded: %+v", refs[0])
	}
}

func TestCitationsUseCitingPaper(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"citingPaper": {"paperId": "later", "citationCount": 1}}]}`)
	})

	refs, err := c.GetCitations(context.Background(), "p1", 5)
	if err != nil {
		t.Fatalf("GetCitations: %v", err)
	}
	if len(refs) != 1 || refs[0].ID != "later" {
		t.Fatalf("unexpected citations %+v", refs)
	}
}

func TestRateLimitedRequestsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"paperId": "p1", "title": "ok"}`)
	})

	p, err := c.GetPaper(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if p.ID != "p1" {
		t.Fatalf("unexpected paper %+v", p)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad id", http.StatusBadRequest)
	})

	_, err := c.GetReferences(context.Background(), "???", 5)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if IsTransient(err) {
		t.Errorf("400 must not be transient")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"404 status", &StatusError{StatusCode: 404}, false},
		{"not found", ErrNotFound, false},
		{"wrapped 502", fmt.Errorf("fetch: %w", &StatusError{StatusCode: 502}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
