// Package citation fetches paper metadata and the citation neighbourhood of a
// paper from an external citation graph.
package citation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// ErrNotFound is returned when the citation graph does not know a paper.
var ErrNotFound = errors.New("citation: paper not found")

// Fetcher is the read side of a citation graph. References are papers cited
// by id; citations are papers citing it. Both are capped at limit.
type Fetcher interface {
	GetPaper(ctx context.Context, id string) (common.Paper, error)
	GetReferences(ctx context.Context, id string, limit int) ([]common.PaperRef, error)
	GetCitations(ctx context.Context, id string, limit int) ([]common.PaperRef, error)
}

// StatusError is a non-2xx answer from the citation API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("citation %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying: rate limits, server
// errors and network timeouts. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode == http.StatusRequestTimeout ||
			se.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
