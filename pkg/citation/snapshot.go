package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// SnapshotFile is the on-disk form of a static citation graph. References
// and Citations map a paper id to neighbour ids in discovery order.
type SnapshotFile struct {
	Papers     []common.Paper      `json:"papers"`
	References map[string][]string `json:"references"`
	Citations  map[string][]string `json:"citations"`
}

// Snapshot is a Fetcher over a fixed graph. It is read-only after
// construction and safe for concurrent use.
type Snapshot struct {
	papers map[string]common.Paper
	refs   map[string][]string
	cites  map[string][]string
}

var _ Fetcher = (*Snapshot)(nil)

func NewSnapshot(file SnapshotFile) *Snapshot {
	s := &Snapshot{
		papers: make(map[string]common.Paper, len(file.Papers)),
		refs:   file.References,
		cites:  file.Citations,
	}
	for _, p := range file.Papers {
		s.papers[p.ID] = p
	}
	return s
}

// LoadSnapshot reads a SnapshotFile encoded as JSON.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var file SnapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return NewSnapshot(file), nil
}

func (s *Snapshot) GetPaper(ctx context.Context, id string) (common.Paper, error) {
	p, ok := s.papers[id]
	if !ok {
		return common.Paper{}, ErrNotFound
	}
	return p, nil
}

func (s *Snapshot) neighbours(id string, ids []string, limit int) ([]common.PaperRef, error) {
	if _, ok := s.papers[id]; !ok {
		return nil, ErrNotFound
	}
	var out []common.PaperRef
	for _, nid := range ids {
		if len(out) == limit {
			break
		}
		if p, ok := s.papers[nid]; ok {
			out = append(out, p.Ref())
		}
	}
	return out, nil
}

func (s *Snapshot) GetReferences(ctx context.Context, id string, limit int) ([]common.PaperRef, error) {
	return s.neighbours(id, s.refs[id], limit)
}

func (s *Snapshot) GetCitations(ctx context.Context, id string, limit int) ([]common.PaperRef, error) {
	return s.neighbours(id, s.cites[id], limit)
}
