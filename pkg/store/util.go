package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// GetOrInsert resolves e to its canonical row. A hit on the normalized key
// returns the existing entity. A miss inserts e; losing an insert race to
// another worker re-reads the winner instead of failing. created reports
// whether e itself was stored.
func GetOrInsert(ctx context.Context, s CanonicalStore, e common.Entity) (common.Entity, bool, error) {
	existing, err := s.GetByNormalizedKey(ctx, e.Kind, e.Key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return common.Entity{}, false, err
	}

	inserted, err := s.Insert(ctx, e)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, ErrUniqueViolation) {
		return common.Entity{}, false, err
	}

	existing, err = s.GetByNormalizedKey(ctx, e.Kind, e.Key)
	if err != nil {
		return common.Entity{}, false, fmt.Errorf("re-read after unique violation on %s %q: %w", e.Kind, e.Key, err)
	}
	return existing, false, nil
}

// LinkOnce creates edge e, treating an existing identical edge as success.
// created is false when the edge was already present.
func LinkOnce(ctx context.Context, s CanonicalStore, e common.Edge) (bool, error) {
	_, err := s.Link(ctx, e)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrAlreadyLinked) {
		return false, nil
	}
	return false, err
}

// ValidateEntity checks the fields every backend requires before insert.
func ValidateEntity(e common.Entity) error {
	if e.ID == "" {
		return errors.New("entity id is empty")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if e.Key == "" {
		return errors.New("entity normalized key is empty")
	}
	if !ValidConfidence(e.Confidence) {
		return fmt.Errorf("confidence %v out of range", e.Confidence)
	}
	return nil
}

// ValidateEdge checks kind, endpoints and confidence of e.
func ValidateEdge(e common.Edge) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown edge kind %q", e.Kind)
	}
	if e.From == "" || e.To == "" {
		return errors.New("edge endpoint is empty")
	}
	if e.Kind == common.EdgeConceptImproves && e.From == e.To {
		return ErrSelfLoop
	}
	if e.Kind.Scored() && !ValidConfidence(e.Confidence) {
		return fmt.Errorf("confidence %v out of range", e.Confidence)
	}
	return nil
}

// ValidConfidence reports whether v lies in [0,1].
func ValidConfidence(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// ChunkRange calls fn for consecutive [start,end) windows of at most
// chunkSize over total items.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
