package graph

import (
	"sync/atomic"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
)

// Stats are the run-level counters. They are updated concurrently by
// workers and owned by one batch run.
type Stats struct {
	attempted       atomic.Int64
	succeeded       atomic.Int64
	failed          atomic.Int64
	entitiesCreated atomic.Int64
	edgesCreated    atomic.Int64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() common.RunStats {
	return common.RunStats{
		Attempted:       s.attempted.Load(),
		Succeeded:       s.succeeded.Load(),
		Failed:          s.failed.Load(),
		EntitiesCreated: s.entitiesCreated.Load(),
		EdgesCreated:    s.edgesCreated.Load(),
	}
}
