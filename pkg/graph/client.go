package graph

import (
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
)

const (
	DefaultReferencesPerStep      = 20
	DefaultExpandPerStep          = 5
	DefaultCandidateLimit         = 5
	DefaultNearDuplicateThreshold = 0.85
	DefaultParallelPapers         = 4
	DefaultPaperTimeout           = 10 * time.Minute
	DefaultFullTextMaxTokens      = 6000
)

// GraphClient holds the tuning shared by the traversal, the per-paper stages
// and the coordinator. Collaborators (oracle, store, fetcher) are passed to
// each operation so one client can serve several backends.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	tokenEncoder           string
	referencesPerStep      int
	expandPerStep          int
	candidateLimit         int
	nearDuplicateThreshold float64
	maxDuplicates          int
	parallelPapers         int
	paperTimeout           time.Duration
	fullTextMaxTokens      int
	backoff                util.Backoff
}

// NewGraphClientParams configures a GraphClient. Zero values select the
// package defaults.
//
// ReferencesPerStep (K) caps references and citations fetched per paper.
// ExpandPerStep (N) is how many of those are pushed onto the frontier.
// MaxDuplicates is the number of exact duplicate groups a validation report
// tolerates before it is marked inconsistent.
type NewGraphClientParams struct {
	TokenEncoder           string
	ReferencesPerStep      int
	ExpandPerStep          int
	CandidateLimit         int
	NearDuplicateThreshold float64
	MaxDuplicates          int
	ParallelPapers         int
	PaperTimeout           time.Duration
	FullTextMaxTokens      int
	Backoff                *util.Backoff
}

// NewGraphClient creates a GraphClient from params.
//
// Example:
//
//	client := graph.NewGraphClient(graph.NewGraphClientParams{
//		ReferencesPerStep: 20,
//		ExpandPerStep:     5,
//		ParallelPapers:    4,
//	})
func NewGraphClient(params NewGraphClientParams) *GraphClient {
	g := &GraphClient{
		tokenEncoder:           params.TokenEncoder,
		referencesPerStep:      params.ReferencesPerStep,
		expandPerStep:          params.ExpandPerStep,
		candidateLimit:         params.CandidateLimit,
		nearDuplicateThreshold: params.NearDuplicateThreshold,
		maxDuplicates:          max(params.MaxDuplicates, 0),
		parallelPapers:         params.ParallelPapers,
		paperTimeout:           params.PaperTimeout,
		fullTextMaxTokens:      params.FullTextMaxTokens,
		backoff:                util.DefaultBackoff,
	}
	if g.tokenEncoder == "" {
		g.tokenEncoder = "o200k_base"
	}
	if g.referencesPerStep <= 0 {
		g.referencesPerStep = DefaultReferencesPerStep
	}
	if g.expandPerStep <= 0 {
		g.expandPerStep = DefaultExpandPerStep
	}
	if g.candidateLimit <= 0 {
		g.candidateLimit = DefaultCandidateLimit
	}
	if g.nearDuplicateThreshold <= 0 || g.nearDuplicateThreshold > 1 {
		g.nearDuplicateThreshold = DefaultNearDuplicateThreshold
	}
	if g.parallelPapers <= 0 {
		g.parallelPapers = DefaultParallelPapers
	}
	if g.paperTimeout <= 0 {
		g.paperTimeout = DefaultPaperTimeout
	}
	if g.fullTextMaxTokens <= 0 {
		g.fullTextMaxTokens = DefaultFullTextMaxTokens
	}
	if params.Backoff != nil {
		g.backoff = *params.Backoff
	}
	return g
}

// ExpandPerStep returns N, the number of neighbours pushed per expansion.
func (g *GraphClient) ExpandPerStep() int { return g.expandPerStep }

// ReferencesPerStep returns K, the fetch cap per direction.
func (g *GraphClient) ReferencesPerStep() int { return g.referencesPerStep }
