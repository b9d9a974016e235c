package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jSink writes snapshots of the canonical graph into Neo4j.
type Neo4jSink struct {
	driver    neo4j.DriverWithContext
	database  string
	batchSize int
	now       func() time.Time
}

type Neo4jParams struct {
	URI      string
	User     string
	Password string
	Database string
	MaxPool  int
	Timeout  time.Duration
	// BatchSize bounds rows per UNWIND statement.
	BatchSize int
}

// NewNeo4jSink connects and verifies connectivity.
func NewNeo4jSink(ctx context.Context, params Neo4jParams) (*Neo4jSink, error) {
	if params.URI == "" {
		return nil, fmt.Errorf("neo4j uri is empty")
	}
	if params.User == "" {
		params.User = "neo4j"
	}
	if params.Timeout <= 0 {
		params.Timeout = 10 * time.Second
	}
	if params.MaxPool <= 0 {
		params.MaxPool = 50
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}

	auth := neo4j.BasicAuth(params.User, params.Password, "")
	driver, err := neo4j.NewDriverWithContext(params.URI, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = params.MaxPool
		cfg.SocketConnectTimeout = params.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	return &Neo4jSink{
		driver:    driver,
		database:  params.Database,
		batchSize: params.BatchSize,
		now:       time.Now,
	}, nil
}

func (s *Neo4jSink) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

var schemaStatements = []string{
	`CREATE CONSTRAINT paper_id_unique IF NOT EXISTS FOR (p:Paper) REQUIRE p.id IS UNIQUE`,
	`CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT method_id_unique IF NOT EXISTS FOR (m:Method) REQUIRE m.id IS UNIQUE`,
	`CREATE CONSTRAINT dataset_id_unique IF NOT EXISTS FOR (d:Dataset) REQUIRE d.id IS UNIQUE`,
}

// Project reads the whole canonical graph from st and merges it into Neo4j.
func (s *Neo4jSink) Project(ctx context.Context, st store.CanonicalStore) (Stats, error) {
	snap, err := ReadSnapshot(ctx, st)
	if err != nil {
		return Stats{}, err
	}
	return s.Write(ctx, snap)
}

// Write merges snap into Neo4j. Nodes are written before relationships so
// every MATCH finds its endpoints.
func (s *Neo4jSink) Write(ctx context.Context, snap Snapshot) (Stats, error) {
	syncedAt := s.now().UTC().Format(time.RFC3339Nano)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			logger.Warn("[Projection] Schema init failed, continuing", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}

	var stats Stats
	write := func(cypher string, rows []map[string]any) error {
		return store.ChunkRange(len(rows), s.batchSize, func(start, end int) error {
			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows[start:end]})
				if err != nil {
					return nil, err
				}
				return res.Consume(ctx)
			})
			return err
		})
	}

	papers := paperRows(snap.Papers, syncedAt)
	if err := write(nodeCypher("Paper"), papers); err != nil {
		return stats, fmt.Errorf("project papers: %w", err)
	}
	stats.Papers = len(papers)

	entities := entityRows(snap.Entities, syncedAt)
	for _, kind := range common.EntityKinds {
		label := nodeLabel(string(kind))
		if err := write(nodeCypher(label), entities[label]); err != nil {
			return stats, fmt.Errorf("project %s: %w", kind, err)
		}
		stats.Entities += len(entities[label])
	}

	edges := edgeRows(snap.Edges, syncedAt)
	for _, kind := range common.EdgeKinds {
		if err := write(edgeCypher(kind), edges[kind]); err != nil {
			return stats, fmt.Errorf("project %s: %w", kind, err)
		}
		stats.Edges += len(edges[kind])
	}

	logger.Info("[Projection] Graph projected", "papers", stats.Papers, "entities", stats.Entities, "edges", stats.Edges)
	return stats, nil
}
