package app

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/litgraph/internal/config"
	"github.com/OFFIS-RIT/litgraph/internal/storage"
	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	"github.com/OFFIS-RIT/litgraph/pkg/citation"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/loader"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/projection"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
)

// App holds the collaborators shared by the CLI, the worker and the API.
// Optional parts (Attacher, Lease, Neo4j, Objects) are nil when not
// configured.
type App struct {
	Cfg      config.Config
	AI       ai.GraphAIClient
	Store    store.Store
	Fetcher  citation.Fetcher
	Graph    *graph.GraphClient
	Attacher *loader.Attacher
	Lease    graph.LeaseFunc
	Neo4j    *projection.Neo4jSink
	Objects  storage.ObjectStore

	closers []func()
}

// New wires every collaborator from cfg. On error everything opened so far
// is closed again.
func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	a := &App{Cfg: cfg, Graph: graph.NewGraphClient(cfg.GraphParams())}
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()

	logger.Info("[App] Wiring clients...")

	a.AI, err = NewAIClient(cfg.AI)
	if err != nil {
		return nil, err
	}

	st, lease, err := openStore(ctx, cfg, a.AI)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store, a.Lease = st, lease
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn("[Store] Close failed", "err", err)
		}
	})

	fetcher, closeFetcher, err := newFetcher(cfg.Citation)
	if err != nil {
		return nil, fmt.Errorf("init citation fetcher: %w", err)
	}
	a.Fetcher = fetcher
	a.closers = append(a.closers, closeFetcher)

	if cfg.S3.Enabled() {
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		a.Objects = client
		a.Attacher = newAttacher(cfg, st, client)
	} else {
		a.Attacher = newAttacher(cfg, st, nil)
	}

	if cfg.Neo4j.Enabled() {
		sink, err := projection.NewNeo4jSink(ctx, projection.Neo4jParams{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("init neo4j sink: %w", err)
		}
		a.Neo4j = sink
		a.closers = append(a.closers, func() {
			if err := sink.Close(context.Background()); err != nil {
				logger.Warn("[Projection] Close failed", "err", err)
			}
		})
	}

	return a, nil
}

// Coordinator builds a coordinator with every optional hook that is
// configured.
func (a *App) Coordinator() *graph.Coordinator {
	opts := []graph.CoordinatorOption{graph.WithTaskRecorder(a.Store)}
	if a.Lease != nil {
		opts = append(opts, graph.WithLease(a.Lease))
	}
	if a.Attacher != nil {
		opts = append(opts, graph.WithFullText(a.Attacher.Attach))
	}
	return graph.NewCoordinator(a.Graph, a.AI, a.Store, opts...)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
