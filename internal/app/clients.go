package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/config"
	"github.com/OFFIS-RIT/litgraph/pkg/ai"
	oai "github.com/OFFIS-RIT/litgraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/litgraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/litgraph/pkg/citation"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/litgraph/pkg/loader"
	ioloader "github.com/OFFIS-RIT/litgraph/pkg/loader/io"
	"github.com/OFFIS-RIT/litgraph/pkg/loader/pdf"
	s3loader "github.com/OFFIS-RIT/litgraph/pkg/loader/s3"
	"github.com/OFFIS-RIT/litgraph/pkg/loader/web"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
	"github.com/OFFIS-RIT/litgraph/pkg/store/memory"
	pgxstore "github.com/OFFIS-RIT/litgraph/pkg/store/pgx"
	"github.com/OFFIS-RIT/litgraph/pkg/store/sqlite"

	"github.com/redis/go-redis/v9"
)

func NewAIClient(cfg config.AIConfig) (ai.GraphAIClient, error) {
	switch cfg.Adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  cfg.EmbedModel,
			ExtractionModel: cfg.ExtractionModel,
			EmbeddingDim:    cfg.EmbedDim,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			MaxConcurrentRequests: int64(cfg.ParallelReq),
		})
		if err != nil {
			return nil, fmt.Errorf("init ollama client: %w", err)
		}
		return client, nil
	default:
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  cfg.EmbedModel,
			ExtractionModel: cfg.ExtractionModel,
			EmbeddingDim:    cfg.EmbedDim,

			EmbeddingURL: cfg.EmbedURL,
			EmbeddingKey: cfg.EmbedKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,
		}), nil
	}
}

// openStore opens the configured backend. For postgres the pool also backs
// the paper leases, so a lease func is returned alongside when enabled.
func openStore(
	ctx context.Context,
	cfg config.Config,
	aiClient ai.GraphAIClient,
) (store.Store, graph.LeaseFunc, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		if err := pgxstore.Migrate(cfg.Store.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxstore.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		opts := []pgxstore.GraphDBStorageOption{pgxstore.WithCloser(pool.Close)}
		if cfg.AI.EmbedModel != "" {
			opts = append(opts, pgxstore.WithEmbeddings(aiClient))
		}
		st := pgxstore.NewGraphDBStorageWithConnection(pool, opts...)

		var lease graph.LeaseFunc
		if cfg.Pipeline.LeaseEnabled {
			host, _ := os.Hostname()
			lease = leaselock.New(pool).PaperLease(leaselock.Options{
				TTL:          cfg.Pipeline.LeaseTTL,
				HolderPrefix: host,
			})
		}
		logger.Info("[Store] Using postgres store", "lease", lease != nil)
		return st, lease, nil
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[Store] Using sqlite store", "path", cfg.Store.SQLitePath)
		return st, nil, nil
	default:
		logger.Info("[Store] Using in-memory store")
		return memory.New(), nil, nil
	}
}

// newFetcher prefers a snapshot file. Otherwise Semantic Scholar is used,
// cached in Redis when REDIS_URL is set.
func newFetcher(cfg config.CitationConfig) (citation.Fetcher, func(), error) {
	if cfg.SnapshotPath != "" {
		snap, err := citation.LoadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[Citation] Using snapshot", "path", cfg.SnapshotPath)
		return snap, func() {}, nil
	}

	s2 := citation.NewSemanticScholar(citation.SemanticScholarParams{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		RequestsPerSecond: cfg.RPS,
	})
	if cfg.RedisURL == "" {
		return s2, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	logger.Info("[Citation] Caching Semantic Scholar responses in redis", "ttl", cfg.CacheTTL)
	return citation.NewCached(s2, client, citation.CacheOptions{
			Prefix: cfg.CachePrefix,
			TTL:    cfg.CacheTTL,
		}), func() {
			_ = client.Close()
		}, nil
}

// newAttacher wires the paper file loaders. Raw bytes come from local
// files, http(s) or S3; PDFs are parsed on top of that and HTML pages go
// through readability.
func newAttacher(cfg config.Config, st loader.FullTextStore, objects s3loader.ObjectGetter) *loader.Attacher {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	webLoader := web.NewWebPaperLoader(httpClient, cfg.Pipeline.UserAgent)

	raw := loader.SchemeLoader{
		Local: ioloader.NewIOPaperLoader(),
		Web:   webLoader,
	}
	if objects != nil {
		raw.S3 = s3loader.NewS3PaperLoader(objects, cfg.S3.Bucket)
	}
	pdfLoader := pdf.NewPDFPaperLoader(raw, cfg.Pipeline.PDFMaxPages)

	return loader.NewAttacher(st, loader.DefaultResolver(pdfLoader, webLoader), cfg.Pipeline.FullTextMaxRunes)
}
