package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
)

type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreSQLite   StoreBackend = "sqlite"
)

type AIConfig struct {
	Adapter         string
	ChatURL         string
	ChatKey         string
	ExtractionModel string
	EmbedURL        string
	EmbedKey        string
	EmbedModel      string
	EmbedDim        int
	ParallelReq     int
}

type StoreConfig struct {
	Backend     StoreBackend
	DatabaseURL string
	SQLitePath  string
}

type CitationConfig struct {
	SnapshotPath string
	BaseURL      string
	APIKey       string
	RPS          float64
	RedisURL     string
	CacheTTL     time.Duration
	CachePrefix  string
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// Enabled reports whether runs are mirrored to Neo4j.
func (c Neo4jConfig) Enabled() bool { return c.URI != "" }

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Queue    string
}

// URL assembles the amqp connection string.
func (c RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/",
	}
	return u.String()
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

type PipelineConfig struct {
	ParallelPapers         int
	PaperTimeout           time.Duration
	ReferencesPerStep      int
	ExpandPerStep          int
	CandidateLimit         int
	NearDuplicateThreshold float64
	MaxDuplicates          int
	FullTextMaxTokens      int
	FullTextMaxRunes       int
	PDFMaxPages            int
	UserAgent              string
	LeaseEnabled           bool
	LeaseTTL               time.Duration
}

type ServerConfig struct {
	Port    string
	AuthURL string
}

type OTelConfig struct {
	ServiceName string
	Endpoint    string
	Stdout      bool
	SampleRatio float64
}

type Config struct {
	Debug    bool
	JSONLogs bool

	AI       AIConfig
	Store    StoreConfig
	Citation CitationConfig
	Neo4j    Neo4jConfig
	RabbitMQ RabbitMQConfig
	S3       S3Config
	Pipeline PipelineConfig
	Server   ServerConfig
	OTel     OTelConfig
}

// Load reads the configuration from the environment. LoadEnv should run
// first when a .env file is used.
func Load() (Config, error) {
	cfg := Config{
		Debug:    util.GetEnvBool("DEBUG", false),
		JSONLogs: strings.EqualFold(util.GetEnv("LOG_FORMAT"), "json"),
		AI: AIConfig{
			Adapter:         util.GetEnvString("AI_ADAPTER", "openai"),
			ChatURL:         util.GetEnv("AI_CHAT_URL"),
			ChatKey:         util.GetEnv("AI_CHAT_KEY"),
			ExtractionModel: util.GetEnv("AI_CHAT_MODEL"),
			EmbedURL:        util.GetEnv("AI_EMBED_URL"),
			EmbedKey:        util.GetEnv("AI_EMBED_KEY"),
			EmbedModel:      util.GetEnv("AI_EMBED_MODEL"),
			EmbedDim:        util.GetEnvInt("AI_EMBED_DIM", 1536),
			ParallelReq:     util.GetEnvInt("AI_PARALLEL_REQ", 15),
		},
		Store: StoreConfig{
			Backend:     StoreBackend(strings.ToLower(util.GetEnv("STORE_BACKEND"))),
			DatabaseURL: util.GetEnv("DATABASE_URL"),
			SQLitePath:  util.GetEnvString("SQLITE_PATH", "litgraph.db"),
		},
		Citation: CitationConfig{
			SnapshotPath: util.GetEnv("CITATION_SNAPSHOT"),
			BaseURL:      util.GetEnv("S2_BASE_URL"),
			APIKey:       util.GetEnv("S2_API_KEY"),
			RPS:          util.GetEnvFloat("S2_RPS", 1),
			RedisURL:     util.GetEnv("REDIS_URL"),
			CacheTTL:     util.GetEnvDuration("CITATION_CACHE_TTL", 24*time.Hour),
			CachePrefix:  util.GetEnv("CITATION_CACHE_PREFIX"),
		},
		Neo4j: Neo4jConfig{
			URI:      util.GetEnv("NEO4J_URI"),
			User:     util.GetEnvString("NEO4J_USER", "neo4j"),
			Password: util.GetEnv("NEO4J_PASSWORD"),
			Database: util.GetEnv("NEO4J_DATABASE"),
		},
		RabbitMQ: RabbitMQConfig{
			User:     util.GetEnvString("RABBITMQ_USER", "guest"),
			Password: util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
			Host:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
			Queue:    util.GetEnvString("RABBITMQ_QUEUE", "litgraph_runs"),
		},
		S3: S3Config{
			Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
		},
		Pipeline: PipelineConfig{
			ParallelPapers:         util.GetEnvInt("PARALLEL_PAPERS", graph.DefaultParallelPapers),
			PaperTimeout:           util.GetEnvDuration("PAPER_TIMEOUT", graph.DefaultPaperTimeout),
			ReferencesPerStep:      util.GetEnvInt("TRAVERSAL_K", graph.DefaultReferencesPerStep),
			ExpandPerStep:          util.GetEnvInt("TRAVERSAL_N", graph.DefaultExpandPerStep),
			CandidateLimit:         util.GetEnvInt("CANDIDATE_LIMIT", graph.DefaultCandidateLimit),
			NearDuplicateThreshold: util.GetEnvFloat("NEAR_DUP_THRESHOLD", graph.DefaultNearDuplicateThreshold),
			MaxDuplicates:          util.GetEnvInt("MAX_DUPLICATES", 0),
			FullTextMaxTokens:      util.GetEnvInt("FULLTEXT_MAX_TOKENS", graph.DefaultFullTextMaxTokens),
			FullTextMaxRunes:       util.GetEnvInt("FULLTEXT_MAX_RUNES", 400_000),
			PDFMaxPages:            util.GetEnvInt("PDF_MAX_PAGES", 60),
			UserAgent:              util.GetEnvString("HTTP_USER_AGENT", "litgraph/1.0"),
			LeaseEnabled:           util.GetEnvBool("LEASE_ENABLED", false),
			LeaseTTL:               util.GetEnvDuration("LEASE_TTL", 30*time.Second),
		},
		Server: ServerConfig{
			Port:    util.GetEnvString("PORT", "8080"),
			AuthURL: util.GetEnv("AUTH_URL"),
		},
		OTel: OTelConfig{
			ServiceName: util.GetEnvString("OTEL_SERVICE_NAME", "litgraph"),
			Endpoint:    util.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Stdout:      util.GetEnvBool("OTEL_STDOUT", false),
			SampleRatio: util.GetEnvFloat("OTEL_SAMPLER_RATIO", 1),
		},
	}

	if cfg.AI.Adapter == "" {
		cfg.AI.Adapter = "openai"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
		if cfg.Store.DatabaseURL != "" {
			cfg.Store.Backend = StorePostgres
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.AI.Adapter {
	case "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("AI_ADAPTER: unknown adapter %q", c.AI.Adapter))
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.Store.Backend))
	}

	if c.Pipeline.LeaseEnabled && c.Store.Backend != StorePostgres {
		errs = append(errs, errors.New("LEASE_ENABLED requires the postgres store"))
	}
	if c.Pipeline.NearDuplicateThreshold <= 0 || c.Pipeline.NearDuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("NEAR_DUP_THRESHOLD must be in (0, 1], got %v", c.Pipeline.NearDuplicateThreshold))
	}
	if c.Pipeline.MaxDuplicates < 0 {
		errs = append(errs, errors.New("MAX_DUPLICATES must not be negative"))
	}
	if c.Citation.RPS <= 0 {
		errs = append(errs, errors.New("S2_RPS must be positive"))
	}

	return errors.Join(errs...)
}

// GraphParams maps the pipeline settings onto the graph client.
func (c Config) GraphParams() graph.NewGraphClientParams {
	return graph.NewGraphClientParams{
		ReferencesPerStep:      c.Pipeline.ReferencesPerStep,
		ExpandPerStep:          c.Pipeline.ExpandPerStep,
		CandidateLimit:         c.Pipeline.CandidateLimit,
		NearDuplicateThreshold: c.Pipeline.NearDuplicateThreshold,
		MaxDuplicates:          c.Pipeline.MaxDuplicates,
		ParallelPapers:         c.Pipeline.ParallelPapers,
		PaperTimeout:           c.Pipeline.PaperTimeout,
		FullTextMaxTokens:      c.Pipeline.FullTextMaxTokens,
	}
}
