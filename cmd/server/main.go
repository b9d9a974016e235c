package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/OFFIS-RIT/litgraph/internal/app"
	"github.com/OFFIS-RIT/litgraph/internal/config"
	"github.com/OFFIS-RIT/litgraph/internal/observability"
	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/server"
	mid "github.com/OFFIS-RIT/litgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/logger/console"

	"github.com/MicahParks/keyfunc/v3"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.JSONLogs,
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	shutdown := observability.InitOTel(ctx, cfg.OTel, "server")
	defer shutdown(context.Background())

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to wire application", "err", err)
	}
	defer a.Close(context.Background())

	que, err := queue.Dial(cfg.RabbitMQ.URL())
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, cfg.RabbitMQ.Queue); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	deps := &mid.App{
		Runs:      a.Store,
		Queue:     ch,
		QueueName: cfg.RabbitMQ.Queue,
		Validate:  a.ValidatePaper,
		Objects:   a.Objects,
		Bucket:    cfg.S3.Bucket,
	}

	if cfg.Server.AuthURL != "" {
		jwksURL := strings.TrimRight(cfg.Server.AuthURL, "/") + "/jwks"
		k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		deps.Keyfunc = k.Keyfunc
	} else {
		logger.Warn("[Server] AUTH_URL not set, API is unauthenticated")
	}

	e := server.New(deps)
	if err := server.Run(ctx, e, cfg.Server.Port); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
}
