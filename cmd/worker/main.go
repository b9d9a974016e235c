package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/litgraph/internal/app"
	"github.com/OFFIS-RIT/litgraph/internal/config"
	"github.com/OFFIS-RIT/litgraph/internal/observability"
	"github.com/OFFIS-RIT/litgraph/internal/queue"
	"github.com/OFFIS-RIT/litgraph/internal/util"
	"github.com/OFFIS-RIT/litgraph/pkg/logger"
	"github.com/OFFIS-RIT/litgraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.JSONLogs,
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	shutdown := observability.InitOTel(ctx, cfg.OTel, "worker")
	defer shutdown(context.Background())

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to wire application", "err", err)
	}
	defer a.Close(context.Background())

	// Init rabbitmq
	conn, err := queue.Dial(cfg.RabbitMQ.URL())
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, cfg.RabbitMQ.Queue); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// One run at a time per worker; papers inside a run are parallel.
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := ch.Consume(
		cfg.RabbitMQ.Queue,
		"litgraph_worker",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", cfg.RabbitMQ.Queue, "err", err)
	}

	consumer := queue.NewConsumer(ch, cfg.RabbitMQ.Queue, func(ctx context.Context, req queue.RunRequest) error {
		startTime := time.Now()
		result, err := a.ExecuteRun(ctx, req)

		logger.Info(
			"Run finished",
			"run", req.RunID,
			"attempted", result.Stats.Attempted,
			"succeeded", result.Stats.Succeeded,
			"failed", result.Stats.Failed,
			"entities_created", result.Stats.EntitiesCreated,
			"edges_created", result.Stats.EdgesCreated,
		)

		metrics := a.AI.GetMetrics()
		logger.Info(
			"AI Metrics",
			"requests", metrics.Requests,
			"input_tokens", metrics.InputTokens,
			"output_tokens", metrics.OutputTokens,
			"total_tokens", metrics.TotalTokens,
			"duration", formatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
		)
		logger.Info("Processing time", "duration", formatDuration(time.Since(startTime)))
		logger.Info("Waiting for next message")
		a.AI.ResetMetrics()
		return err
	})

	logger.Info("Listening for messages", "queue", cfg.RabbitMQ.Queue)
	consumer.Run(ctx, msgs)
	logger.Info("Shutdown signal received, exiting...")
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
