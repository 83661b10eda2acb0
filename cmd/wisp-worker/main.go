package main

import (
	"context"
	"errors"
	"os"
	"time"

	"wisp/internal/amqp"
	"wisp/internal/cli"
	"wisp/internal/services"
	"wisp/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting wisp-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the recompute worker")
		os.Exit(1)
	}

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	periods := services.NewPeriodResolver(store)
	// The worker recomputes directly; it never republishes events.
	engine := services.NewDistributionEngine(store, periods, nil)
	recompute := worker.NewRecomputeWorker(amqpClient, engine, periods)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Worker consuming ledger events", "queue", cfg.AMQPQueue)
	if err := recompute.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
