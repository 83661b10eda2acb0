package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"wisp/internal/amqp"
	"wisp/internal/auth"
	"wisp/internal/cache"
	"wisp/internal/cli"
	apphttp "wisp/internal/http"
	applog "wisp/internal/log"
	"wisp/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer store.Close()

	// AMQP is optional; without it salary recomputes run inline.
	var events services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		events = amqpClient
		logger.Info("AMQP events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, salary recomputes run inline")
	}

	periods := services.NewPeriodResolver(store)
	engine := services.NewDistributionEngine(store, periods, events)
	movements := services.NewMovementService(store, periods, engine)
	salaries := services.NewSalaryService(store, periods, engine, events)
	balances := services.NewBalanceService(store)

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)
	authenticator := auth.NewAuthenticator(store, tokens)

	caches := cache.NewManager()
	caches.Register(periods.Cache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Store:     store,
		Auth:      authenticator,
		Tokens:    tokens,
		Movements: movements,
		Salaries:  salaries,
		Balances:  balances,
		Periods:   periods,
		Logger:    applog.New(applog.DefaultConfig()),
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting wisp server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
