// Package main provides the API server entry point for the Rankly scan
// service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rankly-scanner/internal/adapter"
	"github.com/rankly-scanner/internal/api"
	"github.com/rankly-scanner/internal/config"
	"github.com/rankly-scanner/internal/job"
	"github.com/rankly-scanner/internal/logging"
	"github.com/rankly-scanner/internal/prompts"
	"github.com/rankly-scanner/internal/scheduler"
	"github.com/rankly-scanner/internal/storage"
)

func main() {
	fmt.Println("Rankly Scan Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize repositories
	jobRepo := storage.NewAnalysisJobRepository(postgres)
	businessRepo := storage.NewBusinessRepository(postgres)
	userRepo := storage.NewUserRepository(postgres)
	historyRepo := storage.NewInputHistoryRepository(postgres)
	rankingRepo := storage.NewRankingRepository(clickhouse)
	progressCache := storage.NewProgressCache(redis)

	// Initialize AI engine providers
	providers, err := adapter.NewProviders(cfg.AI)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize AI providers")
	}
	logger.WithFields(map[string]interface{}{
		"engines": cfg.AI.Engines,
	}).Info("AI providers initialized")

	// Assemble the scan pipeline and pool
	pipeline := job.NewScanPipeline(
		jobRepo,
		businessRepo,
		rankingRepo,
		providers,
		adapter.NewWebsiteExtractor(),
		prompts.NewShuffleStrategy(10, time.Now().UnixNano()),
		progressCache,
	)

	pool := job.NewScanPoolManager(jobRepo, pipeline, job.PoolConfig{
		MaxConcurrent:   cfg.Scanner.MaxConcurrentScans,
		PollInterval:    cfg.Scanner.PollInterval,
		CleanupInterval: cfg.Scanner.CleanupInterval,
		MaxRetries:      cfg.Scanner.MaxRetries,
		StuckThreshold:  cfg.Scanner.StuckThreshold,
	})

	recurring := scheduler.NewRecurringScheduler(
		businessRepo,
		jobRepo,
		userRepo,
		historyRepo,
		cfg.Scheduler.CheckInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scan pool")
	}
	if cfg.Scheduler.Enabled {
		if err := recurring.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	// Create HTTP server
	serverConfig := api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(serverConfig, pool, recurring, jobRepo, progressCache, rankingRepo)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if cfg.Scheduler.Enabled {
		if err := recurring.Stop(); err != nil {
			logger.WithError(err).Error("Scheduler shutdown failed")
		}
	}
	if err := pool.Stop(); err != nil {
		logger.WithError(err).Error("Scan pool shutdown failed")
	}

	logger.Info("Shutdown complete")
}
