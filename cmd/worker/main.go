// Package main provides a headless worker entry point: the scan pool and
// scheduler without the HTTP surface.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rankly-scanner/internal/adapter"
	"github.com/rankly-scanner/internal/config"
	"github.com/rankly-scanner/internal/job"
	"github.com/rankly-scanner/internal/logging"
	"github.com/rankly-scanner/internal/prompts"
	"github.com/rankly-scanner/internal/scheduler"
	"github.com/rankly-scanner/internal/storage"
)

func main() {
	log.Println("Rankly Scan Worker starting...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

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

	jobRepo := storage.NewAnalysisJobRepository(postgres)
	businessRepo := storage.NewBusinessRepository(postgres)
	userRepo := storage.NewUserRepository(postgres)
	historyRepo := storage.NewInputHistoryRepository(postgres)
	rankingRepo := storage.NewRankingRepository(clickhouse)
	progressCache := storage.NewProgressCache(redis)

	providers, err := adapter.NewProviders(cfg.AI)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize AI providers")
	}

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

	logger.Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
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
