package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kursadbilgin/outreach-engine/internal/bootstrap"
	"github.com/kursadbilgin/outreach-engine/internal/config"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("runtime initialization failed", zap.Error(err))
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("failed to close runtime", zap.Error(err))
		}
	}()

	if err := rt.Migrate(); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	logger.Info("outreach-engine scheduler started",
		zap.Int("workers", cfg.SchedulerWorkers),
		zap.Duration("pollInterval", cfg.SchedulerPollInterval),
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Scheduler.Start(groupCtx)
	})
	g.Go(func() error {
		return rt.CounterReset.Start(groupCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("scheduler stopped", zap.Error(err))
		return
	}
	logger.Info("scheduler stopped")
}
