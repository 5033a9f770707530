package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kursadbilgin/outreach-engine/internal/bootstrap"
	"github.com/kursadbilgin/outreach-engine/internal/config"
	"github.com/kursadbilgin/outreach-engine/internal/handler"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

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

	imported, err := rt.ImportIdentities(ctx)
	if err != nil {
		logger.Fatal("identity import failed", zap.Error(err))
	}
	if imported > 0 {
		logger.Info("sending identities imported", zap.Int("count", imported))
	}

	app, err := handler.NewApp(rt.Services(), handler.AppOptions{
		Limiter: rt.Limiter,
		Metrics: rt.Metrics,
		Logger:  logger,
		Checks:  rt.ReadinessChecks(),
	})
	if err != nil {
		logger.Fatal("http app initialization failed", zap.Error(err))
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()
	logger.Info("outreach-engine api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down api")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
	}
}
