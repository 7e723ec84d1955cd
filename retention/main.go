package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/elasticsearch"
	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/logger"
)

const storeAttempts = 10

// purger is the slice of the store gateway the cleanup loop needs.
type purger interface {
	Purge(ctx context.Context, entityType, field string, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	gateway := elasticsearch.OpenGateway(ctx, cfg.Common, log, storeAttempts)
	if ctx.Err() != nil {
		log.Info("shutdown signal received during startup")
		return
	}
	if !gateway.Available() {
		log.Error("document store unavailable after retries")
		os.Exit(1)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.String("store", gateway.Name()),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(ctx, log, gateway, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, gateway, cfg)
		}
	}
}

// runOnce removes generated articles older than the configured age. Failures are
// logged and retried on the next tick.
func runOnce(ctx context.Context, log *slog.Logger, p purger, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := p.Purge(subCtx, epaper.ArticleEntity, "generated_at", cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old articles found")
	}
	return deleted
}
