package elasticsearch

import (
	"context"
	"log/slog"
	"time"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/store"
)

// OpenGateway connects to the configured document store. It makes up to attempts connection
// attempts with exponential backoff and returns an unavailable gateway when none succeeds.
// The returned gateway never changes state afterwards.
func OpenGateway(ctx context.Context, cfg config.Common, log *slog.Logger, attempts int) *store.Gateway {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory document store, data is lost on restart")
		return store.New(store.NewMemory(cfg.IndexPrefix))
	}
	if cfg.ElasticsearchAddr == "" {
		log.Warn("ELASTICSEARCH_ADDR not set, running without document store")
		return store.New(nil)
	}

	client, err := New(Options{
		Addr:        cfg.ElasticsearchAddr,
		Username:    cfg.ElasticsearchUsername,
		Password:    cfg.ElasticsearchPassword,
		IndexPrefix: cfg.IndexPrefix,
	}, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		return store.New(nil)
	}

	if attempts <= 0 {
		attempts = 1
	}
	retryDelay := 2 * time.Second

	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := client.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			log.Info("connected to elasticsearch", slog.String("addr", cfg.ElasticsearchAddr))
			return store.New(client)
		}

		log.Warn("elasticsearch ping failed",
			slog.Any("err", pingErr),
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", attempts),
		)
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return store.New(nil)
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	log.Error("elasticsearch unreachable, running without document store")
	return store.New(nil)
}
