package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/elasticsearch"
	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/logger"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// The gateway state is decided once here and kept for the process lifetime.
	gateway := elasticsearch.OpenGateway(ctx, cfg.Common, log, 1)

	srv := &server{log: log, cfg: cfg, store: gateway}
	if len(cfg.KafkaBrokers) > 0 {
		pub := epaper.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EpaperTopic)
		defer pub.Close()
		srv.publisher = pub
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.Bool("store_available", gateway.Available()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
