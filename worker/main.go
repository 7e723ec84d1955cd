package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samacharai/backend/internal/config"
	"github.com/samacharai/backend/internal/dedupe"
	"github.com/samacharai/backend/internal/elasticsearch"
	"github.com/samacharai/backend/internal/epaper"
	"github.com/samacharai/backend/internal/logger"
	"github.com/samacharai/backend/internal/models"
)

const (
	storeAttempts  = 10
	dlqAttempts    = 5
	assembleBudget = 30 * time.Second
)

type editionAssembler interface {
	Assemble(ctx context.Context, job epaper.Job) (models.EpaperEdition, string, error)
}

type dlqWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	gateway := elasticsearch.OpenGateway(ctx, cfg.Common, log, storeAttempts)
	if !gateway.Available() {
		log.Error("document store unavailable, worker cannot assemble editions")
		os.Exit(1)
	}

	assembler := epaper.NewAssembler(gateway)
	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.EpaperTopic,
		GroupID:        cfg.KafkaConsumer,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	defer reader.Close()

	dlqTopic := cfg.EpaperTopic + "_dlq"
	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        dlqTopic,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	defer dlq.Close()

	log.Info("worker started",
		slog.String("topic", cfg.EpaperTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.String("store", gateway.Name()),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, assembler, cache, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Uncommitted offsets are redelivered after a restart.
			if !sendToDLQ(ctx, log, dlq, msg, err, time.Second) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// processMessage assembles the edition for one export job. Jobs already handled within
// the dedupe window are acknowledged without touching the store.
func processMessage(ctx context.Context, log *slog.Logger, assembler editionAssembler, cache *dedupe.Cache, msg kafka.Message) error {
	job, err := epaper.DecodeJob(msg.Value)
	if err != nil {
		return err
	}

	if cache.IsSeen(job.ExportID) {
		log.Debug("duplicate export job", slog.String("export_id", job.ExportID))
		return nil
	}

	subCtx, cancel := context.WithTimeout(ctx, assembleBudget)
	defer cancel()

	edition, id, err := assembler.Assemble(subCtx, job)
	if err != nil {
		return fmt.Errorf("assemble export %s: %w", job.ExportID, err)
	}

	cache.MarkSeen(job.ExportID)
	log.Info("edition assembled",
		slog.String("id", id),
		slog.String("export_id", job.ExportID),
		slog.Int("articles", len(edition.ArticleIDs)),
		slog.Int("missing", len(edition.MissingArticleIDs)),
	)
	return nil
}

// sendToDLQ forwards msg with its failure context, doubling the wait after each failed write.
func sendToDLQ(ctx context.Context, log *slog.Logger, w dlqWriter, msg kafka.Message, cause error, backoff time.Duration) bool {
	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		err := w.WriteMessages(ctx, out)
		if err == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
		backoff *= 2
	}
	return false
}
