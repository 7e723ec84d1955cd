// Package epaper turns export requests into assembled editions. The API publishes a Job per
// export and the worker assembles it against the document store.
package epaper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Entity types used with the store gateway.
const (
	ArticleEntity  = "Article"
	TemplateEntity = "LayoutTemplate"
	ExportEntity   = "EpaperExport"
	EditionEntity  = "EpaperEdition"
)

// ErrInvalidJob marks payloads that can never be processed.
var ErrInvalidJob = errors.New("invalid export job")

// Job is the message published for every accepted export.
type Job struct {
	ExportID         string    `json:"export_id"`
	ArticleIDs       []string  `json:"article_ids"`
	LayoutTemplateID string    `json:"layout_template_id,omitempty"`
	RequestedAt      time.Time `json:"requested_at"`
}

// EncodeJob serialises job for the wire.
func EncodeJob(job Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return payload, nil
}

// DecodeJob parses a wire payload. It fails with ErrInvalidJob on malformed input.
func DecodeJob(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	job.ExportID = strings.TrimSpace(job.ExportID)
	if job.ExportID == "" {
		return Job{}, fmt.Errorf("%w: missing export_id", ErrInvalidJob)
	}
	return job, nil
}

// Publisher hands jobs to the worker.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// KafkaPublisher writes jobs to a Kafka topic keyed by export id.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, job Job) error {
	payload, err := EncodeJob(job)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(job.ExportID), Value: payload}); err != nil {
		return fmt.Errorf("publish export %s: %w", job.ExportID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
