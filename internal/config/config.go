package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverElasticsearch = "elasticsearch"
	DriverMemory        = "memory"
)

// Common contains document store parameters shared by every service.
type Common struct {
	StoreDriver           string
	ElasticsearchAddr     string
	ElasticsearchUsername string
	ElasticsearchPassword string
	IndexPrefix           string
	KafkaBrokers          []string
	EpaperTopic           string
}

// StoreConfigured reports whether a store connection should be attempted at all.
func (c Common) StoreConfigured() bool {
	return c.StoreDriver == DriverMemory || c.ElasticsearchAddr != ""
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr     string
	DefaultLimit int
	MaxLimit     int
}

// Worker holds configuration for the e-paper export worker.
type Worker struct {
	Common
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
}

// Retention configures the generated-article cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

func newViper() *viper.Viper {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("STORE_DRIVER", DriverElasticsearch)
	v.SetDefault("ELASTICSEARCH_ADDR", "")
	v.SetDefault("ELASTICSEARCH_USERNAME", "")
	v.SetDefault("ELASTICSEARCH_PASSWORD", "")
	v.SetDefault("ELASTICSEARCH_INDEX_PREFIX", "samachar-")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EPAPER_TOPIC", "epaper_exports")
	return v
}

func loadCommon(v *viper.Viper) (Common, error) {
	c := Common{
		StoreDriver:           strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		ElasticsearchAddr:     strings.TrimSpace(v.GetString("ELASTICSEARCH_ADDR")),
		ElasticsearchUsername: v.GetString("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword: v.GetString("ELASTICSEARCH_PASSWORD"),
		IndexPrefix:           strings.ToLower(v.GetString("ELASTICSEARCH_INDEX_PREFIX")),
		KafkaBrokers:          splitAndTrim(v.GetString("KAFKA_BROKERS")),
		EpaperTopic:           strings.TrimSpace(v.GetString("EPAPER_TOPIC")),
	}

	switch c.StoreDriver {
	case DriverElasticsearch, DriverMemory:
	default:
		return c, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverElasticsearch, DriverMemory, c.StoreDriver)
	}
	if c.EpaperTopic == "" {
		return c, fmt.Errorf("EPAPER_TOPIC must not be empty")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables and an optional .env file.
func LoadAPI() (*API, error) {
	v := newViper()
	v.SetDefault("API_BIND_ADDR", "0.0.0.0:8000")
	v.SetDefault("API_DEFAULT_LIMIT", 20)
	v.SetDefault("API_MAX_LIMIT", 200)

	common, err := loadCommon(v)
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:       common,
		BindAddr:     v.GetString("API_BIND_ADDR"),
		DefaultLimit: v.GetInt("API_DEFAULT_LIMIT"),
		MaxLimit:     v.GetInt("API_MAX_LIMIT"),
	}

	if c.DefaultLimit <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT must be positive")
	}
	if c.MaxLimit <= 0 {
		return nil, fmt.Errorf("API_MAX_LIMIT must be positive")
	}
	if c.DefaultLimit > c.MaxLimit {
		return nil, fmt.Errorf("API_DEFAULT_LIMIT cannot exceed API_MAX_LIMIT")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables and an optional .env file.
func LoadWorker() (*Worker, error) {
	v := newViper()
	v.SetDefault("KAFKA_BROKERS", "kafka:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "epaper-worker")
	v.SetDefault("WORKER_DEDUPE_CAPACITY", 20000)
	v.SetDefault("WORKER_DEDUPE_TTL", "24h")

	common, err := loadCommon(v)
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:         common,
		KafkaConsumer:  v.GetString("KAFKA_CONSUMER_GROUP"),
		DedupeCapacity: v.GetInt("WORKER_DEDUPE_CAPACITY"),
		DedupeTTL:      v.GetDuration("WORKER_DEDUPE_TTL"),
	}

	if err := requireSharedStore(common); err != nil {
		return nil, err
	}
	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.DedupeTTL <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_TTL must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables and an optional .env file.
func LoadRetention() (*Retention, error) {
	v := newViper()
	v.SetDefault("RETENTION_CRON", "24h")
	v.SetDefault("RETENTION_MAX_AGE", "720h")
	v.SetDefault("RETENTION_BATCH_SIZE", 500)

	common, err := loadCommon(v)
	if err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    common,
		Interval:  v.GetDuration("RETENTION_CRON"),
		MaxAge:    v.GetDuration("RETENTION_MAX_AGE"),
		BatchSize: v.GetInt("RETENTION_BATCH_SIZE"),
	}

	if err := requireSharedStore(common); err != nil {
		return nil, err
	}
	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// requireSharedStore rejects the memory driver for services that must see the API's documents.
// An in-process store is private to the process that opened it.
func requireSharedStore(c Common) error {
	if c.StoreDriver == DriverMemory {
		return fmt.Errorf("STORE_DRIVER=%s is only supported by the api service", DriverMemory)
	}
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
