package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/extract-label/internal/processing"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Label configures the line-delimited file labelling CLI.
type Label struct {
	Limits         processing.Limits
	Workers        int
	RecordTimeout  time.Duration
	Dedupe         bool
	DedupeCapacity int
	ProgressEvery  int
}

// Worker holds configuration for the Kafka -> Kafka/Elasticsearch label worker.
type Worker struct {
	Common
	Limits           processing.Limits
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaOutputTopic string
	KafkaConsumer    string
	IndexLabels      bool
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Limits      processing.Limits
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadLimits reads the labelling limits shared by every binary.
func LoadLimits() (processing.Limits, error) {
	def := processing.DefaultLimits()
	l := processing.Limits{
		MaxParagraphs:   getInt("LABEL_MAX_PARAGRAPHS", def.MaxParagraphs),
		MinTokens:       getInt("LABEL_MIN_TOKENS", def.MinTokens),
		MaxPerParagraph: getInt("LABEL_MAX_PER_PARAGRAPH", def.MaxPerParagraph),
		MaxLabels:       getInt("LABEL_MAX_LABELS", def.MaxLabels),
	}

	if l.MaxParagraphs <= 0 {
		return l, fmt.Errorf("LABEL_MAX_PARAGRAPHS must be positive")
	}
	if l.MinTokens <= 0 {
		return l, fmt.Errorf("LABEL_MIN_TOKENS must be positive")
	}
	if l.MaxPerParagraph <= 0 {
		return l, fmt.Errorf("LABEL_MAX_PER_PARAGRAPH must be positive")
	}
	if l.MaxLabels <= 0 {
		return l, fmt.Errorf("LABEL_MAX_LABELS must be positive")
	}
	return l, nil
}

// LoadLabel builds a Label config from environment variables.
func LoadLabel() (*Label, error) {
	limits, err := LoadLimits()
	if err != nil {
		return nil, err
	}

	c := &Label{
		Limits:         limits,
		Workers:        getInt("LABEL_WORKERS", 5),
		RecordTimeout:  getDuration("LABEL_RECORD_TIMEOUT", "0s"),
		Dedupe:         getBool("LABEL_DEDUPE", false),
		DedupeCapacity: getInt("LABEL_DEDUPE_CAPACITY", 100000),
		ProgressEvery:  getInt("LABEL_PROGRESS_EVERY", 1000),
	}

	if c.Workers <= 0 {
		return nil, fmt.Errorf("LABEL_WORKERS must be positive")
	}
	if c.RecordTimeout < 0 {
		return nil, fmt.Errorf("LABEL_RECORD_TIMEOUT cannot be negative")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("LABEL_DEDUPE_CAPACITY must be positive")
	}
	if c.ProgressEvery < 0 {
		return nil, fmt.Errorf("LABEL_PROGRESS_EVERY cannot be negative")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	limits, err := LoadLimits()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:           loadCommon(),
		Limits:           limits,
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "records_raw"),
		KafkaOutputTopic: getEnv("KAFKA_OUTPUT_TOPIC", "records_labelled"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "label-worker"),
		IndexLabels:      getBool("WORKER_INDEX", true),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.KafkaTopic == c.KafkaOutputTopic {
		return nil, fmt.Errorf("KAFKA_OUTPUT_TOPIC must differ from KAFKA_TOPIC")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	limits, err := LoadLimits()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:      loadCommon(),
		Limits:      limits,
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
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

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "labels"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
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
