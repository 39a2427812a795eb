package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/extract-label/internal/config"
	"github.com/DeafMist/extract-label/internal/dedupe"
	"github.com/DeafMist/extract-label/internal/elasticsearch"
	"github.com/DeafMist/extract-label/internal/logger"
	"github.com/DeafMist/extract-label/internal/models"
	"github.com/DeafMist/extract-label/internal/nlp"
	"github.com/DeafMist/extract-label/internal/processing"
)

type recordLabeler interface {
	Process(rec models.Record) (models.OutputRecord, error)
}

type labelIndexer interface {
	IndexLabel(ctx context.Context, doc models.LabelDocument) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// deps groups what processMessage needs. indexer may be nil.
type deps struct {
	log       *slog.Logger
	labeler   recordLabeler
	publisher messageWriter
	indexer   labelIndexer
	cache     *dedupe.Cache
}

func main() {
	log := logger.New("worker").With("instance", uuid.NewString())
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	proc, err := nlp.NewProcessor(cfg.Limits)
	if err != nil {
		log.Error("init nlp", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var indexer labelIndexer
	if cfg.IndexLabels {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := esClient.EnsureIndex(ensureCtx); err != nil {
			log.Warn("ensure label index", slog.Any("err", err))
		}
		cancel()
		indexer = esClient
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	outWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaOutputTopic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	defer outWriter.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	d := deps{
		log:       log,
		labeler:   proc,
		publisher: outWriter,
		indexer:   indexer,
		cache:     dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
	}

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("output_topic", cfg.KafkaOutputTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.Bool("index", cfg.IndexLabels),
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

		if err := processMessage(ctx, d, msg); err != nil {
			log.Warn("label record failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				// Leave the offset uncommitted so the record is retried after a restart.
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ writes the failed message to the dead-letter topic with exponential backoff.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := dlqMessage(msg, cause, time.Now())

	for attempt := 0; attempt < 5; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}

	log.Error("DLQ write exhausted retries, record left uncommitted",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

func dlqMessage(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func processMessage(ctx context.Context, d deps, msg kafka.Message) error {
	var rec models.Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return fmt.Errorf("%w: %v", processing.ErrMalformedRecord, err)
	}

	id := processing.BuildRecordID(rec)
	if d.cache.IsSeen(id) {
		d.log.Debug("duplicate record", slog.String("id", id))
		return nil
	}

	out, err := d.labeler.Process(rec)
	if err != nil {
		return fmt.Errorf("label record %s: %w", id, err)
	}

	// Index before publishing; a replay overwrites the document keyed by id.
	if d.indexer != nil {
		source := strings.TrimSpace(rec.Source)
		if source == "" {
			source = "unknown"
		}
		doc := models.LabelDocument{
			ID:           id,
			Source:       source,
			Timestamp:    time.Now().UTC(),
			LabelCount:   len(out.ExtractLabel),
			OutputRecord: out,
		}
		if err := d.indexer.IndexLabel(ctx, doc); err != nil {
			return fmt.Errorf("index labels: %w", err)
		}
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	if err := d.publisher.WriteMessages(ctx, kafka.Message{
		Key:     []byte(id),
		Value:   payload,
		Headers: []kafka.Header{{Key: "record_id", Value: []byte(id)}},
	}); err != nil {
		return fmt.Errorf("publish labels: %w", err)
	}

	d.cache.MarkSeen(id)
	d.log.Info("labelled record", slog.String("id", id), slog.Int("labels", len(out.ExtractLabel)))
	return nil
}
