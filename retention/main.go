package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/extract-label/internal/config"
	"github.com/DeafMist/extract-label/internal/elasticsearch"
	"github.com/DeafMist/extract-label/internal/logger"
)

const (
	connectAttempts = 10
	maxConnectDelay = 30 * time.Second
)

type labelPurger interface {
	Ping(ctx context.Context) error
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
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

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	if !waitForStore(ctx, log, esClient, 2*time.Second) {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("elasticsearch unreachable after retries")
		os.Exit(1)
	}
	log.Info("connected to elasticsearch", slog.String("index", cfg.ElasticsearchIndex))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(ctx, log, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

// waitForStore pings with exponential backoff until the store answers.
func waitForStore(ctx context.Context, log *slog.Logger, store labelPurger, delay time.Duration) bool {
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := store.Ping(pingCtx)
		cancel()
		if err == nil {
			return true
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", connectAttempts),
			slog.Duration("retry_in", delay),
		)

		if attempt == connectAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
		delay *= 2
		if delay > maxConnectDelay {
			delay = maxConnectDelay
		}
	}
	return false
}

func runOnce(ctx context.Context, log *slog.Logger, store labelPurger, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := store.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("expired labels removed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no expired labels")
	}
	return deleted
}
