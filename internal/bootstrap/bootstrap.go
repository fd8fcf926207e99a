// Package bootstrap builds the backends shared by the server and worker
// processes from configuration: the PostgreSQL pool, the vector index, the
// job queue and the embedder.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex/memory"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex/pgvector"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex/qdrant"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/queue"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/redis"
)

// Postgres opens the pool when cfg.Host is set. A nil client means status
// tracking is disabled.
func Postgres(cfg config.PostgresConfig) (*postgres.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	return postgres.New(cfg)
}

// Index opens the configured vector index, bounded by cfg.Timeout, and
// registers its health check on checker.
func Index(ctx context.Context, cfg config.IndexConfig, db *postgres.Client, checker *health.Checker) (vectorindex.Index, error) {
	var idx vectorindex.Index
	switch cfg.Backend {
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("%w: pgvector index requires postgres", apperrors.ErrInvalidConfiguration)
		}
		pg, err := pgvector.New(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrIndexUnavailable, err)
		}
		idx = pg
		checker.Register("vector_index", health.Ping(db.Ping))
	case "qdrant":
		q := qdrant.New(cfg, &http.Client{})
		idx = q
		checker.Register("vector_index", health.Ping(q.Ping))
	case "memory":
		slog.Warn("in-memory vector index is not shared between processes")
		idx = memory.New()
	default:
		return nil, fmt.Errorf("%w: unknown index backend %q", apperrors.ErrInvalidConfiguration, cfg.Backend)
	}
	return vectorindex.WithTimeout(idx, cfg.Timeout), nil
}

// Queue is the job queue seen by a process: it can enqueue and consume.
type Queue interface {
	queue.Producer
	queue.Consumer
}

// OpenQueue connects the configured queue backend. The returned close
// function releases its connections. Delivery outcomes are counted on m.
func OpenQueue(cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (Queue, func() error, error) {
	opts := queue.Options{
		Name:              cfg.Queue.Name,
		DeadLetter:        cfg.Queue.DeadLetter,
		Group:             cfg.Queue.Group,
		Consumer:          consumerName(),
		Concurrency:       cfg.Queue.Concurrency,
		MaxDeliveries:     int64(cfg.Queue.MaxDeliveries),
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		BlockTimeout:      cfg.Queue.BlockTimeout,
		OnOutcome: func(outcome string) {
			m.QueueDeliveriesTotal.WithLabelValues(outcome).Inc()
		},
	}

	switch cfg.Queue.Backend {
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrQueueUnavailable, err)
		}
		checker.Register("redis", health.Ping(client.Ping))
		return queue.NewRedisStreams(client, opts), client.Close, nil
	case "kafka":
		k := queue.NewKafka(cfg.Kafka, opts)
		return k, k.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown queue backend %q", apperrors.ErrInvalidConfiguration, cfg.Queue.Backend)
	}
}

// Embedder builds the langchaingo-backed embedder for cfg.
func Embedder(cfg config.EmbeddingConfig) (*embedding.Service, error) {
	client, err := embedding.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return embedding.New(client, embedding.Options{
		BatchSize: cfg.BatchSize,
		Timeout:   cfg.Timeout,
	})
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
