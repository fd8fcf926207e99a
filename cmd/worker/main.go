package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/indexer/job"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/status"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/storage"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion worker",
		"queue", cfg.Queue.Backend,
		"concurrency", cfg.Queue.Concurrency,
		"index", cfg.Index.Backend,
		"collection", cfg.Index.Collection,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()

	db, err := bootstrap.Postgres(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	var opts []job.Option
	opts = append(opts, job.WithMetrics(m), job.WithTracing(cfg.Tracing.Enabled))
	if db != nil {
		defer db.Close()
		checker.Register("postgres", health.Ping(db.Ping))
		repo, err := status.New(ctx, db)
		if err != nil {
			slog.Error("failed to prepare document status table", "error", err)
			os.Exit(1)
		}
		opts = append(opts, job.WithStatusRecorder(repo))
	} else {
		slog.Warn("postgres not configured, job transitions are only logged")
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open upload storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	q, closeQueue, err := bootstrap.OpenQueue(cfg, m, checker)
	if err != nil {
		slog.Error("failed to connect to job queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()

	idx, err := bootstrap.Index(ctx, cfg.Index, db, checker)
	if err != nil {
		slog.Error("failed to open vector index", "error", err)
		os.Exit(1)
	}
	defer idx.Close()

	embedder, err := bootstrap.Embedder(cfg.Embedding)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	ch, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		slog.Error("invalid chunker configuration", "error", err)
		os.Exit(1)
	}

	runner, err := job.NewRunner(job.Deps{
		Storage:   store,
		Extractor: extractor.NewPDF(),
		Chunker:   ch,
		Embedder:  embedder,
		Index:     idx,
	}, cfg.Index.Collection, opts...)
	if err != nil {
		slog.Error("failed to create job runner", "error", err)
		os.Exit(1)
	}

	report := checker.Run(ctx)
	slog.Info("dependency check", "status", report.Status, "components", report.Components)

	ingest := consumer.New(q, runner, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingest.Start(gctx)
	})
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(metrics.ServerOptions{
			Port:    cfg.Metrics.Port,
			Process: "worker",
			Routes: map[string]http.HandlerFunc{
				"/health/live":  checker.LiveHandler(),
				"/health/ready": checker.ReadyHandler(),
			},
		})
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}

	slog.Info("ingestion worker ready, consuming jobs",
		"queue", cfg.Queue.Name,
		"group", cfg.Queue.Group,
	)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion worker stopped")
}
