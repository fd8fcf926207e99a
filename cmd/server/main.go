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

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/status"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/storage"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/retrieval"
	chathandler "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/retrieval/handler"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/resilience"
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
	slog.Info("starting pdf chat server",
		"port", cfg.Server.Port,
		"queue", cfg.Queue.Backend,
		"index", cfg.Index.Backend,
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(metrics.ServerOptions{Port: cfg.Metrics.Port, Process: "server"})
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdownMetrics(context.Background())
	}
	checker := health.NewChecker()

	db, err := bootstrap.Postgres(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	var statusRepo *status.Repository
	if db != nil {
		defer db.Close()
		checker.Register("postgres", health.Ping(db.Ping))
		statusRepo, err = status.New(ctx, db)
		if err != nil {
			slog.Error("failed to prepare document status table", "error", err)
			os.Exit(1)
		}
		slog.Info("document status tracking enabled", "database", cfg.Postgres.Database)
	} else {
		slog.Warn("postgres not configured, document status tracking disabled")
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

	model, err := retrieval.NewModel(cfg.Generation)
	if err != nil {
		slog.Error("failed to create generative model", "error", err)
		os.Exit(1)
	}
	generator := retrieval.NewLLMGenerator(model, cfg.Generation, func(name string, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	})

	answerer, err := retrieval.NewAnswerer(embedder, idx, generator, cfg.Index.Collection, cfg.Retrieval.TopK, m)
	if err != nil {
		slog.Error("failed to create answerer", "error", err)
		os.Exit(1)
	}

	// A nil *status.Repository must not become a non-nil interface.
	var statusCreator publisher.StatusCreator
	var statusReader handler.StatusReader
	if statusRepo != nil {
		statusCreator = statusRepo
		statusReader = statusRepo
	}
	pub := publisher.New(store, q, statusCreator)
	uploadH := handler.New(pub, statusReader, cfg.Upload, m)
	chatH := chathandler.New(answerer, cfg.Retrieval.DefaultQuery)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", uploadH.Root)
	mux.HandleFunc("POST /upload/pdf", uploadH.Upload)
	mux.HandleFunc("GET /documents/{id}", uploadH.Status)
	mux.HandleFunc("GET /chat", chatH.Chat)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)),
		middleware.Metrics(m),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("pdf chat server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("pdf chat server stopped")
}
