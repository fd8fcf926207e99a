// Package consumer reads job descriptors from the ingestion queue and runs
// an ingestion job for each. It decides which failures are worth a
// redelivery: embedding and index outages are left on the queue, content
// and descriptor problems are acknowledged.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/indexer/job"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/queue"
)

// JobRunner executes one ingestion job.
type JobRunner interface {
	Run(ctx context.Context, desc ingestion.JobDescriptor) (*job.Result, error)
}

// IngestConsumer wraps a queue consumer to drive the ingestion pipeline.
type IngestConsumer struct {
	consumer queue.Consumer
	runner   JobRunner
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(c queue.Consumer, runner JobRunner, m *metrics.Metrics) *IngestConsumer {
	if m == nil {
		m = metrics.NewNop()
	}
	return &IngestConsumer{
		consumer: c,
		runner:   runner,
		metrics:  m,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start consumes until ctx is cancelled.
func (ic *IngestConsumer) Start(ctx context.Context) error {
	ic.logger.Info("ingest consumer starting")
	return ic.consumer.Consume(ctx, ic.Handle)
}

// Handle is the queue.Handler. A nil return acknowledges the message.
func (ic *IngestConsumer) Handle(ctx context.Context, msg queue.Message) error {
	desc, err := validator.DecodeDescriptor(msg.Body)
	if err != nil {
		ic.metrics.IngestionJobsTotal.WithLabelValues(string(job.StateFailed), string(job.ReasonInvalidDescriptor)).Inc()
		ic.logger.Error("discarding invalid job descriptor",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	ic.logger.Debug("processing job descriptor",
		"message_id", msg.ID,
		"file", desc.FilePath,
		"delivery", msg.Deliveries,
	)

	res, err := ic.runner.Run(ctx, desc)
	if err == nil {
		return nil
	}
	if res != nil && res.State == job.StateFailed && !res.Reason.Transient() {
		ic.logger.Warn("permanent ingestion failure, not retrying",
			"doc_id", res.DocumentID,
			"reason", res.Reason,
		)
		return nil
	}
	return fmt.Errorf("ingesting %s (delivery %d): %w", desc.FilePath, msg.Deliveries, err)
}
