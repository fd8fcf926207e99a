package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/kafka"
)

const headerDeliveries = "x-deliveries"

type kafkaPublisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Kafka is a queue over a Kafka topic. Consume runs Options.Concurrency
// group readers, each handling one message at a time, so at most
// min(Concurrency, partitions) jobs run at once. A failed message is
// re-published to the same topic with an incremented x-deliveries header and
// its offset committed, which gives redelivery without blocking the
// partition.
type Kafka struct {
	cfg        config.KafkaConfig
	opts       Options
	producer   kafkaPublisher
	deadLetter kafkaPublisher
	read       func(ctx context.Context, h kafka.MessageHandler) error
	logger     *slog.Logger
}

// NewKafka builds a Kafka queue and its producers. Close releases them.
func NewKafka(cfg config.KafkaConfig, opts Options) *Kafka {
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Group != "" {
		cfg.ConsumerGroup = opts.Group
	}
	k := &Kafka{
		cfg:      cfg,
		opts:     opts,
		producer: kafka.NewProducer(cfg, opts.Name),
		logger:   slog.Default().With("component", "kafka-queue", "topic", opts.Name),
	}
	k.read = func(ctx context.Context, h kafka.MessageHandler) error {
		return kafka.NewConsumer(k.cfg, k.opts.Name, h).Start(ctx)
	}
	if opts.DeadLetter != "" {
		k.deadLetter = kafka.NewProducer(cfg, opts.DeadLetter)
	}
	return k
}

// Enqueue publishes body as a first delivery.
func (k *Kafka) Enqueue(ctx context.Context, key string, body []byte) (string, error) {
	if err := k.producer.Publish(ctx, []byte(key), body, map[string]string{headerDeliveries: "1"}); err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrQueueUnavailable, err)
	}
	return key, nil
}

// Consume blocks until ctx is cancelled or a failed message cannot be
// re-published. Readers beyond the topic's partition count stay idle.
func (k *Kafka) Consume(ctx context.Context, h Handler) error {
	readers := max(k.opts.Concurrency, 1)
	k.logger.Info("starting group readers", "readers", readers)
	g, gctx := errgroup.WithContext(ctx)
	for range readers {
		g.Go(func() error {
			return k.read(gctx, func(ctx context.Context, m kafka.Message) error {
				return k.handle(ctx, m, h)
			})
		})
	}
	return g.Wait()
}

func (k *Kafka) handle(ctx context.Context, m kafka.Message, h Handler) error {
	deliveries := int64(1)
	if v, err := strconv.ParseInt(m.Headers[headerDeliveries], 10, 64); err == nil && v > 0 {
		deliveries = v
	}
	msg := Message{
		ID:         fmt.Sprintf("%d-%d", m.Partition, m.Offset),
		Key:        string(m.Key),
		Body:       m.Value,
		Deliveries: deliveries,
	}
	log := k.logger.With("id", msg.ID, "key", msg.Key, "deliveries", deliveries)

	handlerErr := h(context.WithoutCancel(ctx), msg)
	if handlerErr == nil {
		k.opts.report(OutcomeAcked)
		return nil
	}

	if deliveries >= k.opts.MaxDeliveries {
		if k.deadLetter != nil {
			headers := map[string]string{
				headerDeliveries: strconv.FormatInt(deliveries, 10),
				"x-error":        handlerErr.Error(),
				"x-source-id":    msg.ID,
			}
			if err := k.deadLetter.Publish(ctx, m.Key, m.Value, headers); err != nil {
				return fmt.Errorf("dead-lettering %s: %w", msg.ID, err)
			}
		}
		log.Warn("message dead-lettered", "dead_letter", k.opts.DeadLetter, "error", handlerErr)
		k.opts.report(OutcomeDeadLettered)
		return nil
	}

	headers := map[string]string{headerDeliveries: strconv.FormatInt(deliveries+1, 10)}
	if err := k.producer.Publish(ctx, m.Key, m.Value, headers); err != nil {
		return fmt.Errorf("re-publishing %s: %w", msg.ID, err)
	}
	log.Warn("handler failed, message re-published for redelivery", "error", handlerErr)
	k.opts.report(OutcomeRetry)
	return nil
}

// Close closes the producers.
func (k *Kafka) Close() error {
	var errs []error
	for _, p := range []kafkaPublisher{k.producer, k.deadLetter} {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
