package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	redisclient "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/redis"
)

const (
	fieldBody       = "body"
	fieldKey        = "key"
	fieldSourceID   = "source_id"
	fieldDeliveries = "deliveries"
	fieldError      = "error"
)

// streamStore is the subset of *redisclient.Client the stream queue uses.
type streamStore interface {
	Append(ctx context.Context, stream string, fields map[string]any) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration) (*redisclient.StreamEntry, error)
	ClaimIdle(ctx context.Context, stream, group, consumer string, minIdle time.Duration) (*redisclient.StreamEntry, error)
	Ack(ctx context.Context, stream, group, id string) error
}

// RedisStreams is a queue over a Redis stream and consumer group.
type RedisStreams struct {
	store  streamStore
	opts   Options
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewRedisStreams builds a stream queue. Concurrency bounds how many
// handlers run at once; further entries stay in the stream until a slot
// frees up.
func NewRedisStreams(store *redisclient.Client, opts Options) *RedisStreams {
	return newRedisStreams(store, opts)
}

func newRedisStreams(store streamStore, opts Options) *RedisStreams {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 5
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 5 * time.Second
	}
	return &RedisStreams{
		store:  store,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Concurrency)),
		logger: slog.Default().With("component", "redis-queue", "stream", opts.Name),
	}
}

// Enqueue appends body to the stream.
func (q *RedisStreams) Enqueue(ctx context.Context, key string, body []byte) (string, error) {
	id, err := q.store.Append(ctx, q.opts.Name, map[string]any{
		fieldKey:  key,
		fieldBody: string(body),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrQueueUnavailable, err)
	}
	return id, nil
}

// Consume runs until ctx is cancelled, then waits for in-flight handlers.
func (q *RedisStreams) Consume(ctx context.Context, h Handler) error {
	if err := q.store.EnsureGroup(ctx, q.opts.Name, q.opts.Group); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrQueueUnavailable, err)
	}
	q.logger.Info("consumer started",
		"group", q.opts.Group,
		"consumer", q.opts.Consumer,
		"concurrency", q.opts.Concurrency,
	)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		entry, err := q.next(ctx)
		if err != nil || entry == nil {
			q.sem.Release(1)
			if ctx.Err() != nil {
				q.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if err != nil {
				q.logger.Error("failed to read stream", "error", err)
				sleep(ctx, time.Second)
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer q.sem.Release(1)
			q.handle(context.WithoutCancel(ctx), entry, h)
		}()
	}
}

// next prefers reclaiming an entry whose previous consumer went silent over
// reading a new one.
func (q *RedisStreams) next(ctx context.Context) (*redisclient.StreamEntry, error) {
	if q.opts.VisibilityTimeout > 0 {
		entry, err := q.store.ClaimIdle(ctx, q.opts.Name, q.opts.Group, q.opts.Consumer, q.opts.VisibilityTimeout)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			q.logger.Info("reclaimed idle entry", "id", entry.ID, "deliveries", entry.Deliveries)
			return entry, nil
		}
	}
	return q.store.ReadGroup(ctx, q.opts.Name, q.opts.Group, q.opts.Consumer, q.opts.BlockTimeout)
}

func (q *RedisStreams) handle(ctx context.Context, entry *redisclient.StreamEntry, h Handler) {
	msg := Message{
		ID:         entry.ID,
		Key:        entry.Fields[fieldKey],
		Body:       []byte(entry.Fields[fieldBody]),
		Deliveries: entry.Deliveries,
	}
	log := q.logger.With("id", msg.ID, "key", msg.Key, "deliveries", msg.Deliveries)

	var handlerErr error
	if msg.Deliveries > q.opts.MaxDeliveries {
		handlerErr = fmt.Errorf("delivery limit %d exceeded", q.opts.MaxDeliveries)
	} else {
		handlerErr = h(ctx, msg)
	}

	switch {
	case handlerErr == nil:
		q.ack(ctx, log, msg.ID)
		q.opts.report(OutcomeAcked)
	case msg.Deliveries >= q.opts.MaxDeliveries:
		if err := q.deadLetter(ctx, msg, handlerErr); err != nil {
			log.Error("failed to dead-letter entry", "error", err)
			q.opts.report(OutcomeRetry)
			return
		}
		q.ack(ctx, log, msg.ID)
		log.Warn("entry dead-lettered", "dead_letter", q.opts.DeadLetter, "error", handlerErr)
		q.opts.report(OutcomeDeadLettered)
	default:
		log.Warn("handler failed, leaving entry for redelivery", "error", handlerErr)
		q.opts.report(OutcomeRetry)
	}
}

func (q *RedisStreams) deadLetter(ctx context.Context, msg Message, cause error) error {
	if q.opts.DeadLetter == "" {
		return nil
	}
	_, err := q.store.Append(ctx, q.opts.DeadLetter, map[string]any{
		fieldKey:        msg.Key,
		fieldBody:       string(msg.Body),
		fieldSourceID:   msg.ID,
		fieldDeliveries: strconv.FormatInt(msg.Deliveries, 10),
		fieldError:      cause.Error(),
	})
	return err
}

func (q *RedisStreams) ack(ctx context.Context, log *slog.Logger, id string) {
	if err := q.store.Ack(ctx, q.opts.Name, q.opts.Group, id); err != nil {
		log.Error("failed to acknowledge entry", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
