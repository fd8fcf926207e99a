// Package queue is the durable, at-least-once channel that carries ingestion
// job descriptors from the upload server to workers. Two backends exist:
// Redis Streams (default) and Kafka.
//
// Delivery contract: a message whose handler returns nil is acknowledged and
// never seen again. A handler error leaves the message for redelivery. After
// MaxDeliveries failed attempts the message is copied to the dead-letter
// stream or topic and acknowledged.
package queue

import (
	"context"
	"time"
)

// Message is one delivery of an enqueued body. Deliveries counts attempts,
// starting at 1.
type Message struct {
	ID         string
	Key        string
	Body       []byte
	Deliveries int64
}

// Handler processes one message. It receives a context that is not
// cancelled when the consumer shuts down, so a started job runs to its end.
type Handler func(ctx context.Context, msg Message) error

// Producer enqueues bodies. key groups related messages (the document id).
type Producer interface {
	Enqueue(ctx context.Context, key string, body []byte) (string, error)
}

// Consumer delivers messages to a Handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// Outcome labels for the queue_deliveries_total metric.
const (
	OutcomeAcked        = "acked"
	OutcomeRetry        = "retry"
	OutcomeDeadLettered = "dead_lettered"
)

// Options are shared by both backends.
type Options struct {
	Name              string
	DeadLetter        string
	Group             string
	Consumer          string
	Concurrency       int
	MaxDeliveries     int64
	VisibilityTimeout time.Duration
	BlockTimeout      time.Duration
	// OnOutcome, when set, is called once per handled delivery.
	OnOutcome func(outcome string)
}

func (o Options) report(outcome string) {
	if o.OnOutcome != nil {
		o.OnOutcome(outcome)
	}
}
