// Package redis wraps go-redis/v9 with the stream operations the job queue
// needs: append, consumer-group reads, idle-entry reclaim, and acknowledge.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// StreamEntry is one stream record delivered to a consumer. Deliveries is
// the number of times the group has handed the entry out, this one included.
type StreamEntry struct {
	ID         string
	Fields     map[string]string
	Deliveries int64
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Append adds an entry to stream and returns its id.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("appending to stream %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup reads at most one never-delivered entry for consumer, blocking
// up to block. It returns nil, nil when nothing arrived.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration) (*StreamEntry, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading group %s on %s: %w", group, stream, err)
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			return toEntry(msg, 1), nil
		}
	}
	return nil, nil
}

// ClaimIdle transfers one entry that has been pending longer than minIdle to
// consumer, or returns nil, nil when there is none.
func (c *Client) ClaimIdle(ctx context.Context, stream, group, consumer string, minIdle time.Duration) (*StreamEntry, error) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("claiming idle entries on %s: %w", stream, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	deliveries := int64(1)
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  msgs[0].ID,
		End:    msgs[0].ID,
		Count:  1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading delivery count for %s: %w", msgs[0].ID, err)
	}
	if len(pending) == 1 {
		deliveries = pending[0].RetryCount
	}
	return toEntry(msgs[0], deliveries), nil
}

// Ack acknowledges id so it leaves the group's pending list.
func (c *Client) Ack(ctx context.Context, stream, group, id string) error {
	if err := c.rdb.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("acknowledging %s on %s: %w", id, stream, err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func toEntry(msg redis.XMessage, deliveries int64) *StreamEntry {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		fields[k] = fmt.Sprint(v)
	}
	return &StreamEntry{ID: msg.ID, Fields: fields, Deliveries: deliveries}
}
