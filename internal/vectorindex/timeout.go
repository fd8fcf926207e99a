package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/resilience"
)

type timeoutIndex struct {
	next    Index
	timeout time.Duration
}

// WithTimeout bounds every call on idx. A call that runs out of time fails
// with ErrIndexUnavailable.
func WithTimeout(idx Index, timeout time.Duration) Index {
	if timeout <= 0 {
		return idx
	}
	return &timeoutIndex{next: idx, timeout: timeout}
}

func (t *timeoutIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	return t.run(ctx, "ensure collection", func(ctx context.Context) error {
		return t.next.EnsureCollection(ctx, name, dimension)
	})
}

func (t *timeoutIndex) Upsert(ctx context.Context, collection string, records []Record) error {
	return t.run(ctx, "upsert", func(ctx context.Context) error {
		return t.next.Upsert(ctx, collection, records)
	})
}

func (t *timeoutIndex) Search(ctx context.Context, collection string, vector []float32, k int) ([]Match, error) {
	var matches []Match
	err := t.run(ctx, "search", func(ctx context.Context) error {
		var err error
		matches, err = t.next.Search(ctx, collection, vector, k)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (t *timeoutIndex) Close() error {
	return t.next.Close()
}

func (t *timeoutIndex) run(ctx context.Context, op string, fn func(context.Context) error) error {
	err := resilience.WithTimeout(ctx, t.timeout, "vector index "+op, fn)
	if err != nil && errors.Is(err, apperrors.ErrTimeout) && !errors.Is(err, apperrors.ErrIndexUnavailable) {
		return fmt.Errorf("%w: %w", apperrors.ErrIndexUnavailable, err)
	}
	return err
}
