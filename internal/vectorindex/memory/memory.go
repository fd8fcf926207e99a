// Package memory is an in-process vector index. It holds everything in a
// map and scores by exact cosine similarity; use it for tests and local
// runs without a vector database.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

type collection struct {
	dimension int
	records   map[string]vectorindex.Record
}

type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

func (idx *Index) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", apperrors.ErrInvalidInput)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if c, ok := idx.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				apperrors.ErrDimensionMismatch, name, c.dimension, dimension)
		}
		return nil
	}
	idx.collections[name] = &collection{dimension: dimension, records: make(map[string]vectorindex.Record)}
	return nil
}

// Upsert validates the whole batch before writing any record.
func (idx *Index) Upsert(_ context.Context, name string, records []vectorindex.Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	c, ok := idx.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", vectorindex.ErrCollectionNotFound, name)
	}
	if err := vectorindex.ValidateBatch(records, c.dimension); err != nil {
		return err
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		c.records[r.ID] = r
	}
	return nil
}

func (idx *Index) Search(_ context.Context, name string, vector []float32, k int) ([]vectorindex.Match, error) {
	if err := vectorindex.ValidateK(k); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.collections[name]
	if !ok {
		return nil, nil
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			apperrors.ErrDimensionMismatch, len(vector), c.dimension)
	}

	matches := make([]vectorindex.Match, 0, len(c.records))
	for _, r := range c.records {
		matches = append(matches, vectorindex.Match{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata,
			Score:    cosine(vector, r.Vector),
		})
	}
	vectorindex.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len reports how many records name holds.
func (idx *Index) Len(name string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if c, ok := idx.collections[name]; ok {
		return len(c.records)
	}
	return 0
}

func (idx *Index) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
