// Package vectorindex defines the vector store capability used by ingestion
// and retrieval: named collections of (vector, text, metadata) records with
// k-nearest-neighbour search by cosine similarity.
//
// Backends live in subpackages: pgvector (PostgreSQL), qdrant (REST) and
// memory (in-process). All of them wrap connectivity failures in
// apperrors.ErrIndexUnavailable and a vector size that disagrees with the
// collection in apperrors.ErrDimensionMismatch.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// ErrCollectionNotFound is returned by Upsert when EnsureCollection has not
// created the target collection. Search treats a missing collection as
// empty instead.
var ErrCollectionNotFound = errors.New("collection not found")

// Metadata is the provenance stored with every record.
type Metadata struct {
	DocumentID string `json:"documentId,omitempty"`
	Source     string `json:"source"`
	FileName   string `json:"fileName,omitempty"`
	Chunk      int    `json:"chunk"`
	PageStart  int    `json:"pageStart,omitempty"`
	PageEnd    int    `json:"pageEnd,omitempty"`
}

// Record is one vectorized chunk. ID is a UUID string.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// Match is a search hit. Score is the cosine similarity, higher is nearer.
type Match struct {
	ID       string
	Text     string
	Metadata Metadata
	Score    float64
}

// Index is the vector store capability.
type Index interface {
	// EnsureCollection creates the collection if missing. It fails with
	// ErrDimensionMismatch if the collection exists with another size.
	EnsureCollection(ctx context.Context, name string, dimension int) error
	// Upsert inserts or replaces records by ID. The batch is applied
	// entirely or not at all.
	Upsert(ctx context.Context, collection string, records []Record) error
	// Search returns at most k matches ordered nearest first. k must be
	// at least 1.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]Match, error)
	Close() error
}

// chunkNamespace scopes chunk ids so they never collide with UUIDs minted
// for other purposes.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pdf-chat-platform/chunk"))

// RecordID derives the stable identity of a chunk from its source path and
// position, so re-ingesting the same file replaces rather than duplicates.
func RecordID(sourcePath string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(sourcePath+"#"+strconv.Itoa(position))).String()
}

// ValidateBatch checks that every record has an id and a vector of
// dimension dim.
func ValidateBatch(records []Record, dim int) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", apperrors.ErrInvalidInput, i)
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has %d dimensions, collection has %d",
				apperrors.ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
	}
	return nil
}

// ValidateK rejects k < 1.
func ValidateK(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", apperrors.ErrInvalidInput, k)
	}
	return nil
}

// SortMatches orders matches by descending score, breaking ties by id.
func SortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}
