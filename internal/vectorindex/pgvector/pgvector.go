// Package pgvector stores vector collections in PostgreSQL with the pgvector
// extension. Each collection is its own table with an HNSW cosine index; a
// registry table records every collection's dimension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/postgres"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS vector_collections (
		name        TEXT PRIMARY KEY,
		table_name  TEXT NOT NULL UNIQUE,
		dimension   INT NOT NULL CHECK (dimension > 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

type collection struct {
	table     string
	dimension int
}

type Index struct {
	db     *postgres.Client
	mu     sync.RWMutex
	known  map[string]collection
	logger *slog.Logger
}

// New installs the extension and registry table.
func New(ctx context.Context, db *postgres.Client) (*Index, error) {
	if err := db.Migrate(ctx, schema...); err != nil {
		return nil, fmt.Errorf("%w: migrating vector schema: %w", apperrors.ErrIndexUnavailable, err)
	}
	return &Index{
		db:     db,
		known:  make(map[string]collection),
		logger: slog.Default().With("component", "pgvector-index"),
	}, nil
}

func (idx *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", apperrors.ErrInvalidInput)
	}
	if c, ok := idx.cached(name); ok {
		return checkDimension(name, c.dimension, dimension)
	}

	c := collection{table: tableName(name), dimension: dimension}
	err := idx.db.InTx(ctx, func(tx *sql.Tx) error {
		// Serialise concurrent creators of the same collection.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
			return err
		}
		var existing int
		err := tx.QueryRowContext(ctx,
			`SELECT table_name, dimension FROM vector_collections WHERE name = $1`, name,
		).Scan(&c.table, &existing)
		if err == nil {
			c.dimension = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		table := pq.QuoteIdentifier(c.table)
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id        UUID PRIMARY KEY,
				content   TEXT NOT NULL,
				metadata  JSONB NOT NULL,
				embedding vector(%d) NOT NULL
			)`, table, dimension),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
				pq.QuoteIdentifier(c.table+"_embedding_idx"), table),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO vector_collections (name, table_name, dimension) VALUES ($1, $2, $3)`,
			name, c.table, dimension)
		if err == nil {
			idx.logger.Info("collection created", "collection", name, "table", c.table, "dimension", dimension)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: ensuring collection %s: %w", apperrors.ErrIndexUnavailable, name, err)
	}

	idx.remember(name, c)
	return checkDimension(name, c.dimension, dimension)
}

// Upsert writes the batch in one transaction; any failure rolls back every
// row of the batch.
func (idx *Index) Upsert(ctx context.Context, name string, records []vectorindex.Record) error {
	c, err := idx.lookup(ctx, name)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s", vectorindex.ErrCollectionNotFound, name)
	}
	if err := vectorindex.ValidateBatch(records, c.dimension); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		pq.QuoteIdentifier(c.table))

	err = idx.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("encoding metadata for %s: %w", r.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, r.ID, r.Text, meta, pgv.NewVector(r.Vector)); err != nil {
				return fmt.Errorf("upserting %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrIndexUnavailable, err)
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, name string, vector []float32, k int) ([]vectorindex.Match, error) {
	if err := vectorindex.ValidateK(k); err != nil {
		return nil, err
	}
	c, err := idx.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s has %d",
			apperrors.ErrDimensionMismatch, len(vector), name, c.dimension)
	}

	rows, err := idx.db.DB.QueryContext(ctx, searchQuery(c.table), pgv.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %w", apperrors.ErrIndexUnavailable, name, err)
	}
	defer rows.Close()

	matches := make([]vectorindex.Match, 0, k)
	for rows.Next() {
		var (
			m        vectorindex.Match
			meta     []byte
			distance float64
		)
		if err := rows.Scan(&m.ID, &m.Text, &meta, &distance); err != nil {
			return nil, fmt.Errorf("%w: scanning match: %w", apperrors.ErrIndexUnavailable, err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
		}
		m.Score = 1 - distance
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating matches: %w", apperrors.ErrIndexUnavailable, err)
	}
	vectorindex.SortMatches(matches)
	return matches, nil
}

// searchQuery orders by the bare distance operator so the planner can walk
// the HNSW index. Ties are settled in Go over the k rows returned.
func searchQuery(table string) string {
	return fmt.Sprintf(`
		SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, pq.QuoteIdentifier(table))
}

// Close is a no-op; the pool belongs to the caller.
func (idx *Index) Close() error { return nil }

// lookup returns the registered collection, or nil when it does not exist.
func (idx *Index) lookup(ctx context.Context, name string) (*collection, error) {
	if c, ok := idx.cached(name); ok {
		return &c, nil
	}
	var c collection
	err := idx.db.DB.QueryRowContext(ctx,
		`SELECT table_name, dimension FROM vector_collections WHERE name = $1`, name,
	).Scan(&c.table, &c.dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: looking up collection %s: %w", apperrors.ErrIndexUnavailable, name, err)
	}
	idx.remember(name, c)
	return &c, nil
}

func (idx *Index) cached(name string) (collection, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.known[name]
	return c, ok
}

func (idx *Index) remember(name string, c collection) {
	idx.mu.Lock()
	idx.known[name] = c
	idx.mu.Unlock()
}

func checkDimension(name string, have, want int) error {
	if have != want {
		return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
			apperrors.ErrDimensionMismatch, name, have, want)
	}
	return nil
}

var unsafeIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// tableName maps a collection name to a table name that is a valid
// identifier and stays unique even when two names sanitise the same way.
func tableName(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	base := strings.Trim(unsafeIdent.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if len(base) > 40 {
		base = base[:40]
	}
	return fmt.Sprintf("vec_%s_%08x", base, h.Sum32())
}
