package pgvector

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/postgres"
)

func TestTableName(t *testing.T) {
	assert.Regexp(t, `^vec_pdf_collection_[0-9a-f]{8}$`, tableName("pdf-collection"))
	assert.NotEqual(t, tableName("pdf-collection"), tableName("pdf_collection"))
	assert.Equal(t, tableName("pdf-collection"), tableName("pdf-collection"))
	assert.LessOrEqual(t, len(tableName(string(make([]byte, 200)))), 63)
}

func TestSearchQueryOrdersByDistanceOnly(t *testing.T) {
	q := searchQuery("vec_docs_0001")
	assert.Contains(t, q, `ORDER BY embedding <=> $1`)
	assert.NotRegexp(t, `ORDER BY[^\n]*,`, q)
	assert.Contains(t, q, `FROM "vec_docs_0001"`)
}

func skipIfNoPostgres(t *testing.T) (*Index, string) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := postgres.Open(dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	idx, err := New(context.Background(), db)
	if err != nil {
		db.Close()
		t.Skipf("pgvector extension unavailable: %v", err)
	}
	name := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		db.DB.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, tableName(name)))
		db.DB.Exec(`DELETE FROM vector_collections WHERE name = $1`, name)
		db.Close()
	})
	return idx, name
}

func TestPGVectorRoundTrip(t *testing.T) {
	idx, name := skipIfNoPostgres(t)
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, name, 3))
	require.NoError(t, idx.EnsureCollection(ctx, name, 3))
	assert.ErrorIs(t, idx.EnsureCollection(ctx, name, 4), apperrors.ErrDimensionMismatch)

	records := []vectorindex.Record{
		{ID: vectorindex.RecordID("a.pdf", 0), Vector: []float32{1, 0, 0}, Text: "alpha", Metadata: vectorindex.Metadata{Source: "a.pdf", Chunk: 0, PageStart: 1, PageEnd: 1}},
		{ID: vectorindex.RecordID("a.pdf", 1), Vector: []float32{0, 1, 0}, Text: "beta", Metadata: vectorindex.Metadata{Source: "a.pdf", Chunk: 1, PageStart: 1, PageEnd: 2}},
	}
	require.NoError(t, idx.Upsert(ctx, name, records))
	require.NoError(t, idx.Upsert(ctx, name, records), "re-upsert replaces")

	var count int
	require.NoError(t, idx.db.DB.QueryRow(fmt.Sprintf(`SELECT count(*) FROM %q`, tableName(name))).Scan(&count))
	assert.Equal(t, 2, count)

	matches, err := idx.Search(ctx, name, []float32{0.1, 1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "beta", matches[0].Text)
	assert.Equal(t, 2, matches[0].Metadata.PageEnd)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestPGVectorUpsertRejectsMixedBatch(t *testing.T) {
	idx, name := skipIfNoPostgres(t)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, name, 2))

	err := idx.Upsert(ctx, name, []vectorindex.Record{
		{ID: vectorindex.RecordID("a", 0), Vector: []float32{1, 0}},
		{ID: vectorindex.RecordID("a", 1), Vector: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

	matches, err := idx.Search(ctx, name, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPGVectorSearchMissingCollection(t *testing.T) {
	idx, _ := skipIfNoPostgres(t)
	matches, err := idx.Search(context.Background(), "never-created", []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
