package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/extractor/pdftest"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex/memory"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

const collection = "pdf-collection"

type fakeStore map[string][]byte

func (s fakeStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := s[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrStorageUnavailable, path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeExtractor struct {
	pages []extractor.Page
	err   error
}

func (f fakeExtractor) Extract(_ context.Context, r io.Reader) ([]extractor.Page, error) {
	io.Copy(io.Discard, r)
	return f.pages, f.err
}

var vocabulary = []string{"alpha", "bravo", "charlie"}

// wordEmbedder counts vocabulary words, so texts sharing words are near.
type wordEmbedder struct {
	calls int
	err   error
}

func (w *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(vocabulary))
	for i, word := range vocabulary {
		v[i] = float32(strings.Count(text, word))
	}
	return v
}

func (w *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = w.vector(t)
	}
	return out, nil
}

func (w *wordEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return w.vector(text), nil
}

type flakyIndex struct {
	*memory.Index
	err error
}

func (f *flakyIndex) Upsert(ctx context.Context, name string, records []vectorindex.Record) error {
	if f.err != nil {
		return f.err
	}
	return f.Index.Upsert(ctx, name, records)
}

type recordedTransition struct {
	docID, state, reason string
	chunks               int
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedTransition
	err  error
}

func (f *fakeRecorder) RecordTransition(_ context.Context, docID, state, reason string, chunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedTransition{docID, state, reason, chunks})
	return f.err
}

func (f *fakeRecorder) states() []string {
	var out []string
	for _, s := range f.seen {
		out = append(out, s.state)
	}
	return out
}

func repeatTo(word string, n int) string {
	return strings.Repeat(word+" ", n/len(word)+1)[:n]
}

// threePartDocument is 1200 characters whose middle chunk is about "bravo".
func threePartDocument() string {
	return repeatTo("alpha", 450) + repeatTo("bravo", 450) + repeatTo("charlie", 300)
}

var testDesc = ingestion.JobDescriptor{
	FileName: "1700000000000-doc.pdf",
	FilePath: "uploads/1700000000000-doc.pdf",
	FileSize: 1200,
	MimeType: "application/pdf",
}

type fixture struct {
	runner   *Runner
	index    *memory.Index
	embedder *wordEmbedder
	recorder *fakeRecorder
}

func newFixture(t *testing.T, ex extractor.Extractor, opts ...func(*Deps)) *fixture {
	t.Helper()
	ch, err := chunker.New(500, 50)
	require.NoError(t, err)

	f := &fixture{index: memory.New(), embedder: &wordEmbedder{}, recorder: &fakeRecorder{}}
	deps := Deps{
		Storage:   fakeStore{testDesc.FilePath: []byte("%PDF-1.4")},
		Extractor: ex,
		Chunker:   ch,
		Embedder:  f.embedder,
		Index:     f.index,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.runner, err = NewRunner(deps, collection, WithStatusRecorder(f.recorder), WithTracing(true))
	require.NoError(t, err)
	return f
}

func onePage(text string) fakeExtractor {
	return fakeExtractor{pages: []extractor.Page{{Number: 1, Text: text}}}
}

func TestRunCompletesAndIndexes(t *testing.T) {
	f := newFixture(t, onePage(threePartDocument()))

	res, err := f.runner.Run(context.Background(), testDesc)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, testDesc.DocumentID(), res.DocumentID)
	assert.Equal(t, 3, f.index.Len(collection))

	var states []State
	for _, tr := range res.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{StateExtracting, StateChunking, StateEmbedding, StateUpserting, StateCompleted}, states)
	assert.Equal(t, []string{"Received", "Extracting", "Chunking", "Embedding", "Upserting", "Completed"}, f.recorder.states())
	assert.Equal(t, 3, f.recorder.seen[len(f.recorder.seen)-1].chunks)
}

func TestRunRetrievesMiddleChunkForRelatedQuery(t *testing.T) {
	f := newFixture(t, onePage(threePartDocument()))
	_, err := f.runner.Run(context.Background(), testDesc)
	require.NoError(t, err)

	q, _ := f.embedder.EmbedOne(context.Background(), "tell me about bravo")
	matches, err := f.index.Search(context.Background(), collection, q, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	top := matches[0]
	assert.Equal(t, 1, top.Metadata.Chunk)
	assert.Equal(t, vectorindex.RecordID(testDesc.FilePath, 1), top.ID)
	assert.Equal(t, testDesc.FilePath, top.Metadata.Source)
	assert.Equal(t, testDesc.FileName, top.Metadata.FileName)
	assert.Len(t, []rune(top.Text), 500)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, onePage(threePartDocument()))
	ctx := context.Background()

	_, err := f.runner.Run(ctx, testDesc)
	require.NoError(t, err)
	first, err := f.index.Search(ctx, collection, []float32{1, 1, 1}, 10)
	require.NoError(t, err)

	_, err = f.runner.Run(ctx, testDesc)
	require.NoError(t, err)
	second, err := f.index.Search(ctx, collection, []float32{1, 1, 1}, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, f.index.Len(collection))
	assert.Equal(t, first, second)
}

func TestRunEmptyDocumentIsNoContent(t *testing.T) {
	for name, pages := range map[string][]extractor.Page{
		"no pages":    nil,
		"blank pages": {{Number: 1, Text: ""}, {Number: 2, Text: "  \n "}},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fakeExtractor{pages: pages})
			res, err := f.runner.Run(context.Background(), testDesc)
			require.Error(t, err)
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, ReasonNoContent, res.Reason)
			assert.Zero(t, f.index.Len(collection))
			assert.Zero(t, f.embedder.calls)
			assert.Equal(t, []string{"Received", "Extracting", "Failed"}, f.recorder.states())
			assert.Equal(t, "NoContent", f.recorder.seen[2].reason)
		})
	}
}

func TestRunExtractionFailure(t *testing.T) {
	f := newFixture(t, fakeExtractor{err: fmt.Errorf("%w: bad xref", apperrors.ErrExtractionFailed)})
	res, err := f.runner.Run(context.Background(), testDesc)
	assert.ErrorIs(t, err, apperrors.ErrExtractionFailed)
	assert.Equal(t, ReasonExtractionFailed, res.Reason)
	assert.False(t, res.Reason.Transient())
}

func TestRunMissingFileIsExtractionFailure(t *testing.T) {
	f := newFixture(t, onePage("text"), func(d *Deps) { d.Storage = fakeStore{} })
	res, err := f.runner.Run(context.Background(), testDesc)
	require.Error(t, err)
	assert.Equal(t, ReasonExtractionFailed, res.Reason)
}

func TestRunInvalidDescriptor(t *testing.T) {
	f := newFixture(t, onePage("text"))
	res, err := f.runner.Run(context.Background(), ingestion.JobDescriptor{FileName: "x.pdf"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidDescriptor)
	assert.Equal(t, ReasonInvalidDescriptor, res.Reason)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, StateReceived, res.Transitions[0].From)
}

func TestRunEmbeddingFailureIndexesNothing(t *testing.T) {
	f := newFixture(t, onePage(threePartDocument()))
	f.embedder.err = fmt.Errorf("%w: connection refused", apperrors.ErrEmbeddingUnavailable)

	res, err := f.runner.Run(context.Background(), testDesc)
	assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	assert.Equal(t, ReasonEmbeddingFailed, res.Reason)
	assert.True(t, res.Reason.Transient())
	assert.Zero(t, f.index.Len(collection))
}

// slowClient never answers before its context ends.
type slowClient struct{}

func (slowClient) CreateEmbedding(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunEmbeddingTimeout(t *testing.T) {
	svc, err := embedding.New(slowClient{}, embedding.Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	f := newFixture(t, onePage(threePartDocument()), func(d *Deps) { d.Embedder = svc })

	res, err := f.runner.Run(context.Background(), testDesc)
	assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonEmbeddingFailed, res.Reason)
	assert.Zero(t, f.index.Len(collection))
}

func TestRunIndexFailure(t *testing.T) {
	idx := &flakyIndex{Index: memory.New(), err: fmt.Errorf("%w: connection reset", apperrors.ErrIndexUnavailable)}
	f := newFixture(t, onePage(threePartDocument()), func(d *Deps) { d.Index = idx })

	res, err := f.runner.Run(context.Background(), testDesc)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.Equal(t, ReasonIndexFailed, res.Reason)
	assert.True(t, res.Reason.Transient())
	assert.Zero(t, idx.Len(collection))
}

func TestRecorderErrorsDoNotFailJob(t *testing.T) {
	f := newFixture(t, onePage("alpha bravo"))
	f.recorder.err = errors.New("db down")
	res, err := f.runner.Run(context.Background(), testDesc)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
}

func TestRunWithRealPDF(t *testing.T) {
	doc := pdftest.Build("alpha alpha alpha", "bravo bravo bravo")
	f := newFixture(t, extractor.NewPDF(), func(d *Deps) {
		d.Storage = fakeStore{testDesc.FilePath: doc}
	})

	res, err := f.runner.Run(context.Background(), testDesc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	matches, err := f.index.Search(context.Background(), collection, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1, matches[0].Metadata.PageStart)
	assert.Equal(t, 2, matches[0].Metadata.PageEnd)
}

func TestNewRunnerRequiresDeps(t *testing.T) {
	_, err := NewRunner(Deps{}, collection)
	assert.Error(t, err)
}

func TestJobTransitions(t *testing.T) {
	j := newJob("doc", time.Now)
	assert.ErrorIs(t, j.advance(StateChunking), ErrIllegalTransition, "skipping Extracting")
	require.NoError(t, j.advance(StateExtracting))
	assert.ErrorIs(t, j.advance(StateReceived), ErrIllegalTransition, "going back")
	assert.ErrorIs(t, j.fail(ReasonNone), ErrIllegalTransition)
	require.NoError(t, j.fail(ReasonExtractionFailed))
	assert.ErrorIs(t, j.advance(StateChunking), ErrIllegalTransition, "leaving Failed")
	assert.ErrorIs(t, j.fail(ReasonNoContent), ErrIllegalTransition)
	assert.Equal(t, StateFailed, j.State())
	assert.Equal(t, ReasonExtractionFailed, j.Reason())
}

func TestPageLayout(t *testing.T) {
	text, layout := joinPages([]extractor.Page{
		{Number: 1, Text: "aaaa"},
		{Number: 2, Text: "bbbb"},
		{Number: 3, Text: "cccc"},
	})
	assert.Equal(t, "aaaa\n\nbbbb\n\ncccc", text)

	tests := []struct {
		start, end  int
		first, last int
	}{
		{0, 4, 1, 1},
		{0, 7, 1, 2},
		{3, 12, 1, 2},
		{3, 13, 1, 3},
		{6, 10, 2, 2},
		{12, 16, 3, 3},
	}
	for _, tt := range tests {
		first, last := layout.pages(tt.start, tt.end)
		assert.Equal(t, tt.first, first, "start of [%d,%d)", tt.start, tt.end)
		assert.Equal(t, tt.last, last, "end of [%d,%d)", tt.start, tt.end)
	}
}
