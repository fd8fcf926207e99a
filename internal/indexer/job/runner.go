package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/extractor"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/tracing"
)

// pageSeparator joins the text of consecutive pages.
const pageSeparator = "\n\n"

// Opener reads a stored upload.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// StatusRecorder persists job progress. Recording errors are logged and
// never fail the job.
type StatusRecorder interface {
	RecordTransition(ctx context.Context, documentID string, state, reason string, chunks int) error
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Storage   Opener
	Extractor extractor.Extractor
	Chunker   *chunker.Chunker
	Embedder  embedding.Embedder
	Index     vectorindex.Index
}

// Result is the outcome of one run.
type Result struct {
	DocumentID  string
	State       State
	Reason      Reason
	Chunks      int
	Transitions []Transition
	Duration    time.Duration
}

type Runner struct {
	deps       Deps
	collection string
	recorder   StatusRecorder
	metrics    *metrics.Metrics
	tracing    bool
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Runner)

func WithStatusRecorder(r StatusRecorder) Option {
	return func(rn *Runner) { rn.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(rn *Runner) { rn.metrics = m }
}

// WithTracing logs each job's span tree when it finishes.
func WithTracing(enabled bool) Option {
	return func(rn *Runner) { rn.tracing = enabled }
}

func NewRunner(deps Deps, collection string, opts ...Option) (*Runner, error) {
	switch {
	case deps.Storage == nil, deps.Extractor == nil, deps.Chunker == nil, deps.Embedder == nil, deps.Index == nil:
		return nil, fmt.Errorf("job runner: all dependencies are required")
	case collection == "":
		return nil, fmt.Errorf("job runner: collection name is required")
	}
	r := &Runner{
		deps:       deps,
		collection: collection,
		metrics:    metrics.NewNop(),
		now:        time.Now,
		logger:     slog.Default().With("component", "ingestion-job"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the whole pipeline for desc. It always returns a Result; the
// error is non-nil exactly when the job ends Failed and wraps the cause.
// Run never retries: redelivery is the queue's job.
func (r *Runner) Run(ctx context.Context, desc ingestion.JobDescriptor) (*Result, error) {
	start := r.now()
	j := newJob(desc.DocumentID(), r.now)
	logger := r.logger.With("doc_id", j.DocumentID, "file", desc.FileName)

	ctx, span := tracing.StartSpan(ctx, "ingestion-job", j.DocumentID)
	r.metrics.IngestionJobsInFlight.Inc()
	defer r.metrics.IngestionJobsInFlight.Dec()

	chunks, cause := r.execute(ctx, j, desc, logger)

	span.SetAttr("state", string(j.State()))
	span.SetAttr("chunks", chunks)
	span.End()
	if r.tracing {
		span.Log(logger)
	}

	res := &Result{
		DocumentID:  j.DocumentID,
		State:       j.State(),
		Reason:      j.Reason(),
		Chunks:      chunks,
		Transitions: j.Transitions(),
		Duration:    r.now().Sub(start),
	}
	r.metrics.IngestionJobsTotal.WithLabelValues(string(res.State), string(res.Reason)).Inc()

	if res.State == StateFailed {
		logger.Error("ingestion failed", "state", res.State, "reason", res.Reason, "error", cause)
		return res, fmt.Errorf("%s: %w", res.Reason, cause)
	}
	if cause != nil {
		return res, cause
	}
	r.metrics.ChunksIndexedTotal.Add(float64(chunks))
	logger.Info("ingestion completed", "state", res.State, "chunks", chunks, "duration", res.Duration)
	return res, nil
}

// execute walks the states and returns the chunk count and, on failure, the
// cause. The job is left in its terminal state.
func (r *Runner) execute(ctx context.Context, j *Job, desc ingestion.JobDescriptor, logger *slog.Logger) (int, error) {
	r.record(ctx, j, 0, logger)

	if err := validator.ValidateDescriptor(desc); err != nil {
		return 0, r.failWith(ctx, j, ReasonInvalidDescriptor, err, logger)
	}

	// Extracting
	if err := r.enter(ctx, j, StateExtracting, logger); err != nil {
		return 0, err
	}
	var pages []extractor.Page
	err := r.stage(ctx, StateExtracting, func(ctx context.Context) error {
		var err error
		pages, err = r.extract(ctx, desc.FilePath)
		return err
	})
	if err != nil {
		return 0, r.failWith(ctx, j, ReasonExtractionFailed, err, logger)
	}
	text, layout := joinPages(pages)
	if strings.TrimSpace(text) == "" {
		return 0, r.failWith(ctx, j, ReasonNoContent, fmt.Errorf("no text extracted from %s", desc.FilePath), logger)
	}

	// Chunking
	if err := r.enter(ctx, j, StateChunking, logger); err != nil {
		return 0, err
	}
	var chunks []chunker.Chunk
	r.stage(ctx, StateChunking, func(context.Context) error {
		chunks = r.deps.Chunker.Split(text)
		return nil
	})
	if len(chunks) == 0 {
		return 0, r.failWith(ctx, j, ReasonNoContent, fmt.Errorf("no chunks created"), logger)
	}

	// Embedding
	if err := r.enter(ctx, j, StateEmbedding, logger); err != nil {
		return 0, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var vectors [][]float32
	err = r.stage(ctx, StateEmbedding, func(ctx context.Context) error {
		var err error
		vectors, err = r.deps.Embedder.Embed(ctx, texts)
		if err == nil && len(vectors) != len(texts) {
			err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(texts))
		}
		return err
	})
	if err != nil {
		return 0, r.failWith(ctx, j, ReasonEmbeddingFailed, err, logger)
	}

	// Upserting
	if err := r.enter(ctx, j, StateUpserting, logger); err != nil {
		return 0, err
	}
	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		first, last := layout.pages(c.Start, c.End)
		records[i] = vectorindex.Record{
			ID:     vectorindex.RecordID(desc.FilePath, c.Position),
			Vector: vectors[i],
			Text:   c.Text,
			Metadata: vectorindex.Metadata{
				DocumentID: j.DocumentID,
				Source:     desc.FilePath,
				FileName:   desc.FileName,
				Chunk:      c.Position,
				PageStart:  first,
				PageEnd:    last,
			},
		}
	}
	err = r.stage(ctx, StateUpserting, func(ctx context.Context) error {
		if err := r.deps.Index.EnsureCollection(ctx, r.collection, len(vectors[0])); err != nil {
			return err
		}
		return r.deps.Index.Upsert(ctx, r.collection, records)
	})
	if err != nil {
		return 0, r.failWith(ctx, j, ReasonIndexFailed, err, logger)
	}

	if err := j.advance(StateCompleted); err != nil {
		return 0, err
	}
	r.record(ctx, j, len(records), logger)
	return len(records), nil
}

func (r *Runner) extract(ctx context.Context, path string) ([]extractor.Page, error) {
	rc, err := r.deps.Storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return r.deps.Extractor.Extract(ctx, rc)
}

func (r *Runner) enter(ctx context.Context, j *Job, to State, logger *slog.Logger) error {
	if err := j.advance(to); err != nil {
		return err
	}
	logger.Debug("ingestion state", "state", to)
	r.record(ctx, j, 0, logger)
	return nil
}

func (r *Runner) failWith(ctx context.Context, j *Job, reason Reason, cause error, logger *slog.Logger) error {
	if err := j.fail(reason); err != nil {
		return err
	}
	r.record(ctx, j, 0, logger)
	return cause
}

// stage times fn under a child span named after the state.
func (r *Runner) stage(ctx context.Context, s State, fn func(context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, strings.ToLower(string(s)))
	start := time.Now()
	err := fn(ctx)
	r.metrics.IngestionStageLatency.WithLabelValues(strings.ToLower(string(s))).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetAttr("error", err.Error())
	}
	span.End()
	return err
}

func (r *Runner) record(ctx context.Context, j *Job, chunks int, logger *slog.Logger) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordTransition(ctx, j.DocumentID, string(j.State()), string(j.Reason()), chunks); err != nil {
		logger.Warn("failed to record job state", "state", j.State(), "error", err)
	}
}

// pageLayout maps code-point offsets in the joined text back to page
// numbers.
type pageLayout struct {
	starts  []int
	numbers []int
}

func joinPages(pages []extractor.Page) (string, pageLayout) {
	var (
		b      strings.Builder
		layout pageLayout
		offset int
	)
	for i, p := range pages {
		if i > 0 {
			b.WriteString(pageSeparator)
			offset += utf8.RuneCountInString(pageSeparator)
		}
		layout.starts = append(layout.starts, offset)
		layout.numbers = append(layout.numbers, p.Number)
		b.WriteString(p.Text)
		offset += utf8.RuneCountInString(p.Text)
	}
	return b.String(), layout
}

// pages returns the first and last page touched by [start, end).
func (l pageLayout) pages(start, end int) (int, int) {
	if len(l.starts) == 0 {
		return 0, 0
	}
	return l.at(start), l.at(max(start, end-1))
}

func (l pageLayout) at(offset int) int {
	i := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return l.numbers[i]
}
