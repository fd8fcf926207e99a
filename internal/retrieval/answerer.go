// Package retrieval answers questions from the indexed PDFs: it embeds the
// query, fetches the nearest chunks, grounds a prompt in them, and asks the
// generative model.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
)

// Location points at the pages a chunk was cut from.
type Location struct {
	PageNumber int `json:"pageNumber"`
	PageEnd    int `json:"pageEnd"`
}

type DocumentMetadata struct {
	Source   string   `json:"source"`
	FileName string   `json:"fileName,omitempty"`
	Chunk    int      `json:"chunk"`
	Loc      Location `json:"loc"`
}

// Document is a retrieved chunk as the chat UI renders it.
type Document struct {
	ID          string           `json:"id"`
	PageContent string           `json:"pageContent"`
	Metadata    DocumentMetadata `json:"metadata"`
	Score       float64          `json:"score"`
}

// ChatResponse is the answer plus its sources, nearest first.
type ChatResponse struct {
	Message string     `json:"message"`
	Docs    []Document `json:"docs"`
}

type Answerer struct {
	embedder   embedding.Embedder
	index      vectorindex.Index
	generator  Generator
	collection string
	topK       int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewAnswerer(e embedding.Embedder, idx vectorindex.Index, g Generator, collection string, topK int, m *metrics.Metrics) (*Answerer, error) {
	if err := vectorindex.ValidateK(topK); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidConfiguration, err)
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Answerer{
		embedder:   e,
		index:      idx,
		generator:  g,
		collection: collection,
		topK:       topK,
		metrics:    m,
		logger:     slog.Default().With("component", "answerer"),
	}, nil
}

// Answer runs retrieval then generation for query. An empty collection is
// not an error: the model is asked with empty context and Docs is empty.
func (a *Answerer) Answer(ctx context.Context, query string) (*ChatResponse, error) {
	start := time.Now()
	resp, err := a.answer(ctx, query)
	a.metrics.ChatLatency.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		a.metrics.ChatQueriesTotal.WithLabelValues("error").Inc()
		logger.FromContext(ctx).Error("chat query failed", "error", err)
		return nil, err
	case len(resp.Docs) == 0:
		a.metrics.ChatQueriesTotal.WithLabelValues("empty_context").Inc()
	default:
		a.metrics.ChatQueriesTotal.WithLabelValues("answered").Inc()
	}
	return resp, nil
}

func (a *Answerer) answer(ctx context.Context, query string) (*ChatResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}

	vector, err := a.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := a.index.Search(ctx, a.collection, vector, a.topK)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", a.collection, err)
	}
	a.metrics.RetrievalResultsCount.Observe(float64(len(matches)))

	texts := make([]string, len(matches))
	docs := make([]Document, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
		docs[i] = toDocument(m)
	}

	message, err := a.generator.Generate(ctx, BuildPrompt(query, texts))
	if err != nil {
		return nil, err
	}

	a.logger.Debug("answered query", "retrieved", len(matches), "request_id", logger.RequestID(ctx))
	return &ChatResponse{Message: message, Docs: docs}, nil
}

func toDocument(m vectorindex.Match) Document {
	return Document{
		ID:          m.ID,
		PageContent: m.Text,
		Metadata: DocumentMetadata{
			Source:   m.Metadata.Source,
			FileName: m.Metadata.FileName,
			Chunk:    m.Metadata.Chunk,
			Loc:      Location{PageNumber: m.Metadata.PageStart, PageEnd: m.Metadata.PageEnd},
		},
		Score: m.Score,
	}
}
