// Package qdrant is a minimal REST client for the Qdrant vector database.
// Collections use cosine distance; point ids are the record UUIDs.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

type Index struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu     sync.RWMutex
	dims   map[string]int
	logger *slog.Logger
}

// New builds a client for cfg.URL. Per-call deadlines come from the caller's
// context; wrap the index with vectorindex.WithTimeout to bound them.
func New(cfg config.IndexConfig, client *http.Client) *Index {
	if client == nil {
		client = &http.Client{}
	}
	return &Index{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		dims:    make(map[string]int),
		logger:  slog.Default().With("component", "qdrant-index"),
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant responded %d: %s", e.code, e.body)
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (idx *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", apperrors.ErrInvalidInput)
	}
	if have, ok := idx.cached(name); ok {
		return checkDimension(name, have, dimension)
	}

	have, err := idx.collectionSize(ctx, name)
	switch {
	case err == nil:
	case isStatus(err, http.StatusNotFound):
		body := map[string]any{
			"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
		}
		err = idx.do(ctx, http.MethodPut, idx.collectionPath(name), body, nil)
		if isStatus(err, http.StatusConflict) {
			// Another worker created it first.
			have, err = idx.collectionSize(ctx, name)
		} else if err == nil {
			have = dimension
			idx.logger.Info("collection created", "collection", name, "dimension", dimension)
		}
		if err != nil {
			return fmt.Errorf("%w: creating collection %s: %w", apperrors.ErrIndexUnavailable, name, err)
		}
	default:
		return fmt.Errorf("%w: reading collection %s: %w", apperrors.ErrIndexUnavailable, name, err)
	}

	idx.remember(name, have)
	return checkDimension(name, have, dimension)
}

func (idx *Index) collectionSize(ctx context.Context, name string) (int, error) {
	var info collectionInfo
	if err := idx.do(ctx, http.MethodGet, idx.collectionPath(name), nil, &info); err != nil {
		return 0, err
	}
	return info.Result.Config.Params.Vectors.Size, nil
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

type payload struct {
	Text     string               `json:"text"`
	Metadata vectorindex.Metadata `json:"metadata"`
}

// Upsert sends the batch as one request with wait=true; Qdrant applies a
// single points request atomically.
func (idx *Index) Upsert(ctx context.Context, name string, records []vectorindex.Record) error {
	dim, ok := idx.cached(name)
	if !ok {
		var err error
		dim, err = idx.collectionSize(ctx, name)
		if isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: %s", vectorindex.ErrCollectionNotFound, name)
		}
		if err != nil {
			return fmt.Errorf("%w: reading collection %s: %w", apperrors.ErrIndexUnavailable, name, err)
		}
		idx.remember(name, dim)
	}
	if err := vectorindex.ValidateBatch(records, dim); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{ID: r.ID, Vector: r.Vector, Payload: payload{Text: r.Text, Metadata: r.Metadata}}
	}
	err := idx.do(ctx, http.MethodPut, idx.collectionPath(name)+"/points?wait=true", map[string]any{"points": points}, nil)
	if isStatus(err, http.StatusNotFound) {
		idx.forget(name)
		return fmt.Errorf("%w: %s", vectorindex.ErrCollectionNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("%w: upserting into %s: %w", apperrors.ErrIndexUnavailable, name, err)
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		ID      any     `json:"id"`
		Score   float64 `json:"score"`
		Payload payload `json:"payload"`
	} `json:"result"`
}

func (idx *Index) Search(ctx context.Context, name string, vector []float32, k int) ([]vectorindex.Match, error) {
	if err := vectorindex.ValidateK(k); err != nil {
		return nil, err
	}
	if dim, ok := idx.cached(name); ok && dim != len(vector) {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s has %d",
			apperrors.ErrDimensionMismatch, len(vector), name, dim)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp searchResponse
	err := idx.do(ctx, http.MethodPost, idx.collectionPath(name)+"/points/search", req, &resp)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if isStatus(err, http.StatusBadRequest) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDimensionMismatch, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %w", apperrors.ErrIndexUnavailable, name, err)
	}

	matches := make([]vectorindex.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, vectorindex.Match{
			ID:       fmt.Sprint(r.ID),
			Text:     r.Payload.Text,
			Metadata: r.Payload.Metadata,
			Score:    r.Score,
		})
	}
	return matches, nil
}

func (idx *Index) Close() error {
	idx.client.CloseIdleConnections()
	return nil
}

// Ping checks that the server answers.
func (idx *Index) Ping(ctx context.Context) error {
	return idx.do(ctx, http.MethodGet, "/collections", nil, nil)
}

func (idx *Index) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (idx *Index) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, idx.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}

	resp, err := idx.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (idx *Index) cached(name string) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	d, ok := idx.dims[name]
	return d, ok
}

func (idx *Index) remember(name string, dim int) {
	idx.mu.Lock()
	idx.dims[name] = dim
	idx.mu.Unlock()
}

func (idx *Index) forget(name string) {
	idx.mu.Lock()
	delete(idx.dims, name)
	idx.mu.Unlock()
}

func checkDimension(name string, have, want int) error {
	if have != want {
		return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
			apperrors.ErrDimensionMismatch, name, have, want)
	}
	return nil
}
