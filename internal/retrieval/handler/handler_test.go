package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

type stubAnswerer struct {
	got  string
	resp *retrieval.ChatResponse
	err  error
}

func (s *stubAnswerer) Answer(_ context.Context, q string) (*retrieval.ChatResponse, error) {
	s.got = q
	return s.resp, s.err
}

func TestChatReturnsMessageAndDocs(t *testing.T) {
	a := &stubAnswerer{resp: &retrieval.ChatResponse{
		Message: "Go is a language.",
		Docs: []retrieval.Document{{
			ID:          "id-1",
			PageContent: "Go is a statically typed language",
			Metadata: retrieval.DocumentMetadata{
				Source: "uploads/1-go.pdf", FileName: "1-go.pdf", Chunk: 0,
				Loc: retrieval.Location{PageNumber: 1, PageEnd: 1},
			},
			Score: 0.93,
		}},
	}}
	h := New(a, "What is this document about?")

	rec := httptest.NewRecorder()
	h.Chat(rec, httptest.NewRequest(http.MethodGet, "/chat?message=what+is+go", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is go", a.got)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Go is a language.", body["message"])
	docs := body["docs"].([]any)
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]any)
	assert.Equal(t, "Go is a statically typed language", doc["pageContent"])
	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, "uploads/1-go.pdf", meta["source"])
	assert.Equal(t, map[string]any{"pageNumber": 1.0, "pageEnd": 1.0}, meta["loc"])
}

func TestChatUsesDefaultQuery(t *testing.T) {
	a := &stubAnswerer{resp: &retrieval.ChatResponse{Docs: []retrieval.Document{}}}
	h := New(a, "What is this document about?")

	rec := httptest.NewRecorder()
	h.Chat(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "What is this document about?", a.got)
	assert.JSONEq(t, `{"message":"","docs":[]}`, rec.Body.String())
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		wantCode string
	}{
		{fmt.Errorf("%w: boom", apperrors.ErrGenerationUnavailable), http.StatusServiceUnavailable, "generation_unavailable"},
		{fmt.Errorf("%w: refused", apperrors.ErrEmbeddingUnavailable), http.StatusServiceUnavailable, "embedding_unavailable"},
		{fmt.Errorf("%w: down", apperrors.ErrIndexUnavailable), http.StatusServiceUnavailable, "index_unavailable"},
		{fmt.Errorf("%w: empty", apperrors.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			h := New(&stubAnswerer{err: tt.err}, "q")
			rec := httptest.NewRecorder()
			h.Chat(rec, httptest.NewRequest(http.MethodGet, "/chat?message=hi", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Equal(t, apology, body["message"])
		})
	}
}

func TestChatRejectsOtherMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	New(&stubAnswerer{}, "q").Chat(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
