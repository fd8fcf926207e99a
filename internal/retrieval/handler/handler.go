package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/logger"
)

const apology = "An error occurred while processing your request"

type Answerer interface {
	Answer(ctx context.Context, query string) (*retrieval.ChatResponse, error)
}

type Handler struct {
	answerer     Answerer
	defaultQuery string
	logger       *slog.Logger
}

func New(a Answerer, defaultQuery string) *Handler {
	return &Handler{
		answerer:     a,
		defaultQuery: defaultQuery,
		logger:       slog.Default().With("component", "chat-handler"),
	}
}

// Chat answers GET /chat?message=<question>. A missing message falls back to
// the configured default question.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("message"))
	if query == "" {
		query = h.defaultQuery
	}

	resp, err := h.answerer.Answer(ctx, query)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("chat failed",
			"error", err,
			"status_code", status,
		)
		h.writeJSON(w, status, map[string]string{
			"error":   apperrors.Code(err),
			"message": apology,
		})
		return
	}
	log.Info("chat answered", "docs", len(resp.Docs))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
