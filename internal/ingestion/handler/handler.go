package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
)

const (
	pdfMimeType = "application/pdf"
	headSize    = 512
	// multipartOverhead is allowed on top of the file limit for boundaries
	// and part headers.
	multipartOverhead = 1 << 20
	memoryLimit       = 8 << 20
)

type Publisher interface {
	Publish(ctx context.Context, f publisher.File) (*ingestion.UploadedDocument, error)
}

type StatusReader interface {
	Get(ctx context.Context, documentID string) (*ingestion.DocumentStatus, error)
}

type Handler struct {
	publisher Publisher
	status    StatusReader
	cfg       config.UploadConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates the upload handler. status may be nil when document status
// is not tracked; Status then answers 404 for every id.
func New(pub Publisher, status StatusReader, cfg config.UploadConfig, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.FormField == "" {
		cfg.FormField = "pdf"
	}
	return &Handler{
		publisher: pub,
		status:    status,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "upload-handler"),
	}
}

// Upload accepts a multipart PDF under the configured form field, stores it
// and enqueues its ingestion job.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.cfg.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		h.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(h.cfg.FormField)
	if err != nil {
		h.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		h.writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	head := make([]byte, headSize)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.metrics.UploadsTotal.WithLabelValues("error").Inc()
		log.Error("reading upload failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.metrics.UploadsTotal.WithLabelValues("error").Inc()
		log.Error("rewinding upload failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	contentType := header.Header.Get("Content-Type")
	err = validator.ValidateUpload(validator.Upload{
		FileName: header.Filename,
		MimeType: contentType,
		Size:     header.Size,
		Head:     head[:n],
	}, h.cfg.MaxBytes)
	if err != nil {
		h.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Browsers often send octet-stream; the content was checked to be a PDF.
	doc, err := h.publisher.Publish(ctx, publisher.File{
		OriginalName: header.Filename,
		MimeType:     pdfMimeType,
		Content:      file,
	})
	if err != nil {
		h.metrics.UploadsTotal.WithLabelValues("error").Inc()
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("upload failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "upload failed")
		return
	}

	h.metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	log.Info("pdf uploaded",
		"doc_id", doc.ID,
		"path", doc.Path,
		"size", doc.Size,
	)
	h.writeJSON(w, http.StatusOK, ingestion.UploadResponse{
		Message:    "File uploaded successfully",
		DocumentID: doc.ID,
		File: ingestion.UploadedFile{
			FieldName:    h.cfg.FormField,
			OriginalName: doc.OriginalName,
			MimeType:     doc.MimeType,
			FileName:     doc.StoredName,
			Path:         doc.Path,
			Size:         doc.Size,
		},
	})
}

// Status answers GET /documents/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.status == nil {
		h.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	st, err := h.status.Get(r.Context(), id)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		if statusCode == http.StatusNotFound {
			h.writeError(w, statusCode, "document not found")
			return
		}
		logger.FromContext(r.Context()).Error("status lookup failed", "doc_id", id, "error", err)
		h.writeError(w, statusCode, "status lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// Root is the plain-text liveness answer on GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Hello World!")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
