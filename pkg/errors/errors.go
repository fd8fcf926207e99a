// Package errors defines the platform's error taxonomy as sentinel values and
// an AppError type that carries an HTTP status for the boundary handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrExtractionFailed      = errors.New("extraction failed")
	ErrNoContent             = errors.New("no content")
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrIndexUnavailable      = errors.New("vector index unavailable")
	ErrDimensionMismatch     = errors.New("vector dimension mismatch")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrInvalidDescriptor     = errors.New("invalid job descriptor")
	ErrInvalidInput          = errors.New("invalid input")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrQueueUnavailable      = errors.New("job queue unavailable")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrCircuitOpen           = errors.New("circuit breaker is open")
	ErrTimeout               = errors.New("operation timed out")
	ErrInternal              = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps an error to the status a boundary handler should
// answer with. Unavailable dependencies map to 503.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidDescriptor):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmbeddingUnavailable),
		errors.Is(err, ErrIndexUnavailable),
		errors.Is(err, ErrGenerationUnavailable),
		errors.Is(err, ErrQueueUnavailable),
		errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable code for err, used in JSON error
// payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrNoContent):
		return "no_content"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	case errors.Is(err, ErrInvalidDescriptor):
		return "invalid_descriptor"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, ErrQueueUnavailable):
		return "queue_unavailable"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
