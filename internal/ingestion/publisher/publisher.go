// Package publisher hands an accepted upload over to the ingestion workers:
// the file is stored durably, its status row is created, and only then is
// the job descriptor enqueued.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/queue"
)

// StatusCreator records a new upload. Implemented by status.Repository.
type StatusCreator interface {
	Create(ctx context.Context, doc *ingestion.UploadedDocument) error
}

// File is an upload that already passed validation.
type File struct {
	OriginalName string
	MimeType     string
	Content      io.ReadSeeker
}

type Publisher struct {
	store    storage.Store
	producer queue.Producer
	status   StatusCreator
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Publisher. status may be nil, in which case no status row
// is written.
func New(store storage.Store, producer queue.Producer, status StatusCreator) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		status:   status,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Publish stores f and enqueues its job descriptor keyed by the document id.
// A descriptor is never enqueued for a file that is not on storage.
func (p *Publisher) Publish(ctx context.Context, f File) (*ingestion.UploadedDocument, error) {
	obj, err := p.store.Save(ctx, f.OriginalName, f.Content)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	doc := &ingestion.UploadedDocument{
		ID:           ingestion.DocumentID(obj.Path),
		OriginalName: f.OriginalName,
		StoredName:   obj.Name,
		Path:         obj.Path,
		Size:         obj.Size,
		MimeType:     f.MimeType,
		UploadedAt:   p.now().UTC(),
	}

	if p.status != nil {
		if err := p.status.Create(ctx, doc); err != nil {
			p.logger.Warn("failed to create document status",
				"doc_id", doc.ID,
				"error", err,
			)
		}
	}

	body, err := json.Marshal(doc.Descriptor())
	if err != nil {
		return nil, fmt.Errorf("%w: encoding descriptor: %w", apperrors.ErrInternal, err)
	}
	msgID, err := p.producer.Enqueue(ctx, doc.ID, body)
	if err != nil {
		p.logger.Error("failed to enqueue ingestion job, file stored but not indexed",
			"doc_id", doc.ID,
			"path", doc.Path,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrQueueUnavailable, err)
	}

	p.logger.Info("ingestion job enqueued",
		"doc_id", doc.ID,
		"path", doc.Path,
		"size", doc.Size,
		"message_id", msgID,
	)
	return doc, nil
}
