// Package status keeps the per-document ingestion bookkeeping in
// PostgreSQL: the server creates a row when an upload is accepted and the
// worker records each job state transition against it.
package status

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id          UUID PRIMARY KEY,
		file_name   TEXT NOT NULL,
		file_path   TEXT NOT NULL,
		size        BIGINT NOT NULL,
		state       TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		chunks      INT NOT NULL DEFAULT 0,
		attempts    INT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS documents_state_idx ON documents (state)`,
}

type Repository struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New migrates the documents table.
func New(ctx context.Context, db *postgres.Client) (*Repository, error) {
	if err := db.Migrate(ctx, schema...); err != nil {
		return nil, fmt.Errorf("migrating documents table: %w", err)
	}
	return &Repository{
		db:     db,
		logger: slog.Default().With("component", "status-repository"),
	}, nil
}

// Create inserts the row for a freshly stored upload in state Received.
// Creating the same document twice is a no-op.
func (r *Repository) Create(ctx context.Context, doc *ingestion.UploadedDocument) error {
	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, file_name, file_path, size, state)
		VALUES ($1, $2, $3, $4, 'Received')
		ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.StoredName, doc.Path, doc.Size,
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

// RecordTransition stores the job's new state. Entering Received again
// counts another attempt; the chunk count is kept from Completed.
func (r *Repository) RecordTransition(ctx context.Context, documentID, state, reason string, chunks int) error {
	res, err := r.db.DB.ExecContext(ctx,
		`UPDATE documents SET
			state = $2,
			reason = $3,
			chunks = CASE WHEN $2 = 'Completed' THEN $4 ELSE chunks END,
			attempts = attempts + CASE WHEN $2 = 'Received' THEN 1 ELSE 0 END,
			updated_at = now()
		WHERE id = $1`,
		documentID, state, reason, chunks,
	)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", documentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, documentID)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, documentID string) (*ingestion.DocumentStatus, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, documentID)
	}
	var s ingestion.DocumentStatus
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT id, file_name, file_path, size, state, reason, chunks, attempts, created_at, updated_at
		FROM documents WHERE id = $1`, documentID,
	).Scan(&s.ID, &s.FileName, &s.FilePath, &s.Size, &s.State, &s.Reason, &s.Chunks, &s.Attempts, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", documentID, err)
	}
	return &s, nil
}
