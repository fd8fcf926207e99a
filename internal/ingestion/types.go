// Package ingestion defines the upload records, the job descriptor carried by
// the queue, and the HTTP response shapes of the upload pipeline.
package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// UploadedDocument is a PDF accepted and durably stored by the server.
type UploadedDocument struct {
	ID           string
	OriginalName string
	StoredName   string
	Path         string
	Size         int64
	MimeType     string
	UploadedAt   time.Time
}

// Descriptor returns the queue message announcing doc to the workers.
func (d *UploadedDocument) Descriptor() JobDescriptor {
	return JobDescriptor{
		FileName: d.StoredName,
		FilePath: d.Path,
		FileSize: d.Size,
		MimeType: d.MimeType,
	}
}

// JobDescriptor is the flat record enqueued after a file is stored.
type JobDescriptor struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// DocumentID returns the id of the document the descriptor refers to.
func (d JobDescriptor) DocumentID() string {
	return DocumentID(d.FilePath)
}

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pdf-chat-platform/document"))

// DocumentID derives a document's id from its storage path. Stored names are
// unique, so the path identifies the upload, and a redelivered descriptor
// maps back to the same id.
func DocumentID(storagePath string) string {
	return uuid.NewSHA1(documentNamespace, []byte(storagePath)).String()
}

// UploadedFile mirrors the multipart file description returned to the UI.
type UploadedFile struct {
	FieldName    string `json:"fieldname"`
	OriginalName string `json:"originalname"`
	MimeType     string `json:"mimetype"`
	FileName     string `json:"filename"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
}

// UploadResponse is returned by POST /upload/pdf.
type UploadResponse struct {
	Message    string       `json:"message"`
	DocumentID string       `json:"document_id"`
	File       UploadedFile `json:"file"`
}

// DocumentStatus is the bookkeeping row for one upload, updated by the
// worker as the ingestion job advances.
type DocumentStatus struct {
	ID        string    `json:"document_id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Chunks    int       `json:"chunks"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
