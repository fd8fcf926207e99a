// Package validator checks uploads before they are stored and job
// descriptors before a worker acts on them. Failures carry per-field
// details.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

const (
	maxFileNameLength = 255
	pdfMimeType       = "application/pdf"
)

var pdfMagic = []byte("%PDF-")

// ValidationError holds per-field validation failure messages. It unwraps
// to ErrInvalidInput for uploads and ErrInvalidDescriptor for descriptors.
type ValidationError struct {
	Fields map[string]string
	kind   error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

// Upload describes a multipart file as received. Head holds the first bytes
// of the content.
type Upload struct {
	FileName string
	MimeType string
	Size     int64
	Head     []byte
}

// ValidateUpload accepts only PDFs no larger than maxBytes.
func ValidateUpload(u Upload, maxBytes int64) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(u.FileName)
	switch {
	case name == "":
		errs["filename"] = "filename is required"
	case len(name) > maxFileNameLength:
		errs["filename"] = fmt.Sprintf("filename must be at most %d characters", maxFileNameLength)
	case !strings.EqualFold(filepath.Ext(name), ".pdf"):
		errs["filename"] = "only .pdf files are accepted"
	}

	if mt := mediaType(u.MimeType); mt != "" && mt != pdfMimeType && mt != "application/octet-stream" {
		errs["mimetype"] = fmt.Sprintf("unsupported content type %q", u.MimeType)
	}

	switch {
	case u.Size <= 0:
		errs["size"] = "file is empty"
	case maxBytes > 0 && u.Size > maxBytes:
		errs["size"] = fmt.Sprintf("file must be at most %d bytes", maxBytes)
	}

	if u.Size > 0 && !bytes.HasPrefix(u.Head, pdfMagic) {
		errs["content"] = "file is not a PDF"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs, kind: apperrors.ErrInvalidInput}
	}
	return nil
}

// ValidateDescriptor checks that every field of d is present.
func ValidateDescriptor(d ingestion.JobDescriptor) error {
	errs := make(map[string]string)
	if strings.TrimSpace(d.FileName) == "" {
		errs["fileName"] = "fileName is required"
	}
	if strings.TrimSpace(d.FilePath) == "" {
		errs["filePath"] = "filePath is required"
	}
	if d.FileSize <= 0 {
		errs["fileSize"] = "fileSize must be positive"
	}
	if strings.TrimSpace(d.MimeType) == "" {
		errs["mimeType"] = "mimeType is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs, kind: apperrors.ErrInvalidDescriptor}
	}
	return nil
}

// DecodeDescriptor parses and validates a queue message body. Besides a
// JSON object it accepts a JSON string holding the object, which is how
// producers that pre-serialise their payload enqueue it.
func DecodeDescriptor(body []byte) (ingestion.JobDescriptor, error) {
	var d ingestion.JobDescriptor
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return d, fmt.Errorf("%w: %w", apperrors.ErrInvalidDescriptor, err)
		}
		body = []byte(inner)
	}
	if err := json.Unmarshal(body, &d); err != nil {
		return d, fmt.Errorf("%w: %w", apperrors.ErrInvalidDescriptor, err)
	}
	if err := ValidateDescriptor(d); err != nil {
		return d, err
	}
	return d, nil
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
