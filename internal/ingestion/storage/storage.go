// Package storage persists uploaded PDFs and reads them back for the
// ingestion worker. Stored names are "<unix-millis>-<sanitised original>";
// names are claimed exclusively and the timestamp is bumped on collision,
// so concurrent uploads of the same file never overwrite each other.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
)

// maxNameAttempts bounds how many successive timestamps Save tries.
const maxNameAttempts = 64

// Object describes a stored file. Path is what the job descriptor carries.
type Object struct {
	Name string
	Path string
	Size int64
}

// Store saves and opens uploaded files. Save reads r from its current
// position and may rewind it to retry under another name.
type Store interface {
	Save(ctx context.Context, originalName string, r io.ReadSeeker) (*Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "gcs":
		return NewGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces an uploaded file name to a safe base name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}
	if name == "" {
		return "upload.pdf"
	}
	return name
}

func storedName(t time.Time, attempt int, base string) string {
	return fmt.Sprintf("%d-%s", t.UnixMilli()+int64(attempt), base)
}
