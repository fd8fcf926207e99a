package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// Local stores uploads in a directory on disk.
type Local struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: storage directory is empty", apperrors.ErrInvalidConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", apperrors.ErrStorageUnavailable, dir, err)
	}
	return &Local{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default().With("component", "local-storage"),
	}, nil
}

// Save writes r to a new file and fsyncs it before returning.
func (l *Local) Save(_ context.Context, originalName string, r io.ReadSeeker) (*Object, error) {
	base := SanitizeName(originalName)
	ts := l.now()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := storedName(ts, attempt, base)
		path := filepath.Join(l.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: creating %s: %w", apperrors.ErrStorageUnavailable, path, err)
		}

		n, err := io.Copy(f, r)
		if err == nil {
			err = f.Sync()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("%w: writing %s: %w", apperrors.ErrStorageUnavailable, path, err)
		}

		l.logger.Debug("upload stored", "path", path, "size", n, "attempt", attempt)
		return &Object{Name: name, Path: path, Size: n}, nil
	}
	return nil, fmt.Errorf("%w: no free name for %s after %d attempts",
		apperrors.ErrStorageUnavailable, base, maxNameAttempts)
}

// Open reads a file previously returned by Save. Paths outside the storage
// directory are refused.
func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	rel, err := filepath.Rel(l.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s is outside %s", apperrors.ErrInvalidInput, path, l.dir)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", apperrors.ErrStorageUnavailable, path, err)
	}
	return f, nil
}

func (l *Local) Close() error { return nil }
