package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// GCS stores uploads as objects in a Cloud Storage bucket. Paths have the
// form gs://<bucket>/<object>.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

func NewGCS(ctx context.Context, cfg config.StorageConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: storage bucket is empty", apperrors.ErrInvalidConfiguration)
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating storage client: %w", apperrors.ErrStorageUnavailable, err)
	}
	return &GCS{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
		logger: slog.Default().With("component", "gcs-storage"),
	}, nil
}

// Save writes the object only if it does not exist yet. A failed
// precondition means another upload took the name, so the next timestamp is
// tried after rewinding r.
func (g *GCS) Save(ctx context.Context, originalName string, r io.ReadSeeker) (*Object, error) {
	base := SanitizeName(originalName)
	ts := g.now()
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
	}

	bucket := g.client.Bucket(g.bucket)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := storedName(ts, attempt, base)
		objectName := path.Join(g.prefix, name)
		if _, err := r.Seek(start, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: rewinding upload: %w", apperrors.ErrStorageUnavailable, err)
		}

		w := bucket.Object(objectName).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = "application/pdf"
		n, err := io.Copy(w, r)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if isPreconditionFailed(err) {
			g.logger.Debug("object name taken, retrying", "object", objectName)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: writing gs://%s/%s: %w", apperrors.ErrStorageUnavailable, g.bucket, objectName, err)
		}
		return &Object{Name: name, Path: fmt.Sprintf("gs://%s/%s", g.bucket, objectName), Size: n}, nil
	}
	return nil, fmt.Errorf("%w: no free name for %s after %d attempts",
		apperrors.ErrStorageUnavailable, base, maxNameAttempts)
}

func (g *GCS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	bucket, object, ok := parseGSPath(p)
	if !ok || bucket != g.bucket {
		return nil, fmt.Errorf("%w: %s is not in bucket %s", apperrors.ErrInvalidInput, p, g.bucket)
	}
	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", apperrors.ErrStorageUnavailable, p, err)
	}
	return rc, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func parseGSPath(p string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(p, "gs://")
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
