package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/metrics"
)

type fakePublisher struct {
	got     publisher.File
	content []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, file publisher.File) (*ingestion.UploadedDocument, error) {
	f.got = file
	if f.err != nil {
		return nil, f.err
	}
	f.content, _ = io.ReadAll(file.Content)
	path := "uploads/1700000000000-" + file.OriginalName
	return &ingestion.UploadedDocument{
		ID:           ingestion.DocumentID(path),
		OriginalName: file.OriginalName,
		StoredName:   "1700000000000-" + file.OriginalName,
		Path:         path,
		Size:         int64(len(f.content)),
		MimeType:     file.MimeType,
	}, nil
}

type fakeStatus map[string]*ingestion.DocumentStatus

func (f fakeStatus) Get(_ context.Context, id string) (*ingestion.DocumentStatus, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
}

func multipartBody(t *testing.T, field, name, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func uploadCfg() config.UploadConfig {
	return config.UploadConfig{MaxBytes: 1 << 20, FormField: "pdf"}
}

func doUpload(h *Handler, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload/pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUploadAcceptsPDF(t *testing.T) {
	pub := &fakePublisher{}
	m := metrics.NewNop()
	h := New(pub, nil, uploadCfg(), m)

	content := []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF")
	body, ct := multipartBody(t, "pdf", "report.pdf", "application/octet-stream", content)
	rec := doUpload(h, body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, content, pub.content, "publisher reads the whole file from the start")
	assert.Equal(t, "report.pdf", pub.got.OriginalName)
	assert.Equal(t, "application/pdf", pub.got.MimeType)

	var resp ingestion.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "File uploaded successfully", resp.Message)
	assert.Equal(t, ingestion.DocumentID("uploads/1700000000000-report.pdf"), resp.DocumentID)
	assert.Equal(t, "pdf", resp.File.FieldName)
	assert.Equal(t, "report.pdf", resp.File.OriginalName)
	assert.Equal(t, "1700000000000-report.pdf", resp.File.FileName)
	assert.EqualValues(t, len(content), resp.File.Size)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("accepted")))
}

func TestUploadMissingFile(t *testing.T) {
	pub := &fakePublisher{}
	m := metrics.NewNop()
	h := New(pub, nil, uploadCfg(), m)

	body, ct := multipartBody(t, "", "", "", nil)
	rec := doUpload(h, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No file uploaded"}`, rec.Body.String())
	assert.Empty(t, pub.got.OriginalName, "nothing is published")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")))
}

func TestUploadRejectsNonPDF(t *testing.T) {
	tests := []struct {
		name        string
		fileName    string
		contentType string
		content     []byte
		field       string
	}{
		{"wrong extension", "notes.txt", "text/plain", []byte("%PDF-1.4"), "filename"},
		{"not pdf content", "fake.pdf", "application/pdf", []byte("hello world"), "content"},
		{"empty file", "empty.pdf", "application/pdf", nil, "size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			h := New(pub, nil, uploadCfg(), nil)
			body, ct := multipartBody(t, "pdf", tt.fileName, tt.contentType, tt.content)
			rec := doUpload(h, body, ct)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "validation failed", resp.Error)
			assert.Contains(t, resp.Fields, tt.field)
			assert.Empty(t, pub.got.OriginalName)
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	cfg := config.UploadConfig{MaxBytes: 16, FormField: "pdf"}
	h := New(&fakePublisher{}, nil, cfg, nil)

	content := append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("x"), 2<<20)...)
	body, ct := multipartBody(t, "pdf", "big.pdf", "application/pdf", content)
	rec := doUpload(h, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadQueueUnavailable(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("%w: redis down", apperrors.ErrQueueUnavailable)}
	m := metrics.NewNop()
	h := New(pub, nil, uploadCfg(), m)

	body, ct := multipartBody(t, "pdf", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
	rec := doUpload(h, body, ct)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("error")))
}

func TestStatus(t *testing.T) {
	id := ingestion.DocumentID("uploads/1-a.pdf")
	st := fakeStatus{id: {
		ID: id, FileName: "1-a.pdf", FilePath: "uploads/1-a.pdf", Size: 10,
		State: "Completed", Chunks: 3, Attempts: 1,
		CreatedAt: time.Unix(0, 0).UTC(), UpdatedAt: time.Unix(0, 0).UTC(),
	}}
	h := New(&fakePublisher{}, st, uploadCfg(), nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}", h.Status)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got ingestion.DocumentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Completed", got.State)
	assert.Equal(t, 3, got.Chunks)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusWithoutTracking(t *testing.T) {
	h := New(&fakePublisher{}, nil, uploadCfg(), nil)
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/documents/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoot(t *testing.T) {
	h := New(&fakePublisher{}, nil, uploadCfg(), nil)
	rec := httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World!", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
