package publisher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/storage"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

type enqueued struct {
	key  string
	body []byte
}

type fakeProducer struct {
	msgs []enqueued
	err  error
}

func (f *fakeProducer) Enqueue(_ context.Context, key string, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, enqueued{key: key, body: body})
	return "1-0", nil
}

type fakeStatus struct {
	docs []*ingestion.UploadedDocument
	err  error
}

func (f *fakeStatus) Create(_ context.Context, doc *ingestion.UploadedDocument) error {
	f.docs = append(f.docs, doc)
	return f.err
}

type failingStore struct{ storage.Store }

func (failingStore) Save(context.Context, string, io.ReadSeeker) (*storage.Object, error) {
	return nil, apperrors.ErrStorageUnavailable
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPublishStoresThenEnqueues(t *testing.T) {
	store := newStore(t)
	prod := &fakeProducer{}
	st := &fakeStatus{}
	p := New(store, prod, st)

	content := []byte("%PDF-1.4 test")
	doc, err := p.Publish(context.Background(), File{
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		Content:      bytes.NewReader(content),
	})
	require.NoError(t, err)

	assert.Equal(t, ingestion.DocumentID(doc.Path), doc.ID)
	assert.Contains(t, doc.StoredName, "-report.pdf")
	assert.EqualValues(t, len(content), doc.Size)

	rc, err := store.Open(context.Background(), doc.Path)
	require.NoError(t, err, "file is on storage before the job is enqueued")
	got, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, content, got)

	require.Len(t, st.docs, 1)
	assert.Equal(t, doc.ID, st.docs[0].ID)

	require.Len(t, prod.msgs, 1)
	assert.Equal(t, doc.ID, prod.msgs[0].key)
	desc, err := validator.DecodeDescriptor(prod.msgs[0].body)
	require.NoError(t, err)
	assert.Equal(t, doc.Descriptor(), desc)
	assert.Equal(t, doc.ID, desc.DocumentID())
}

func TestPublishWithoutStatus(t *testing.T) {
	prod := &fakeProducer{}
	p := New(newStore(t), prod, nil)
	_, err := p.Publish(context.Background(), File{OriginalName: "a.pdf", MimeType: "application/pdf", Content: bytes.NewReader([]byte("%PDF-"))})
	require.NoError(t, err)
	assert.Len(t, prod.msgs, 1)
}

func TestPublishStatusFailureDoesNotBlockEnqueue(t *testing.T) {
	prod := &fakeProducer{}
	p := New(newStore(t), prod, &fakeStatus{err: errors.New("connection refused")})
	_, err := p.Publish(context.Background(), File{OriginalName: "a.pdf", MimeType: "application/pdf", Content: bytes.NewReader([]byte("%PDF-"))})
	require.NoError(t, err)
	assert.Len(t, prod.msgs, 1)
}

func TestPublishQueueFailure(t *testing.T) {
	p := New(newStore(t), &fakeProducer{err: errors.New("redis down")}, nil)
	_, err := p.Publish(context.Background(), File{OriginalName: "a.pdf", MimeType: "application/pdf", Content: bytes.NewReader([]byte("%PDF-"))})
	assert.ErrorIs(t, err, apperrors.ErrQueueUnavailable)
}

func TestPublishStorageFailureEnqueuesNothing(t *testing.T) {
	prod := &fakeProducer{}
	st := &fakeStatus{}
	p := New(failingStore{}, prod, st)
	_, err := p.Publish(context.Background(), File{OriginalName: "a.pdf", Content: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Empty(t, prod.msgs)
	assert.Empty(t, st.docs)
}
