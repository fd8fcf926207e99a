package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

func TestValidateUpload(t *testing.T) {
	head := []byte("%PDF-1.4\n")
	tests := []struct {
		name    string
		upload  Upload
		wantErr string
	}{
		{"valid", Upload{FileName: "report.pdf", MimeType: "application/pdf", Size: 10, Head: head}, ""},
		{"uppercase ext", Upload{FileName: "REPORT.PDF", MimeType: "application/pdf", Size: 10, Head: head}, ""},
		{"octet stream", Upload{FileName: "a.pdf", MimeType: "application/octet-stream", Size: 10, Head: head}, ""},
		{"missing name", Upload{MimeType: "application/pdf", Size: 10, Head: head}, "filename"},
		{"wrong ext", Upload{FileName: "a.txt", MimeType: "application/pdf", Size: 10, Head: head}, "filename"},
		{"wrong mime", Upload{FileName: "a.pdf", MimeType: "text/plain", Size: 10, Head: head}, "mimetype"},
		{"empty", Upload{FileName: "a.pdf", MimeType: "application/pdf", Size: 0}, "size"},
		{"too big", Upload{FileName: "a.pdf", MimeType: "application/pdf", Size: 101, Head: head}, "size"},
		{"not a pdf", Upload{FileName: "a.pdf", MimeType: "application/pdf", Size: 10, Head: []byte("hello")}, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.upload, 100)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.wantErr)
		})
	}
}

func TestDecodeDescriptor(t *testing.T) {
	want := ingestion.JobDescriptor{
		FileName: "1700000000000-report.pdf",
		FilePath: "uploads/1700000000000-report.pdf",
		FileSize: 2048,
		MimeType: "application/pdf",
	}

	t.Run("object", func(t *testing.T) {
		d, err := DecodeDescriptor([]byte(`{"fileName":"1700000000000-report.pdf","filePath":"uploads/1700000000000-report.pdf","fileSize":2048,"mimeType":"application/pdf","extra":true}`))
		require.NoError(t, err)
		assert.Equal(t, want, d)
	})

	t.Run("string encoded", func(t *testing.T) {
		d, err := DecodeDescriptor([]byte(`"{\"fileName\":\"1700000000000-report.pdf\",\"filePath\":\"uploads/1700000000000-report.pdf\",\"fileSize\":2048,\"mimeType\":\"application/pdf\"}"`))
		require.NoError(t, err)
		assert.Equal(t, want, d)
	})

	for name, body := range map[string]string{
		"garbage":       `not json`,
		"empty":         ``,
		"missing path":  `{"fileName":"a.pdf","fileSize":1,"mimeType":"application/pdf"}`,
		"wrong type":    `{"fileName":"a.pdf","filePath":"p","fileSize":"big","mimeType":"application/pdf"}`,
		"zero size":     `{"fileName":"a.pdf","filePath":"p","fileSize":0,"mimeType":"application/pdf"}`,
		"bad string":    `"{"`,
		"array payload": `[1,2]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDescriptor([]byte(body))
			assert.ErrorIs(t, err, apperrors.ErrInvalidDescriptor)
		})
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := ValidateDescriptor(ingestion.JobDescriptor{})
	require.Error(t, err)
	assert.Equal(t, "fileName:fileName is required; filePath:filePath is required; fileSize:fileSize must be positive; mimeType:mimeType is required", err.Error())
}
