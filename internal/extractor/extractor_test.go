package extractor

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/internal/extractor/pdftest"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

func TestExtractPages(t *testing.T) {
	doc := pdftest.Build("Hello from page one", "Second page text")

	pages, err := NewPDF().Extract(context.Background(), bytes.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "Hello from page one")
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "Second page text")
}

func TestExtractBlankPage(t *testing.T) {
	pages, err := NewPDF().Extract(context.Background(), bytes.NewReader(pdftest.Build("")))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Text)
}

func TestExtractRejectsCorruptInput(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("this is plainly a text file"),
		"truncated": pdftest.Build("cut short")[:40],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewPDF().Extract(context.Background(), bytes.NewReader(data))
			assert.ErrorIs(t, err, apperrors.ErrExtractionFailed)
		})
	}
}
