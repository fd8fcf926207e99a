// Package extractor turns an uploaded PDF into page-segmented plain text.
// pdfcpu validates the document structure in relaxed mode and
// ledongthuc/pdf reads each page's text.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// Page is the extracted text of one page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extractor reads page-segmented text from a document.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) ([]Page, error)
}

// PDF extracts text from PDF documents. Every failure, including a
// malformed file that makes the text reader panic, wraps
// apperrors.ErrExtractionFailed.
type PDF struct {
	conf   *model.Configuration
	logger *slog.Logger
}

var disableConfigDir sync.Once

func NewPDF() *PDF {
	// Keep pdfcpu from creating a config directory under $HOME.
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDF{
		conf:   conf,
		logger: slog.Default().With("component", "pdf-extractor"),
	}
}

func (p *PDF) Extract(ctx context.Context, r io.Reader) ([]Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading document: %w", apperrors.ErrExtractionFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", apperrors.ErrExtractionFailed)
	}

	if err := api.Validate(bytes.NewReader(data), p.conf); err != nil {
		return nil, fmt.Errorf("%w: validating pdf: %w", apperrors.ErrExtractionFailed, err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(data), p.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: counting pages: %w", apperrors.ErrExtractionFailed, err)
	}

	pages, err := p.readPages(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(pages) != pageCount {
		p.logger.Warn("page count disagreement", "validated", pageCount, "read", len(pages))
	}
	return pages, nil
}

func (p *PDF) readPages(ctx context.Context, data []byte) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: reading pdf text: %v", apperrors.ErrExtractionFailed, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %w", apperrors.ErrExtractionFailed, err)
	}

	n := reader.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrExtractionFailed, err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", apperrors.ErrExtractionFailed, i, err)
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimRight(text, " \t\r\n")})
	}
	return pages, nil
}
