// Package chunker splits extracted document text into overlapping,
// fixed-size character windows.
//
// Sizes are counted in Unicode code points. Each window after the first
// starts MaxSize-Overlap characters after the previous one, so the last
// Overlap characters of a chunk are the first Overlap characters of the
// next. Splitting stops at the first window that reaches the end of the
// text; the last chunk may be shorter than MaxSize.
package chunker

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// Chunk is one window of the source text. Start and End are code-point
// offsets into the text, End exclusive.
type Chunk struct {
	Text     string
	Position int
	Start    int
	End      int
}

// Chunker holds a validated window configuration. It is immutable and safe
// for concurrent use.
type Chunker struct {
	maxSize int
	overlap int
}

// New validates the window configuration.
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", apperrors.ErrInvalidConfiguration, maxSize)
	}
	if overlap <= 0 {
		return nil, fmt.Errorf("%w: chunk overlap must be positive, got %d", apperrors.ErrInvalidConfiguration, overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than size %d", apperrors.ErrInvalidConfiguration, overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Split returns the chunks of text in order. Empty text yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.maxSize - c.overlap
	chunks := make([]Chunk, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+c.maxSize, len(runes))
		chunks = append(chunks, Chunk{
			Text:     string(runes[start:end]),
			Position: len(chunks),
			Start:    start,
			End:      end,
		})
		if end == len(runes) {
			return chunks
		}
	}
}
