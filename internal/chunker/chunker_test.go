package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// text builds n distinct-ish characters so overlap checks are meaningful.
func text(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name             string
		maxSize, overlap int
	}{
		{"overlap larger than size", 100, 150},
		{"overlap equal to size", 100, 100},
		{"zero size", 0, 10},
		{"negative size", -5, 1},
		{"zero overlap", 100, 0},
		{"negative overlap", 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.maxSize, tt.overlap)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)
		})
	}
}

func TestSplit1200(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)
	src := text(1200)

	chunks := c.Split(src)
	require.Len(t, chunks, 3)

	lengths := []int{len(chunks[0].Text), len(chunks[1].Text), len(chunks[2].Text)}
	assert.Equal(t, []int{500, 500, 300}, lengths)
	assert.Equal(t, []int{0, 450, 900}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start})

	assert.Equal(t, chunks[0].Text[450:500], chunks[1].Text[0:50])
	assert.Equal(t, chunks[1].Text[450:500], chunks[2].Text[0:50])
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
	}
}

func TestSplitEmpty(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)
	assert.Empty(t, c.Split(""))
}

func TestSplitShorterThanWindow(t *testing.T) {
	c, err := New(500, 50)
	require.NoError(t, err)
	chunks := c.Split("hello")
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Text: "hello", Position: 0, Start: 0, End: 5}, chunks[0])
}

func TestSplitExactWindowHasNoOverlapOnlyTail(t *testing.T) {
	c, err := New(10, 3)
	require.NoError(t, err)
	chunks := c.Split(text(10))
	assert.Len(t, chunks, 1)
}

func TestSplitCountsCodePoints(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)
	chunks := c.Split("héllo wörld")
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 4)
	}
	assert.Equal(t, "héll", chunks[0].Text)
	assert.Equal(t, "lo w", chunks[1].Text)
}

// Every character appears once, except overlap spans which appear in
// exactly two consecutive chunks; stitching chunks minus overlap rebuilds
// the text.
func TestSplitCoverage(t *testing.T) {
	sizes := []struct{ maxSize, overlap, n int }{
		{500, 50, 1200},
		{7, 3, 100},
		{10, 1, 10},
		{10, 9, 37},
		{3, 2, 2},
	}
	for _, s := range sizes {
		c, err := New(s.maxSize, s.overlap)
		require.NoError(t, err)
		src := []rune(text(s.n))
		chunks := c.Split(string(src))

		var rebuilt []rune
		for i, ch := range chunks {
			r := []rune(ch.Text)
			assert.LessOrEqual(t, len(r), s.maxSize)
			if i == 0 {
				rebuilt = append(rebuilt, r...)
				continue
			}
			prev := chunks[i-1]
			assert.Equal(t, prev.End-s.overlap, ch.Start)
			assert.Equal(t, string(src[ch.Start:prev.End]), string(r[:s.overlap]))
			rebuilt = append(rebuilt, r[s.overlap:]...)
		}
		assert.Equal(t, string(src), string(rebuilt), "size=%d overlap=%d n=%d", s.maxSize, s.overlap, s.n)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(64, 8)
	require.NoError(t, err)
	src := text(1000)
	assert.Equal(t, c.Split(src), c.Split(src))
}
