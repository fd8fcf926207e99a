package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "ingest", "doc-1")
	childCtx, child := StartChildSpan(ctx, "Extracting")
	child.SetAttr("pages", 3)
	child.End()
	root.End()

	assert.Same(t, child, SpanFromContext(childCtx))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "doc-1", root.Children[0].TraceID)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "span=Extracting")
	assert.Contains(t, out, "pages=3")
}

func TestChildWithoutParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Nil(t, SpanFromContext(context.Background()))
}
