package logcontext_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"card-payments/internal/logcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logcontext.Handler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := logcontext.AppendCtx(context.Background(), slog.String("transactionReference", "ref-1"))
	ctx = logcontext.AppendCtx(ctx, slog.String("merchantId", "m-1"))

	logger.InfoContext(ctx, "charge approved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ref-1", line["transactionReference"])
	assert.Equal(t, "m-1", line["merchantId"])
}

func TestAppendCtx_DoesNotLeakIntoParent(t *testing.T) {
	parent := logcontext.AppendCtx(context.Background(), slog.String("a", "1"))
	_ = logcontext.AppendCtx(parent, slog.String("b", "2"))

	assert.Len(t, logcontext.Attrs(parent), 1)
}
