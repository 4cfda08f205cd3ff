package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "lattice", "test").With("component", "unit")
	logger.Info("priced", "price", 16.0175)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "lattice", lines[0]["service"])
	assert.Equal(t, "test", lines[0]["module"])
	assert.Equal(t, "unit", lines[0]["component"])
	assert.Contains(t, lines[0], "timestamp")
	assert.NotContains(t, lines[0], "time")
	assert.Equal(t, "test", logger.Module)
}

func TestSetLevel(t *testing.T) {
	prev := CurrentLevel()
	t.Cleanup(func() { level.Set(prev) })

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "lattice", "test")

	SetLevel("warn")
	logger.Info("dropped")
	logger.Warn("kept")
	SetLevel("debug")
	logger.Debug("kept too")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.Equal(t, "kept too", lines[1]["msg"])
}

func TestTraceHandlerInjectsIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "lattice", "test")
	logger.InfoContext(ctx, "traced")
	logger.WithGroup("g").InfoContext(ctx, "grouped")
	logger.Info("untraced")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, span.SpanContext().TraceID().String(), lines[0]["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), lines[0]["span_id"])
	assert.NotEmpty(t, lines[1]["g"])
	assert.NotContains(t, lines[2], "trace_id")
}

func TestFanoutHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanoutHandler(jsonHandler(&a), jsonHandler(&b))
	slog.New(h).With("k", "v").Warn("both")

	assert.Contains(t, a.String(), `"k":"v"`)
	assert.Contains(t, b.String(), `"msg":"both"`)
}

func TestLogDuration(t *testing.T) {
	var buf bytes.Buffer
	done := NewWithWriter(&buf, "lattice", "test").LogDuration(context.Background(), "convergence", "steps", 4)
	done()

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "convergence finished", lines[0]["msg"])
	assert.EqualValues(t, 4, lines[0]["steps"])
	assert.Contains(t, lines[0], "duration")
}
