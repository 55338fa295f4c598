package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp, err := InitTracerProvider(context.Background(), "apilog-test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := Tracer().Start(context.Background(), "submit")
	carrier := Inject(ctx)
	span.End()
	require.Contains(t, carrier, "traceparent")

	restored := trace.SpanContextFromContext(Extract(context.Background(), carrier))
	require.True(t, restored.IsRemote())
	require.Equal(t, span.SpanContext().TraceID(), restored.TraceID())
	require.Equal(t, span.SpanContext().SpanID(), restored.SpanID())

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "submit", ended[0].Name())
}

func TestInjectWithoutSpan(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), "apilog-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	require.Nil(t, Inject(context.Background()))
	ctx := context.Background()
	require.Equal(t, ctx, Extract(ctx, nil))
}
