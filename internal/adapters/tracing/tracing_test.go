package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceName: "trading-agent", ServiceVersion: "test", Writer: &buf, Synchronous: true})
	require.NoError(t, err)

	_, span := otel.Tracer("tradingAgent/app").Start(ctx, "scheduler.cycle")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "scheduler.cycle")
	assert.Contains(t, buf.String(), "trading-agent")
}
