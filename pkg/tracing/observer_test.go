package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/perfee/pkg/entry"
)

func TestSpanObserver(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	provider := newProvider(tp, "perfee-test")
	defer provider.Shutdown(context.Background())

	obs := NewSpanObserver(provider.Tracer(), attribute.String("engine", "e1"))

	start := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	obs.ObserveCompletion(entry.Completed{
		ID: 12, Label: "query", IsGroup: true, Level: 3,
		Start: start, Elapsed: 250 * time.Millisecond,
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "query", span.Name())
	assert.True(t, span.StartTime().Equal(start))
	assert.True(t, span.EndTime().Equal(start.Add(250*time.Millisecond)))

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "e1", attrs["engine"].AsString())
	assert.Equal(t, int64(12), attrs[AttrID].AsInt64())
	assert.True(t, attrs[AttrGroup].AsBool())
	assert.Equal(t, int64(3), attrs[AttrLevel].AsInt64())
}

func TestInitTracerDisabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "perfee", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())

	_, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitTracerEnabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "perfee", OTLPEndpoint: "127.0.0.1:1", Enabled: true})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "exported")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// nothing listens on the endpoint; only the shutdown path is exercised
	_ = p.Shutdown(ctx)
}
