package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/perfee/pkg/entry"
)

// Span attribute keys
const (
	AttrID    = attribute.Key("perfee.id")
	AttrGroup = attribute.Key("perfee.group")
	AttrLevel = attribute.Key("perfee.level")
)

// SpanObserver records every resolved perfee entry as a span carrying the
// entry's own start and end times. With the on-demand strategy spans are
// therefore emitted at snapshot time, long after they ended.
type SpanObserver struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

// NewSpanObserver creates an observer; attrs are added to every span
func NewSpanObserver(tracer trace.Tracer, attrs ...attribute.KeyValue) *SpanObserver {
	return &SpanObserver{tracer: tracer, attrs: attrs}
}

// ObserveCompletion implements config.Observer
func (o *SpanObserver) ObserveCompletion(c entry.Completed) {
	attrs := make([]attribute.KeyValue, 0, len(o.attrs)+3)
	attrs = append(attrs, o.attrs...)
	attrs = append(attrs,
		AttrID.Int64(int64(c.ID)),
		AttrGroup.Bool(c.IsGroup),
		AttrLevel.Int(c.Level),
	)

	_, span := o.tracer.Start(context.Background(), c.Label,
		trace.WithTimestamp(c.Start),
		trace.WithAttributes(attrs...),
	)
	span.End(trace.WithTimestamp(c.End()))
}
