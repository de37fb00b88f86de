// Package tracing exports perfee completions as OpenTelemetry spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/perfee/pkg/logging"
)

// Config holds the tracing configuration
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4318"
	Enabled      bool
	Logger       *logging.Logger
}

// Provider owns the tracer provider spans are exported through
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// InitTracer creates a provider batching spans to an OTLP/HTTP collector.
// When tracing is disabled spans are created and dropped.
func InitTracer(cfg Config) (*Provider, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	if !cfg.Enabled {
		log.Debug("tracing disabled")
		return newProvider(sdktrace.NewTracerProvider(), cfg.ServiceName), nil
	}

	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		)),
	)
	log.Info("tracing enabled", map[string]interface{}{
		"service":  cfg.ServiceName,
		"endpoint": cfg.OTLPEndpoint,
	})
	return newProvider(tp, cfg.ServiceName), nil
}

func newProvider(tp *sdktrace.TracerProvider, name string) *Provider {
	return &Provider{tp: tp, tracer: tp.Tracer(name)}
}

// Shutdown flushes pending spans and stops the provider
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Tracer returns the tracer completions are recorded with
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}
