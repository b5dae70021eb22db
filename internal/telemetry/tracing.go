package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerConfig configures tracing for one Folder. Grounded on
// ferg-cod3s-conexus's internal/observability.TracerConfig, trimmed to the
// fields this package uses: no OTLP exporter is wired (SPEC_FULL's domain
// stack lists only the otel API/SDK, not an exporter), so spans are created
// and sampled but exported nowhere until a caller plugs a
// sdktrace.SpanExporter into NewTracerProvider's WithBatcher option.
type TracerConfig struct {
	ServiceName  string
	SamplingRate float64
	Enabled      bool
}

// DefaultTracerConfig disables tracing; enabling it costs a span alloc per
// Scan/Index/Search call, so opt-in keeps the CLI's default path allocation
// free.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{ServiceName: "folderindexctl", SamplingRate: 1.0, Enabled: false}
}

// Tracer wraps the span-creation surface a Folder needs.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer. When cfg.Enabled is false it still returns a
// working Tracer backed by otel's global no-op provider, so callers never
// need a nil check.
func NewTracer(cfg TracerConfig) *Tracer {
	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	provider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(provider)
	return &Tracer{tracer: provider.Tracer(cfg.ServiceName)}
}

// Start begins a span named name as a child of ctx's span, if any.
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}
