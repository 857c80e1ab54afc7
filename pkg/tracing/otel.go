package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracer
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config holds tracing configuration
type Config struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version"`
	JaegerEndpoint string `yaml:"jaeger_endpoint" validate:"omitempty,url"`
	Environment    string `yaml:"environment"`
}

// NewTracer creates a new OpenTelemetry tracer. Spans are exported to Jaeger
// only when an endpoint is configured; extra provider options such as span
// processors are appended.
func NewTracer(config Config, opts ...sdktrace.TracerProviderOption) (*Tracer, error) {
	// Create resource
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if config.JaegerEndpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	providerOpts = append(providerOpts, opts...)

	tp := sdktrace.NewTracerProvider(providerOpts...)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer:   tp.Tracer(config.ServiceName),
		provider: tp,
	}, nil
}

// NewNop returns a tracer whose spans are never recorded
func NewNop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("autotune")}
}

// StartSpan starts a new span
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartRunSpan starts the root span of a tuning run
func (t *Tracer) StartRunSpan(ctx context.Context, runID, workload, target string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("tune.run_id", runID),
		attribute.String("tune.workload", workload),
		attribute.String("tune.target", target),
	}

	return t.tracer.Start(ctx, "tune.run", trace.WithAttributes(attrs...))
}

// StartGenerationSpan starts a span for one evolutionary generation
func (t *Tracer) StartGenerationSpan(ctx context.Context, generation, population int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.Int("tune.generation", generation),
		attribute.Int("tune.population", population),
	}

	return t.tracer.Start(ctx, "tune.generation", trace.WithAttributes(attrs...))
}

// RecordSpanError records an error in a span
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanSuccess records success in a span
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// RecordSpanDuration records duration in a span
func RecordSpanDuration(span trace.Span, duration time.Duration) {
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Nanoseconds())/1e6))
}

// RecordSpanCost records the best predicted cost in a span
func RecordSpanCost(span trace.Span, cost float64) {
	span.SetAttributes(attribute.Float64("tune.best_cost", cost))
}

// Shutdown flushes and stops the tracer provider
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
