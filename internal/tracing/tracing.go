// Package tracing sets up OpenTelemetry tracing with an OTLP/HTTP exporter.
// When disabled every span comes from the global no-op provider.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/offersplus/backend"

// Options configure the exporter.
type Options struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Endpoint is host:port without a scheme.
	Endpoint   string
	SampleRate float64
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

// Init installs a global tracer provider. The returned shutdown is never nil.
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !opts.Enabled {
		return noop, nil
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4318"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("create trace exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRate))),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer returns the service tracer from the current global provider.
func Tracer() trace.Tracer { return otel.Tracer(instrumentation) }

// StartSpan starts a span with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
