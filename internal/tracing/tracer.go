// Package tracing wires OpenTelemetry spans around generations, provider
// attempts, upstream calls and API requests.
package tracing

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/allaspectsdev/genrelay/internal/config"
)

const instrumentationName = "github.com/allaspectsdev/genrelay"

// Tracer is the instrumentation tracer. It is a no-op until Init installs a
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type exporterFactory func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFactory{
	"stdout": func(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
	"otlp-grpc": func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	"otlp-http": func(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	},
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	factory, ok := exporters[cfg.Exporter]
	if !ok {
		names := make([]string, 0, len(exporters))
		for n := range exporters {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("tracing: unknown exporter %q (supported: %v)", cfg.Exporter, names)
	}
	return factory(ctx, cfg)
}

// Init installs a global tracer provider and W3C propagator for cfg and
// returns the provider's flush-and-stop function. A disabled config leaves
// the globals alone and returns a no-op.
func Init(ctx context.Context, cfg config.TracingConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = config.DefaultTracingServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
