// Package observability wires OpenTelemetry tracing to a local OTLP
// collector over HTTP.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector endpoint, host:port.
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// ServiceName appears on every exported span.
	ServiceName string
}

// DefaultEndpoint is a collector on the local host.
const DefaultEndpoint = "localhost:4318"

// Noop returns a tracer that records nothing. Used when tracing is
// disabled and in tests.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer("supportmind")
}

// Setup creates a tracer provider exporting to the configured collector and
// installs it as the global provider. It returns the application tracer and
// a shutdown function that flushes pending spans.
//
// A collector that cannot be reached at setup time disables tracing with a
// warning instead of failing startup.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (trace.Tracer, func(context.Context) error, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "supportmind"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create otlp exporter, tracing disabled", "error", err)
		return Noop(), func(context.Context) error { return nil }, nil
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs,
			resource.WithAttributes(semconv.DeploymentEnvironment(cfg.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", endpoint, "service", serviceName, "environment", cfg.Environment)
	return tp.Tracer("supportmind"), tp.Shutdown, nil
}
