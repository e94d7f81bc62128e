// Package telemetry wires the OpenTelemetry tracing pipeline. Spans can
// be mirrored to stdout for diagnostics and shipped to an OTLP
// collector, e.g. one forwarding to Azure Monitor.
package telemetry

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls the tracing pipeline.
type Config struct {
	// ServiceName becomes the service.name resource attribute; Azure
	// Monitor shows it as the cloud role name.
	ServiceName string
	// InstanceName becomes service.instance.id, the cloud role instance.
	InstanceName string
	// Endpoint is the OTLP HTTP collector as host:port. Empty disables
	// the collector exporter.
	Endpoint string
	// Insecure sends OTLP over plain HTTP.
	Insecure bool
	// Console mirrors spans to stdout.
	Console bool
	// SampleRatio is the head sampling rate; values outside (0, 1] mean
	// sample everything.
	SampleRatio float64
}

// Setup builds a tracer provider, installs it globally and returns it.
// Call Shutdown on it before exit to flush buffered spans.
func Setup(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	var exporters []sdktrace.SpanExporter

	if cfg.Console {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Wrap(err, "stdout trace exporter")
		}
		exporters = append(exporters, exp)
	}

	if cfg.Endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "otlp trace exporter")
		}
		exporters = append(exporters, exp)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.InstanceName != "" {
		attrs = append(attrs, attribute.String("service.instance.id", cfg.InstanceName))
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	for _, exp := range exporters {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}
