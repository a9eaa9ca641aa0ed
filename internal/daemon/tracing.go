package daemon

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"swarmorch/internal/buildinfo"
)

const tracerName = "swarmorch"

type tracing struct {
	provider *sdktrace.TracerProvider
}

// setupTracing installs a global tracer provider. Spans are exported over
// OTLP/HTTP when endpoint is set and dropped otherwise.
func setupTracing(ctx context.Context, endpoint string) (*tracing, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "swarmorchd"),
			attribute.String("service.version", buildinfo.String()),
		)),
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, exporterOptions(endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &tracing{provider: provider}, nil
}

func exporterOptions(endpoint string) []otlptracehttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	return []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure()}
}

func (t *tracing) Tracer() trace.Tracer { return t.provider.Tracer(tracerName) }

func (t *tracing) Shutdown(ctx context.Context) error { return t.provider.Shutdown(ctx) }
