// Package tracing configures the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"net/url"
	"strings"

	"insights-gateway/internal/config"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// TracerName is the instrumentation scope of the upload pipeline.
const TracerName = "insights-gateway/worker"

const defaultEndpoint = "localhost:4317"

// Tracer returns the pipeline tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Setup installs a global tracer provider exporting over OTLP/gRPC and
// returns its shutdown function. When tracing is disabled, or the exporter
// cannot be built, the no-op provider stays in place and Setup still
// succeeds.
func Setup(ctx context.Context, cfg config.Config, log zerolog.Logger) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	noop := func(context.Context) error { return nil }

	if !cfg.TracingEnabled {
		return noop, nil
	}

	endpoint := sanitizeEndpoint(cfg.OTLPEndpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("otel exporter init failed; tracing disabled")
		return noop, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("otel resource init incomplete")
	}
	if res == nil {
		res = resource.Default()
	}

	ratio := cfg.TraceSampleRate
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("endpoint", endpoint).Float64("sample_ratio", ratio).Msg("tracing enabled")
	return tp.Shutdown, nil
}

// newResource describes this process. Attributes stay schemaless: pinning a
// semconv schema here conflicts with the SDK's telemetry resource.
// On a partial error the returned resource is still usable.
func newResource(ctx context.Context, cfg config.Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.InstanceID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", cfg.InstanceID))
	}
	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithTelemetrySDK(),
	)
}

// sanitizeEndpoint accepts either host:port or a URL; the gRPC exporter
// wants host:port.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(raw, "/")
}
