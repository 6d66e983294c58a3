// Package tracing exports one client span per load request over OTLP. Every
// span carries the run it belongs to as resource attributes, so traces from
// concurrent runs against the same target can be told apart.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/crankbench/internal/config"
)

const (
	defaultServiceName  = "crankbench"
	instrumentationName = "github.com/torosent/crankbench"
)

// Run describes the load shape behind the spans of one run.
type Run struct {
	ID        string
	Workers   int
	Mode      string // "count" or "duration"
	Items     int    // distinct work items replayed by every worker
	LagPolicy string
}

func (r Run) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(keyWorkers, r.Workers),
		attribute.String(keyPlanMode, r.Mode),
		attribute.Int(keyPlanItems, r.Items),
	}
	if r.ID != "" {
		attrs = append(attrs, attribute.String(keyRunID, r.ID))
	}
	if r.LagPolicy != "" {
		attrs = append(attrs, attribute.String(keyLagPolicy, r.LagPolicy))
	}
	return attrs
}

// Provider hands out request spans. A nil or disabled Provider produces
// non-recording spans and never touches request headers.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
}

// Option adjusts Init.
type Option func(*initOptions)

type initOptions struct {
	exporter sdktrace.SpanExporter
}

// WithExporter sends spans synchronously to exp instead of an OTLP collector.
// Tracing is enabled even when no endpoint is configured.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *initOptions) { o.exporter = exp }
}

// Init builds the provider for one run. Without an endpoint (flag or
// OTEL_EXPORTER_OTLP_ENDPOINT) and without WithExporter it returns a disabled
// provider.
func Init(ctx context.Context, cfg config.TracingConfig, run Run, opts ...Option) (*Provider, error) {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.Enabled() && o.exporter == nil {
		return &Provider{}, nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1.0 {
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}

	attrs := append([]attribute.KeyValue{semconv.ServiceName(serviceName(cfg))}, run.attributes()...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	var processor sdktrace.TracerProviderOption
	if o.exporter != nil {
		processor = sdktrace.WithSyncer(o.exporter)
	} else {
		exporter, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("tracing exporter: %w", err)
		}
		processor = sdktrace.WithBatcher(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer(instrumentationName), propagate: cfg.ShouldPropagate()}, nil
}

func serviceName(cfg config.TracingConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
		return env
	}
	return defaultServiceName
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the run's tracer, or a no-op tracer when tracing is off.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// ShouldPropagate reports whether W3C trace headers go out with requests.
func (p *Provider) ShouldPropagate() bool {
	return p != nil && p.tracer != nil && p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// newExporter leaves the endpoint to the exporter's own environment lookup
// when none is configured.
func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)

	switch protocol := strings.ToLower(cfg.Protocol); protocol {
	case "", "grpc":
		var opts []otlptracegrpc.Option
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		var opts []otlptracehttp.Option
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}
