// Package telemetry builds the OpenTelemetry pipeline the SDK exports
// through: an OTLP/HTTP trace exporter aimed at the LangWatch collector,
// a batch processor with optional span-name exclusion rules, a sampler
// that can be switched off process-wide, and an optional metrics
// exporter for SDK self-instrumentation.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	tracesPath  = "/api/otel/v1/traces"
	metricsPath = "/api/otel/v1/metrics"
)

// Shutdown combines multiple shutdown functions.
type Shutdown func(ctx context.Context) error

// Options configures Setup.
type Options struct {
	// Endpoint is the base URL of the LangWatch backend,
	// e.g. "https://app.langwatch.ai".
	Endpoint string

	// APIKey authenticates the exporter with the collector.
	APIKey string

	ServiceName string
	Version     string

	// BatchTimeout bounds how long finished spans sit in the batch
	// processor before export. Zero means the SDK default.
	BatchTimeout time.Duration

	// ExcludedSpanNames lists span names (exact, or prefix with a
	// trailing "*") that are dropped before export.
	ExcludedSpanNames []string

	// EnableMetrics turns on the SDK self-instrumentation meter
	// provider, exporting to the same backend.
	EnableMetrics bool
}

// Setup builds a tracer provider exporting to the LangWatch collector
// and returns it together with the switchable sampler controlling it and
// a shutdown function that must be called during graceful shutdown.
// Setup does not install the provider globally; the caller decides.
func Setup(ctx context.Context, opts Options) (*sdktrace.TracerProvider, *SwitchableSampler, Shutdown, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil || u.Host == "" {
		return nil, nil, nil, fmt.Errorf("telemetry: invalid endpoint %q: %w", opts.Endpoint, err)
	}
	insecure := u.Scheme == "http"

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
			semconv.TelemetrySDKLanguageGo,
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + opts.APIKey}

	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithURLPath(tracesPath),
		otlptracehttp.WithHeaders(headers),
	}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if opts.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(opts.BatchTimeout))
	}
	var processor sdktrace.SpanProcessor = sdktrace.NewBatchSpanProcessor(traceExp, batchOpts...)
	if len(opts.ExcludedSpanNames) > 0 {
		processor = NewFilterProcessor(processor, opts.ExcludedSpanNames)
	}

	sampler := NewSwitchableSampler(sdktrace.ParentBased(sdktrace.AlwaysSample()))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
	)

	shutdowns := []Shutdown{tp.Shutdown}

	if opts.EnableMetrics {
		metricOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(u.Host),
			otlpmetrichttp.WithURLPath(metricsPath),
			otlpmetrichttp.WithHeaders(headers),
		}
		if insecure {
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, nil, nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(metricExp,
					sdkmetric.WithInterval(15*time.Second),
				),
			),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	shutdown := func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return tp, sampler, shutdown, nil
}
