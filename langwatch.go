// Package langwatch is the LangWatch observability SDK for Go. It lets
// application code emit hierarchical trace/span telemetry — LLM calls,
// nested operations, evaluations — into an OpenTelemetry pipeline that
// forwards it to the LangWatch collector.
//
//	client, err := langwatch.Setup(ctx, langwatch.WithAPIKey(key))
//	if err != nil { ... }
//	defer client.Shutdown(ctx)
//
//	ctx, trace := client.StartTrace(ctx,
//	    langwatch.WithTraceName("handle-message"),
//	    langwatch.WithMetadata(map[string]any{"user_id": "u1"}),
//	)
//	defer trace.End()
//
//	ctx, span := trace.StartSpan(ctx,
//	    langwatch.WithSpanType(langwatch.SpanTypeLLM),
//	    langwatch.WithSpanName("generate"),
//	)
//	defer span.End()
//	span.SetModel("gpt-4")
//	span.RecordInput(messages)
//	span.RecordOutput(completion)
//
// The current trace and span travel in the context.Context returned by
// StartTrace/StartSpan; goroutines without context plumbing are served
// by a best-effort process-wide fallback (see CurrentTrace/CurrentSpan).
// Apart from Setup, no telemetry failure ever surfaces as an error or
// panic in application code paths — problems degrade to logged warnings.
package langwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/langwatch/langwatch-go/internal/config"
	"github.com/langwatch/langwatch-go/internal/telemetry"
)

// DefaultEndpoint is the hosted LangWatch backend.
const DefaultEndpoint = config.DefaultEndpoint

// Client is the configured SDK entry point: it owns (or borrows) the
// tracer provider, the REST collaborator, and the process-wide export
// toggle. All methods are safe for concurrent use.
type Client struct {
	apiKey          string
	endpoint        string
	logger          *slog.Logger
	maxStringLength int
	captureInput    bool
	captureOutput   bool

	provider trace.TracerProvider
	tracer   trace.Tracer

	// sdkProvider is the SDK-typed provider when one is available for
	// flushing; sampler and shutdown are only set for the pipeline this
	// client built itself.
	sdkProvider *sdktrace.TracerProvider
	sampler     *telemetry.SwitchableSampler
	shutdown    telemetry.Shutdown

	rest       *restClient
	shareGroup singleflight.Group
	metrics    *selfMetrics
}

var defaultClient atomic.Pointer[Client]

// DefaultClient returns the client created by the most recent Setup, or
// nil when Setup has not run.
func DefaultClient() *Client {
	return defaultClient.Load()
}

// SetDefault replaces the process-wide default client used by the
// package-level StartSpan and WithSpan helpers.
func SetDefault(c *Client) {
	defaultClient.Store(c)
}

// Setup initializes the SDK. It is the only place the SDK fails hard:
// a missing API key or an unusable tracer provider is a configuration
// error, and surfacing it here beats losing telemetry silently later.
//
// Provider policy: an explicitly supplied provider is used as-is; else,
// if the host process already installed a global SDK tracer provider,
// the client defers to it rather than overriding the pipeline; else the
// client builds its own OTLP pipeline against the LangWatch collector
// and installs it globally.
func Setup(ctx context.Context, opts ...Option) (*Client, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("langwatch: load config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(cfg.LogLevel),
		}))
	}
	if o.apiKey != "" {
		cfg.APIKey = o.apiKey
	}
	if o.endpoint != "" {
		cfg.Endpoint = o.endpoint
	}
	if o.serviceName != "" {
		cfg.ServiceName = o.serviceName
	}
	if o.maxStringLength > 0 {
		cfg.MaxStringLength = o.maxStringLength
	}
	if o.batchTimeout > 0 {
		cfg.BatchTimeout = o.batchTimeout
	}
	if len(o.excludedSpanNames) > 0 {
		cfg.ExcludedSpanNames = append(cfg.ExcludedSpanNames, o.excludedSpanNames...)
	}
	if o.disableInputCapture {
		cfg.CaptureInput = false
	}
	if o.disableOutputCapture {
		cfg.CaptureOutput = false
	}
	if o.enableMetrics {
		cfg.EnableMetrics = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("langwatch: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:          cfg.APIKey,
		endpoint:        cfg.Endpoint,
		logger:          logger,
		maxStringLength: cfg.MaxStringLength,
		captureInput:    cfg.CaptureInput,
		captureOutput:   cfg.CaptureOutput,
		rest:            newRESTClient(cfg.Endpoint, cfg.APIKey, logger, o.httpClient),
	}

	switch {
	case o.tracerProviderSet:
		if o.tracerProvider == nil {
			return nil, ErrInvalidTracerProvider
		}
		c.provider = o.tracerProvider
		logger.Debug("langwatch: using explicitly supplied tracer provider")
	default:
		if existing, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
			// The host already configured a pipeline; deferring to it
			// keeps the SDK from hijacking someone else's exporter.
			c.provider = existing
			c.sdkProvider = existing
			logger.Info("langwatch: global tracer provider already installed, deferring to it")
			break
		}
		tp, sampler, shutdown, err := telemetry.Setup(ctx, telemetry.Options{
			Endpoint:          cfg.Endpoint,
			APIKey:            cfg.APIKey,
			ServiceName:       cfg.ServiceName,
			Version:           Version,
			BatchTimeout:      cfg.BatchTimeout,
			ExcludedSpanNames: cfg.ExcludedSpanNames,
			EnableMetrics:     cfg.EnableMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("langwatch: %w", err)
		}
		c.provider = tp
		c.sdkProvider = tp
		c.sampler = sampler
		c.shutdown = shutdown
		otel.SetTracerProvider(tp)
	}

	c.tracer = c.provider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(Version))
	c.metrics = newSelfMetrics(logger)

	defaultClient.Store(c)
	return c, nil
}

// DisableSending toggles span export for the whole process by switching
// the shared sampler. This is a process-wide toggle, not a per-trace
// filter; it is a no-op (with a warning) when the tracer provider is not
// owned by this client.
func (c *Client) DisableSending(disabled bool) {
	if c.sampler == nil {
		c.logger.Warn("langwatch: DisableSending has no effect, tracer provider is host-owned")
		return
	}
	c.sampler.SetDisabled(disabled)
}

// SendingDisabled reports whether span export is currently disabled.
func (c *Client) SendingDisabled() bool {
	return c.sampler != nil && c.sampler.Disabled()
}

// Flush forces export of all finished spans still held by the batch
// processor. A no-op when the provider is host-owned.
func (c *Client) Flush(ctx context.Context) error {
	if c.sdkProvider == nil {
		return nil
	}
	return c.sdkProvider.ForceFlush(ctx)
}

// Shutdown drains and tears down the pipeline this client built. A
// no-op when the provider was supplied by the host.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.shutdown == nil {
		return nil
	}
	return c.shutdown(ctx)
}

// logLevel parses a configured log level (LANGWATCH_LOG_LEVEL),
// defaulting to info on unknown values.
func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Endpoint returns the configured backend base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Logger returns the client's structured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// selfMetrics counts span lifecycle events through the global meter.
// The counters are no-ops unless a meter provider is installed (see
// LANGWATCH_ENABLE_METRICS).
type selfMetrics struct {
	started metric.Int64Counter
	ended   metric.Int64Counter
}

func newSelfMetrics(logger *slog.Logger) *selfMetrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)
	m := &selfMetrics{}
	var err error
	m.started, err = meter.Int64Counter("langwatch.sdk.spans.started",
		metric.WithDescription("Spans started by the SDK"))
	if err != nil {
		logger.Warn("langwatch: create spans.started counter", "error", err)
	}
	m.ended, err = meter.Int64Counter("langwatch.sdk.spans.ended",
		metric.WithDescription("Spans ended by the SDK"))
	if err != nil {
		logger.Warn("langwatch: create spans.ended counter", "error", err)
	}
	return m
}

func (m *selfMetrics) spanStarted(ctx context.Context) {
	if m == nil || m.started == nil {
		return
	}
	m.started.Add(ctx, 1)
}

func (m *selfMetrics) spanEnded(ctx context.Context) {
	if m == nil || m.ended == nil {
		return
	}
	m.ended.Add(ctx, 1)
}
