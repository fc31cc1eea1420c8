package langwatch

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures Setup.
type Option func(*resolvedOptions)

// resolvedOptions holds all setup overrides after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	apiKey               string
	endpoint             string
	serviceName          string
	logger               *slog.Logger
	maxStringLength      int
	batchTimeout         time.Duration
	excludedSpanNames    []string
	disableInputCapture  bool
	disableOutputCapture bool
	enableMetrics        bool
	httpClient           *http.Client
	tracerProvider       trace.TracerProvider
	tracerProviderSet    bool
}

// WithAPIKey overrides the API key from config (LANGWATCH_API_KEY).
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.apiKey = key }
}

// WithEndpoint overrides the backend base URL (LANGWATCH_ENDPOINT).
func WithEndpoint(endpoint string) Option {
	return func(o *resolvedOptions) { o.endpoint = endpoint }
}

// WithServiceName overrides the service name reported in resource
// attributes (LANGWATCH_SERVICE_NAME).
func WithServiceName(name string) Option {
	return func(o *resolvedOptions) { o.serviceName = name }
}

// WithLogger sets the structured logger for the SDK. If not set, a
// stderr text handler leveled by LANGWATCH_LOG_LEVEL is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithMaxStringLength overrides the captured-string cap
// (LANGWATCH_MAX_STRING_LENGTH, default 5000).
func WithMaxStringLength(n int) Option {
	return func(o *resolvedOptions) { o.maxStringLength = n }
}

// WithBatchTimeout bounds export batching latency
// (LANGWATCH_BATCH_TIMEOUT).
func WithBatchTimeout(d time.Duration) Option {
	return func(o *resolvedOptions) { o.batchTimeout = d }
}

// WithExcludedSpanNames appends exporter exclusion rules: spans whose
// names match (exact, or prefix with a trailing "*") are dropped before
// export (LANGWATCH_EXCLUDED_SPAN_NAMES).
func WithExcludedSpanNames(names ...string) Option {
	return func(o *resolvedOptions) {
		o.excludedSpanNames = append(o.excludedSpanNames, names...)
	}
}

// WithoutInputCapture disables input capture process-wide. Individual
// spans can re-enable it with WithCaptureInput(true).
func WithoutInputCapture() Option {
	return func(o *resolvedOptions) { o.disableInputCapture = true }
}

// WithoutOutputCapture disables output capture process-wide.
func WithoutOutputCapture() Option {
	return func(o *resolvedOptions) { o.disableOutputCapture = true }
}

// WithSelfMetrics exports SDK self-instrumentation metrics (span
// lifecycle counters) alongside traces (LANGWATCH_ENABLE_METRICS).
func WithSelfMetrics() Option {
	return func(o *resolvedOptions) { o.enableMetrics = true }
}

// WithHTTPClient replaces the retrying HTTP client used for REST calls
// (share/unshare, hosted evaluations).
func WithHTTPClient(client *http.Client) Option {
	return func(o *resolvedOptions) { o.httpClient = client }
}

// WithTracerProvider makes the client emit through the given provider
// instead of detecting the global one or building its own. The caller
// keeps ownership: flushing, sampling, and shutdown stay on their side.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *resolvedOptions) {
		o.tracerProvider = tp
		o.tracerProviderSet = true
	}
}
