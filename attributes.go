package langwatch

// Attribute keys for LangWatch span data. These are the semantic
// conventions the backend collector understands; everything else on a
// span is passed through untouched.
const (
	// Span-scoped attributes.
	AttrSpanType   = "langwatch.span.type"
	AttrInput      = "langwatch.input"
	AttrOutput     = "langwatch.output"
	AttrTimestamps = "langwatch.timestamps"
	AttrContexts   = "langwatch.contexts"
	AttrParams     = "langwatch.params"
	AttrMetrics    = "langwatch.metrics"
	AttrError      = "langwatch.error"
	AttrModel      = "gen_ai.request.model"
	AttrStreaming  = "langwatch.streaming"

	// Trace-scoped attributes, attached to the root span.
	AttrMetadata = "langwatch.metadata"

	// Evaluation attributes, attached to evaluation child spans.
	AttrEvaluationID   = "langwatch.evaluation.id"
	AttrEvaluationName = "langwatch.evaluation.name"

	// SDK identity attributes.
	AttrSDKName     = "langwatch.sdk.name"
	AttrSDKLanguage = "langwatch.sdk.language"
	AttrSDKVersion  = "langwatch.sdk.version"
)

// Instrumentation scope reported to the tracer provider.
const (
	instrumentationName = "github.com/langwatch/langwatch-go"
	sdkLanguage         = "go"

	// Version is the SDK version reported in resource attributes.
	Version = "0.4.0"
)
