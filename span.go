package langwatch

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span is one observed unit of work. It wraps one OpenTelemetry span and
// layers LangWatch's structured fields (input, output, model, params,
// metrics, RAG contexts, errors, timestamps) on top as serialized span
// attributes.
//
// A Span is created by StartSpan (package-level or on a Trace), mutated
// through its Record*/Set*/Merge* methods, and ended exactly once via
// End. Mutation after End degrades to a logged warning and a no-op —
// telemetry problems must never crash the host application. Confine a
// Span to one logical flow of control at a time; only the End path is
// guarded against concurrent callers.
type Span struct {
	client        *Client
	trace         *Trace
	otel          trace.Span
	logger        *slog.Logger
	maxStringLen  int
	captureInput  bool
	captureOutput bool

	// foreign marks spans adopted from the raw OpenTelemetry context:
	// their lifecycle belongs to whoever started them.
	foreign bool

	mu         sync.Mutex
	ended      bool
	name       string
	typ        SpanType
	model      string
	inputSet   bool
	outputSet  bool
	timestamps Timestamps
	contexts   []RAGChunk
	params     map[string]any
	metrics    map[string]any
}

type spanConfig struct {
	name               string
	typ                SpanType
	parent             *Span
	captureInput       *bool
	captureOutput      *bool
	input              any
	output             any
	model              string
	params             map[string]any
	metrics            map[string]any
	timestamps         Timestamps
	contexts           []RAGChunk
	attributes         []attribute.KeyValue
	otelOpts           []trace.SpanStartOption
	ignoreMissingTrace bool
}

// SpanOption configures a span at start time.
type SpanOption func(*spanConfig)

// WithSpanName sets the span's human label. Defaults to the span type.
func WithSpanName(name string) SpanOption {
	return func(c *spanConfig) { c.name = name }
}

// WithSpanType tags the span with one of the conventional LangWatch span
// types. Defaults to SpanTypeSpan.
func WithSpanType(t SpanType) SpanOption {
	return func(c *spanConfig) { c.typ = t }
}

// WithParent overrides ambient parent resolution with an explicit parent.
func WithParent(parent *Span) SpanOption {
	return func(c *spanConfig) { c.parent = parent }
}

// WithCaptureInput toggles input capture for this span. Defaults to the
// client setting.
func WithCaptureInput(capture bool) SpanOption {
	return func(c *spanConfig) { c.captureInput = &capture }
}

// WithCaptureOutput toggles output capture for this span. Defaults to
// the client setting.
func WithCaptureOutput(capture bool) SpanOption {
	return func(c *spanConfig) { c.captureOutput = &capture }
}

// WithInput records an initial input value at start time.
func WithInput(v any) SpanOption {
	return func(c *spanConfig) { c.input = v }
}

// WithOutput records an initial output value at start time.
func WithOutput(v any) SpanOption {
	return func(c *spanConfig) { c.output = v }
}

// WithModel sets the model identifier at start time.
func WithModel(model string) SpanOption {
	return func(c *spanConfig) { c.model = model }
}

// WithParams seeds the span's params map.
func WithParams(params map[string]any) SpanOption {
	return func(c *spanConfig) { c.params = params }
}

// WithMetrics seeds the span's metrics map.
func WithMetrics(metrics map[string]any) SpanOption {
	return func(c *spanConfig) { c.metrics = metrics }
}

// WithTimestamps overrides the span's initial timestamps.
func WithTimestamps(ts Timestamps) SpanOption {
	return func(c *spanConfig) { c.timestamps = ts }
}

// WithRAGContexts seeds the span's retrieved-document chunks.
func WithRAGContexts(chunks ...RAGChunk) SpanOption {
	return func(c *spanConfig) { c.contexts = chunks }
}

// WithSpanAttributes attaches raw OpenTelemetry attributes at start time.
func WithSpanAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(c *spanConfig) { c.attributes = append(c.attributes, attrs...) }
}

// WithSpanStartOptions passes low-level options (kind, links, start time)
// through to the underlying tracer.
func WithSpanStartOptions(opts ...trace.SpanStartOption) SpanOption {
	return func(c *spanConfig) { c.otelOpts = append(c.otelOpts, opts...) }
}

// WithIgnoreMissingTrace silences the warning emitted when a span is
// started with no trace in flight.
func WithIgnoreMissingTrace() SpanOption {
	return func(c *spanConfig) { c.ignoreMissingTrace = true }
}

func newSpanConfig(opts []SpanOption) *spanConfig {
	cfg := &spanConfig{typ: SpanTypeSpan}
	for _, fn := range opts {
		fn(cfg)
	}
	if cfg.name == "" {
		cfg.name = string(cfg.typ)
	}
	return cfg
}

// StartSpan starts a span under the trace resolved from the ambient
// context at call time. When no trace is in flight, the default client
// starts one (with a warning, unless WithIgnoreMissingTrace is given);
// with no default client either, the span is created through the global
// OpenTelemetry tracer so instrumentation still degrades gracefully.
func StartSpan(ctx context.Context, opts ...SpanOption) (context.Context, *Span) {
	cfg := newSpanConfig(opts)

	if t := CurrentTrace(ctx); t != nil {
		return t.startSpan(ctx, cfg)
	}

	if c := DefaultClient(); c != nil {
		if !cfg.ignoreMissingTrace {
			c.logger.Warn("langwatch: span started with no trace in flight, starting one", "span", cfg.name)
		}
		var t *Trace
		ctx, t = c.StartTrace(ctx, WithSkipRootSpan())
		return t.startSpan(ctx, cfg)
	}

	if !cfg.ignoreMissingTrace {
		slog.Default().Warn("langwatch: span started before Setup, using the global tracer", "span", cfg.name)
	}
	return newDetachedSpan(ctx, cfg)
}

// newDetachedSpan creates a span through the global OpenTelemetry tracer
// when no LangWatch client exists yet.
func newDetachedSpan(ctx context.Context, cfg *spanConfig) (context.Context, *Span) {
	tracer := otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version))
	return buildSpan(ctx, cfg, nil, nil, tracer, slog.Default(), DefaultMaxStringLength, true, true)
}

// StartSpan starts a child span under this trace. The parent is whatever
// the ambient context resolves to at this moment: the explicit WithParent
// option, else the current LangWatch span, else the current OpenTelemetry
// span carried by ctx.
func (t *Trace) StartSpan(ctx context.Context, opts ...SpanOption) (context.Context, *Span) {
	return t.startSpan(ctx, newSpanConfig(opts))
}

func (t *Trace) startSpan(ctx context.Context, cfg *spanConfig) (context.Context, *Span) {
	return buildSpan(ctx, cfg, t.client, t, t.tracer, t.client.logger,
		t.client.maxStringLength, t.client.captureInput, t.client.captureOutput)
}

func buildSpan(
	ctx context.Context,
	cfg *spanConfig,
	client *Client,
	tr *Trace,
	tracer trace.Tracer,
	logger *slog.Logger,
	maxStringLen int,
	captureInput, captureOutput bool,
) (context.Context, *Span) {
	// Parent resolution happens now, not at wrapper-definition time:
	// explicit option, then the ambient LangWatch span, then whatever
	// OpenTelemetry span ctx already carries.
	parentCtx := ctx
	if cfg.parent != nil && cfg.parent.otel != nil {
		parentCtx = trace.ContextWithSpan(ctx, cfg.parent.otel)
	} else if _, ok := SpanFromContext(ctx); !ok {
		if s, ok := ambientSpans.top(); ok && s.otel != nil {
			parentCtx = trace.ContextWithSpan(ctx, s.otel)
		}
	}

	if cfg.captureInput != nil {
		captureInput = *cfg.captureInput
	}
	if cfg.captureOutput != nil {
		captureOutput = *cfg.captureOutput
	}

	startedAt := time.Now()
	startOpts := append([]trace.SpanStartOption{
		trace.WithTimestamp(startedAt),
		trace.WithAttributes(attribute.String(AttrSpanType, string(cfg.typ))),
	}, cfg.otelOpts...)
	if len(cfg.attributes) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(cfg.attributes...))
	}

	otelCtx, otelSpan := tracer.Start(parentCtx, cfg.name, startOpts...)

	s := &Span{
		client:        client,
		trace:         tr,
		otel:          otelSpan,
		logger:        logger,
		maxStringLen:  maxStringLen,
		captureInput:  captureInput,
		captureOutput: captureOutput,
		name:          cfg.name,
		typ:           cfg.typ,
		timestamps:    Timestamps{StartedAt: startedAt.UnixMilli()}.merge(cfg.timestamps),
	}
	otelSpan.SetAttributes(attribute.String(AttrTimestamps, serializeJSON(s.timestamps)))

	if tr != nil {
		tr.adoptTraceID(otelSpan.SpanContext().TraceID())
	}
	if client != nil {
		client.metrics.spanStarted(ctx)
	}

	if cfg.model != "" {
		s.SetModel(cfg.model)
	}
	if len(cfg.params) > 0 {
		s.MergeParams(cfg.params)
	}
	if len(cfg.metrics) > 0 {
		s.MergeMetrics(cfg.metrics)
	}
	if len(cfg.contexts) > 0 {
		s.SetRAGContexts(cfg.contexts...)
	}
	if cfg.input != nil {
		s.RecordInput(cfg.input)
	}
	if cfg.output != nil {
		s.RecordOutput(cfg.output)
	}

	ambientSpans.push(s)
	return ContextWithSpan(otelCtx, s), s
}

// mutable reports whether the span can still be written to. Callers must
// hold s.mu.
func (s *Span) mutable(op string) bool {
	if s.ended {
		s.logger.Warn("langwatch: mutation of an ended span ignored", "op", op, "span", s.name)
		return false
	}
	if s.otel == nil {
		s.logger.Warn("langwatch: span has no underlying span, mutation ignored", "op", op, "span", s.name)
		return false
	}
	return true
}

// SetName renames the span. Last write wins and is propagated to the
// underlying span's display name immediately.
func (s *Span) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("SetName") {
		return
	}
	s.name = name
	s.otel.SetName(name)
}

// SetType retags the span.
func (s *Span) SetType(t SpanType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("SetType") {
		return
	}
	s.typ = t
	s.otel.SetAttributes(attribute.String(AttrSpanType, string(t)))
}

// SetModel records the model identifier. Last write wins.
func (s *Span) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("SetModel") {
		return
	}
	s.model = model
	s.otel.SetAttributes(attribute.String(AttrModel, model))
}

// RecordInput captures the span's input. The first write wins, and only
// when input capture is enabled; later writes are silently kept out so
// auto-instrumentation cannot clobber what the caller set explicitly.
func (s *Span) RecordInput(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("RecordInput") {
		return
	}
	if !s.captureInput || s.inputSet {
		return
	}
	s.inputSet = true
	s.otel.SetAttributes(attribute.String(AttrInput, serializeEnvelope(classifyValue(v), s.maxStringLen)))
}

// RecordInputString captures a plain-text input.
func (s *Span) RecordInputString(v string) { s.RecordInput(v) }

// RecordOutput captures the span's output. First write wins, subject to
// the output capture flag.
func (s *Span) RecordOutput(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("RecordOutput") {
		return
	}
	if !s.captureOutput || s.outputSet {
		return
	}
	s.outputSet = true
	s.otel.SetAttributes(attribute.String(AttrOutput, serializeEnvelope(classifyValue(v), s.maxStringLen)))
}

// RecordOutputString captures a plain-text output.
func (s *Span) RecordOutputString(v string) { s.RecordOutput(v) }

// RecordError marks the span as errored and records the exception
// message and stack trace. It never raises; a nil error is a no-op.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("RecordError") {
		return
	}
	s.otel.RecordError(err, trace.WithStackTrace(true))
	s.otel.SetStatus(codes.Error, err.Error())
	s.otel.SetAttributes(attribute.String(AttrError, serializeJSON(SpanError{
		Message:    err.Error(),
		Stacktrace: string(debug.Stack()),
		HasError:   true,
	})))
}

// SetTimestamps merges the set fields of ts into the span's timestamps.
// Previously set fields that ts leaves empty are preserved.
func (s *Span) SetTimestamps(ts Timestamps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("SetTimestamps") {
		return
	}
	s.timestamps = s.timestamps.merge(ts)
	s.otel.SetAttributes(attribute.String(AttrTimestamps, serializeJSON(s.timestamps)))
}

// RecordFirstToken stamps FirstTokenAt with the current time, once.
// Streaming instrumentation calls this when the first chunk arrives.
func (s *Span) RecordFirstToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("RecordFirstToken") {
		return
	}
	if s.timestamps.FirstTokenAt != nil {
		return
	}
	s.timestamps.FirstTokenAt = millisPtr(time.Now())
	s.otel.SetAttributes(attribute.String(AttrTimestamps, serializeJSON(s.timestamps)))
}

// SetRAGContexts records the ordered list of retrieved chunks for this
// span, independently of its input and output.
func (s *Span) SetRAGContexts(chunks ...RAGChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("SetRAGContexts") {
		return
	}
	s.contexts = chunks
	s.otel.SetAttributes(attribute.String(AttrContexts, serializeJSON(s.contexts)))
}

// SetRAG tags the span as a RAG operation with the given query input and
// retrieved chunks.
func (s *Span) SetRAG(input any, chunks ...RAGChunk) {
	s.SetType(SpanTypeRAG)
	s.SetRAGContexts(chunks...)
	if input != nil {
		s.RecordInput(input)
	}
}

// MergeParams shallow-merges params into the span's params map: new keys
// are added, existing keys overwritten, absent keys preserved.
func (s *Span) MergeParams(params map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("MergeParams") {
		return
	}
	s.params = mergeMap(s.params, params)
	s.otel.SetAttributes(attribute.String(AttrParams, serializeJSON(s.params)))
}

// MergeMetrics shallow-merges metrics into the span's metrics map.
func (s *Span) MergeMetrics(metrics map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("MergeMetrics") {
		return
	}
	s.metrics = mergeMap(s.metrics, metrics)
	s.otel.SetAttributes(attribute.String(AttrMetrics, serializeJSON(s.metrics)))
}

// AddEvent forwards an event to the underlying span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("AddEvent") {
		return
	}
	s.otel.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes forwards raw attributes to the underlying span.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable("SetAttributes") {
		return
	}
	s.otel.SetAttributes(attrs...)
}

// AddEvaluation attaches a structured evaluation result to this span as
// a dedicated evaluation child span.
func (s *Span) AddEvaluation(ctx context.Context, ev Evaluation) {
	s.mu.Lock()
	if !s.mutable("AddEvaluation") {
		s.mu.Unlock()
		return
	}
	tracer := s.tracer()
	parent := s.otel
	s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := time.Now()
	if ev.Timestamps.StartedAt == 0 {
		ev.Timestamps.StartedAt = now.UnixMilli()
	}
	if ev.Timestamps.FinishedAt == nil {
		ev.Timestamps.FinishedAt = millisPtr(now)
	}
	if ev.Status == "" {
		ev.Status = EvaluationStatusProcessed
		if ev.Error != nil {
			ev.Status = EvaluationStatusError
		}
	}

	evalCtx := trace.ContextWithSpan(ctx, parent)
	_, child := tracer.Start(evalCtx, ev.Name,
		trace.WithTimestamp(time.UnixMilli(ev.Timestamps.StartedAt)),
		trace.WithAttributes(
			attribute.String(AttrSpanType, string(SpanTypeEvaluation)),
			attribute.String(AttrEvaluationID, ev.ID),
			attribute.String(AttrEvaluationName, ev.Name),
			attribute.String(AttrTimestamps, serializeJSON(ev.Timestamps)),
		),
	)
	child.SetAttributes(attribute.String(AttrOutput, serializeEnvelope(classifyValue(ev), s.maxStringLen)))
	if ev.Error != nil {
		child.RecordError(ev.Error)
		child.SetStatus(codes.Error, ev.Error.Error())
	}
	child.End(trace.WithTimestamp(time.UnixMilli(*ev.Timestamps.FinishedAt)))
}

// Evaluate runs a hosted evaluator against this span's data and attaches
// the verdict as an evaluation child span. Unlike the telemetry paths,
// this is a user-invoked network call, so failures are returned.
func (s *Span) Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("langwatch: span has no client, cannot evaluate")
	}
	var traceID string
	if sc := s.SpanContext(); sc.TraceID().IsValid() {
		traceID = sc.TraceID().String()
	}
	result, err := s.client.rest.evaluate(ctx, req, traceID)
	if err != nil {
		return nil, err
	}
	s.AddEvaluation(ctx, Evaluation{
		Name:        req.Name,
		Type:        req.Slug,
		IsGuardrail: req.AsGuardrail,
		Status:      result.Status,
		Passed:      result.Passed,
		Score:       result.Score,
		Label:       result.Label,
		Details:     result.Details,
		Cost:        result.Cost,
	})
	return result, nil
}

// End finishes the span: it stamps FinishedAt, ends the underlying span,
// and removes the span from the ambient fallback stack. End is
// idempotent — any combination of deferred, explicit, and concurrent
// calls results in exactly one underlying end and one ambient pop.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.otel != nil && !s.foreign {
		if s.timestamps.FinishedAt == nil {
			s.timestamps.FinishedAt = millisPtr(time.Now())
		}
		s.otel.SetAttributes(attribute.String(AttrTimestamps, serializeJSON(s.timestamps)))
		s.otel.End(trace.WithTimestamp(time.UnixMilli(*s.timestamps.FinishedAt)))
	}
	client := s.client
	s.mu.Unlock()

	ambientSpans.remove(s)
	if client != nil {
		client.metrics.spanEnded(context.Background())
	}
}

// Ended reports whether End has run.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Name returns the span's current label.
func (s *Span) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Type returns the span's current type tag.
func (s *Span) Type() SpanType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typ
}

// Trace returns the owning trace, or nil for adopted spans.
func (s *Span) Trace() *Trace { return s.trace }

// SpanContext exposes the underlying span's identity (trace ID, span ID).
func (s *Span) SpanContext() trace.SpanContext {
	if s.otel == nil {
		return trace.SpanContext{}
	}
	return s.otel.SpanContext()
}

func (s *Span) tracer() trace.Tracer {
	if s.trace != nil {
		return s.trace.tracer
	}
	return otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(Version))
}

// WithSpan runs fn inside a fresh span resolved from the ambient context
// at call time. fn's error is recorded on the span and returned
// unmodified; the span always ends exactly once, panics included.
func WithSpan(ctx context.Context, name string, fn func(context.Context) error, opts ...SpanOption) error {
	opts = append([]SpanOption{WithSpanName(name)}, opts...)
	ctx, span := StartSpan(ctx, opts...)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// WithSpanValue is WithSpan for functions that produce a value; the
// value is captured as the span's output when capture is enabled.
func WithSpanValue[T any](ctx context.Context, name string, fn func(context.Context) (T, error), opts ...SpanOption) (T, error) {
	opts = append([]SpanOption{WithSpanName(name)}, opts...)
	ctx, span := StartSpan(ctx, opts...)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		return v, err
	}
	span.RecordOutput(v)
	return v, nil
}

// CaptureSeq instruments a lazy sequence: FirstTokenAt is stamped when
// the first element is yielded, elements are buffered as they flow
// through, and once the source is exhausted the buffer becomes the
// span's output — joined into one string when every element is a string,
// kept as a list otherwise. The span ends when iteration stops, whether
// the consumer drained the sequence or abandoned it; an abandoned
// sequence records no output.
func CaptureSeq[T any](span *Span, src iter.Seq[T]) iter.Seq[T] {
	span.SetAttributes(attribute.Bool(AttrStreaming, true))
	return func(yield func(T) bool) {
		defer span.End()
		var buf []T
		exhausted := true
		for v := range src {
			if len(buf) == 0 {
				span.RecordFirstToken()
			}
			buf = append(buf, v)
			if !yield(v) {
				exhausted = false
				break
			}
		}
		if exhausted {
			recordSeqOutput(span, buf)
		}
	}
}

func recordSeqOutput[T any](span *Span, buf []T) {
	if len(buf) == 0 {
		return
	}
	parts := make([]string, 0, len(buf))
	allStrings := true
	for _, v := range buf {
		s, ok := any(v).(string)
		if !ok {
			allStrings = false
			break
		}
		parts = append(parts, s)
	}
	if allStrings {
		span.RecordOutput(strings.Join(parts, ""))
		return
	}
	items := make([]any, 0, len(buf))
	for _, v := range buf {
		items = append(items, v)
	}
	span.RecordOutput(items)
}
