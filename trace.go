package langwatch

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Trace is the grouping unit for one logical request across possibly
// many spans. It owns a tracer handle and (unless skipped) a root span
// representing the trace's overall extent; every span started under it
// — through the returned context or the ambient fallback — shares its
// trace ID.
type Trace struct {
	client *Client
	tracer trace.Tracer

	mu       sync.Mutex
	ended    bool
	root     *Span
	metadata map[string]any
	traceID  trace.TraceID
}

type traceConfig struct {
	name         string
	metadata     map[string]any
	skipRootSpan bool
	rootOpts     []SpanOption
}

// TraceOption configures a trace at start time.
type TraceOption func(*traceConfig)

// WithTraceName sets the trace's (and root span's) label.
func WithTraceName(name string) TraceOption {
	return func(c *traceConfig) { c.name = name }
}

// WithMetadata attaches free-form trace metadata (user id, thread id,
// customer id, labels) to the root span.
func WithMetadata(metadata map[string]any) TraceOption {
	return func(c *traceConfig) { c.metadata = mergeMap(c.metadata, metadata) }
}

// WithSkipRootSpan starts the trace purely as a grouping context,
// without an auto-created root span.
func WithSkipRootSpan() TraceOption {
	return func(c *traceConfig) { c.skipRootSpan = true }
}

// WithRootSpanOptions forwards span options to the auto-created root span.
func WithRootSpanOptions(opts ...SpanOption) TraceOption {
	return func(c *traceConfig) { c.rootOpts = append(c.rootOpts, opts...) }
}

// StartTrace opens a trace: it registers the trace in the ambient
// context (both the returned context and the process-wide fallback) and
// creates its root span. End the returned trace when the logical request
// finishes.
func (c *Client) StartTrace(ctx context.Context, opts ...TraceOption) (context.Context, *Trace) {
	cfg := &traceConfig{name: "trace"}
	for _, fn := range opts {
		fn(cfg)
	}

	t := &Trace{
		client:   c,
		tracer:   c.tracer,
		metadata: mergeMap(nil, cfg.metadata),
	}
	ctx = ContextWithTrace(ctx, t)
	ambientTraces.push(t)

	if !cfg.skipRootSpan {
		rootCfg := newSpanConfig(append([]SpanOption{WithSpanName(cfg.name)}, cfg.rootOpts...))
		// The root span always opens a fresh trace, even when the host
		// already has a span in flight.
		rootCfg.otelOpts = append(rootCfg.otelOpts, trace.WithNewRoot())
		ctx, t.root = t.startSpan(ctx, rootCfg)
		t.root.SetAttributes(
			attribute.String(AttrSDKName, instrumentationName),
			attribute.String(AttrSDKLanguage, sdkLanguage),
			attribute.String(AttrSDKVersion, Version),
		)
		if len(t.metadata) > 0 {
			t.root.SetAttributes(attribute.String(AttrMetadata, serializeJSON(t.metadata)))
		}
	}

	return ctx, t
}

// adoptTraceID records the trace ID assigned by the tracing layer, once.
func (t *Trace) adoptTraceID(id trace.TraceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.traceID.IsValid() && id.IsValid() {
		t.traceID = id
	}
}

// TraceID returns the hex trace ID, or "" when no span has been started
// under the trace yet.
func (t *Trace) TraceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.traceID.IsValid() {
		return ""
	}
	return t.traceID.String()
}

// RootSpan returns the trace's root span, or nil when it was skipped.
func (t *Trace) RootSpan() *Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// rootOrWarn fetches the root span for a forwarding mutator.
func (t *Trace) rootOrWarn(op string) *Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		t.client.logger.Warn("langwatch: mutation of an ended trace ignored", "op", op)
		return nil
	}
	if t.root == nil {
		t.client.logger.Warn("langwatch: trace has no root span, mutation ignored", "op", op)
		return nil
	}
	return t.root
}

// MergeMetadata merges metadata into the trace's metadata map and
// re-serializes it onto the root span. Existing keys are overwritten,
// absent keys preserved.
func (t *Trace) MergeMetadata(metadata map[string]any) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		t.client.logger.Warn("langwatch: mutation of an ended trace ignored", "op", "MergeMetadata")
		return
	}
	t.metadata = mergeMap(t.metadata, metadata)
	root := t.root
	serialized := serializeJSON(t.metadata)
	t.mu.Unlock()

	if root == nil {
		t.client.logger.Warn("langwatch: trace has no root span, metadata kept in memory only")
		return
	}
	root.SetAttributes(attribute.String(AttrMetadata, serialized))
}

// Metadata returns a copy of the trace's metadata map.
func (t *Trace) Metadata() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return mergeMap(nil, t.metadata)
}

// The mutators below forward span-shaped fields to the root span.

// SetName renames the root span.
func (t *Trace) SetName(name string) {
	if root := t.rootOrWarn("SetName"); root != nil {
		root.SetName(name)
	}
}

// SetModel records the model identifier on the root span.
func (t *Trace) SetModel(model string) {
	if root := t.rootOrWarn("SetModel"); root != nil {
		root.SetModel(model)
	}
}

// RecordInput captures the trace's input on the root span.
func (t *Trace) RecordInput(v any) {
	if root := t.rootOrWarn("RecordInput"); root != nil {
		root.RecordInput(v)
	}
}

// RecordOutput captures the trace's output on the root span.
func (t *Trace) RecordOutput(v any) {
	if root := t.rootOrWarn("RecordOutput"); root != nil {
		root.RecordOutput(v)
	}
}

// RecordError marks the root span as errored.
func (t *Trace) RecordError(err error) {
	if err == nil {
		return
	}
	if root := t.rootOrWarn("RecordError"); root != nil {
		root.RecordError(err)
	}
}

// SetTimestamps merges timestamps into the root span.
func (t *Trace) SetTimestamps(ts Timestamps) {
	if root := t.rootOrWarn("SetTimestamps"); root != nil {
		root.SetTimestamps(ts)
	}
}

// MergeParams shallow-merges params into the root span.
func (t *Trace) MergeParams(params map[string]any) {
	if root := t.rootOrWarn("MergeParams"); root != nil {
		root.MergeParams(params)
	}
}

// MergeMetrics shallow-merges metrics into the root span.
func (t *Trace) MergeMetrics(metrics map[string]any) {
	if root := t.rootOrWarn("MergeMetrics"); root != nil {
		root.MergeMetrics(metrics)
	}
}

// AddEvaluation attaches an evaluation result to the root span.
func (t *Trace) AddEvaluation(ctx context.Context, ev Evaluation) {
	if root := t.rootOrWarn("AddEvaluation"); root != nil {
		root.AddEvaluation(ctx, ev)
	}
}

// Evaluate runs a hosted evaluator against the trace's root span.
func (t *Trace) Evaluate(ctx context.Context, req EvaluationRequest) (*EvaluationResult, error) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	if root == nil {
		return nil, fmt.Errorf("langwatch: trace has no root span, cannot evaluate")
	}
	return root.Evaluate(ctx, req)
}

// End closes the trace: the root span ends first, then the trace's
// ambient registration is popped. End is idempotent under the same
// one-shot guard as Span.End.
func (t *Trace) End() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	root := t.root
	t.mu.Unlock()

	if root != nil {
		root.End()
	}
	ambientTraces.remove(t)
}

// Ended reports whether End has run.
func (t *Trace) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// Share publishes the trace on the LangWatch backend and returns its
// public URL. Concurrent calls for the same trace are deduplicated.
func (t *Trace) Share(ctx context.Context) (string, error) {
	id := t.TraceID()
	if id == "" {
		return "", fmt.Errorf("langwatch: trace has no trace ID yet, nothing to share")
	}
	url, err, _ := t.client.shareGroup.Do("share:"+id, func() (any, error) {
		return t.client.rest.shareTrace(ctx, id)
	})
	if err != nil {
		return "", err
	}
	return url.(string), nil
}

// Unshare revokes the trace's public URL.
func (t *Trace) Unshare(ctx context.Context) error {
	id := t.TraceID()
	if id == "" {
		return fmt.Errorf("langwatch: trace has no trace ID yet, nothing to unshare")
	}
	_, err, _ := t.client.shareGroup.Do("unshare:"+id, func() (any, error) {
		return nil, t.client.rest.unshareTrace(ctx, id)
	})
	return err
}

// SetDisableSending toggles span export for the whole process. This is a
// passthrough to the client's shared sampler, not a per-trace filter.
func (t *Trace) SetDisableSending(disabled bool) {
	t.client.DisableSending(disabled)
}

// WithTrace runs fn inside a fresh trace. fn's error is recorded on the
// root span and returned unmodified; the trace always ends exactly once,
// panics included.
func (c *Client) WithTrace(ctx context.Context, name string, fn func(context.Context) error, opts ...TraceOption) error {
	opts = append([]TraceOption{WithTraceName(name)}, opts...)
	ctx, t := c.StartTrace(ctx, opts...)
	defer t.End()
	defer func() {
		if r := recover(); r != nil {
			t.RecordError(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	if err := fn(ctx); err != nil {
		t.RecordError(err)
		return err
	}
	return nil
}
