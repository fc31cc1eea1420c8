package langwatch

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Ambient context resolution. The primary mechanism is context.Context:
// StartTrace and StartSpan return derived contexts carrying the current
// trace and span, and the async analogue of propagation is the caller
// passing that context along. Goroutines spawned without context plumbing
// (worker pools, fire-and-forget helpers) fall back to a process-wide
// LIFO stack maintained alongside the context slots.
//
// The fallback stack is a shared resource: entries are pushed on start
// and removed by identity on end, so a missed or out-of-order removal
// never corrupts entries belonging to other flows. Lookups through the
// stack are best-effort — concurrent traces may interleave — which is why
// the context slot always wins when present.

type ctxKey int

const (
	traceCtxKey ctxKey = iota
	spanCtxKey
)

// ambientStack is a mutex-guarded LIFO consulted when a context carries
// no trace/span slot.
type ambientStack[T comparable] struct {
	mu    sync.Mutex
	items []T
}

func (s *ambientStack[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, v)
}

// remove deletes v from the stack wherever it sits. Removal of an entry
// that was already removed (or never pushed) is a no-op; pops must never
// fail, only degrade.
func (s *ambientStack[T]) remove(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i] == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *ambientStack[T]) top() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

func (s *ambientStack[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

var (
	ambientTraces = &ambientStack[*Trace]{}
	ambientSpans  = &ambientStack[*Span]{}
)

// ContextWithTrace returns a context carrying t as the current trace.
func ContextWithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceCtxKey, t)
}

// ContextWithSpan returns a context carrying s as the current span, both
// in the LangWatch slot and the underlying OpenTelemetry slot.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	ctx = context.WithValue(ctx, spanCtxKey, s)
	if s != nil && s.otel != nil {
		ctx = trace.ContextWithSpan(ctx, s.otel)
	}
	return ctx
}

// TraceFromContext returns the trace carried by ctx, if any. It does not
// consult the fallback stack.
func TraceFromContext(ctx context.Context) (*Trace, bool) {
	t, ok := ctx.Value(traceCtxKey).(*Trace)
	return t, ok && t != nil
}

// SpanFromContext returns the span carried by ctx, if any. It does not
// consult the fallback stack.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	s, ok := ctx.Value(spanCtxKey).(*Span)
	return s, ok && s != nil
}

// CurrentTrace resolves the trace the calling code is logically inside:
// the context slot if set, else the top of the fallback stack, else nil.
func CurrentTrace(ctx context.Context) *Trace {
	if t, ok := TraceFromContext(ctx); ok {
		return t
	}
	if t, ok := ambientTraces.top(); ok {
		return t
	}
	return nil
}

// CurrentSpan resolves the span the calling code is logically inside:
// the context slot if set, else the top of the fallback stack, else a
// Span wrapping whatever span the OpenTelemetry API reports as current
// in ctx (possibly a no-op span). It never fabricates a fresh LangWatch
// span.
func CurrentSpan(ctx context.Context) *Span {
	if s, ok := SpanFromContext(ctx); ok {
		return s
	}
	if s, ok := ambientSpans.top(); ok {
		return s
	}
	return wrapOtelSpan(trace.SpanFromContext(ctx))
}

// EnsureTrace resolves the current trace like CurrentTrace, but when no
// trace is in flight it starts a brand-new one and logs a warning, since
// this usually means the caller forgot to open a trace.
func (c *Client) EnsureTrace(ctx context.Context) (context.Context, *Trace) {
	if t := CurrentTrace(ctx); t != nil {
		return ctx, t
	}
	c.logger.Warn("langwatch: no trace in flight, starting an empty one; open a trace around your entrypoint to group spans correctly")
	return c.StartTrace(ctx, WithSkipRootSpan())
}

// wrapOtelSpan adopts a raw OpenTelemetry span the SDK did not create.
// Structured capture flags default to enabled; lifecycle ownership stays
// with whoever started the underlying span, so End here only flips the
// local guard.
func wrapOtelSpan(otelSpan trace.Span) *Span {
	return &Span{
		otel:          otelSpan,
		typ:           SpanTypeSpan,
		captureInput:  true,
		captureOutput: true,
		logger:        slog.Default(),
		maxStringLen:  DefaultMaxStringLength,
		foreign:       true,
	}
}
