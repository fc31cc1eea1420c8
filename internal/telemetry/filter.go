package telemetry

import (
	"context"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// FilterProcessor drops spans whose names match an exclusion rule before
// they reach the wrapped processor. A rule is an exact span name, or a
// prefix followed by "*".
type FilterProcessor struct {
	next     sdktrace.SpanProcessor
	exact    map[string]struct{}
	prefixes []string
}

// NewFilterProcessor wraps next with the given exclusion rules.
func NewFilterProcessor(next sdktrace.SpanProcessor, rules []string) *FilterProcessor {
	fp := &FilterProcessor{
		next:  next,
		exact: make(map[string]struct{}, len(rules)),
	}
	for _, rule := range rules {
		if prefix, ok := strings.CutSuffix(rule, "*"); ok {
			fp.prefixes = append(fp.prefixes, prefix)
			continue
		}
		fp.exact[rule] = struct{}{}
	}
	return fp
}

// Excluded reports whether a span name matches an exclusion rule.
func (fp *FilterProcessor) Excluded(name string) bool {
	if _, ok := fp.exact[name]; ok {
		return true
	}
	for _, prefix := range fp.prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// OnStart implements sdktrace.SpanProcessor.
func (fp *FilterProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	fp.next.OnStart(parent, s)
}

// OnEnd implements sdktrace.SpanProcessor, swallowing excluded spans.
func (fp *FilterProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if fp.Excluded(s.Name()) {
		return
	}
	fp.next.OnEnd(s)
}

// Shutdown implements sdktrace.SpanProcessor.
func (fp *FilterProcessor) Shutdown(ctx context.Context) error {
	return fp.next.Shutdown(ctx)
}

// ForceFlush implements sdktrace.SpanProcessor.
func (fp *FilterProcessor) ForceFlush(ctx context.Context) error {
	return fp.next.ForceFlush(ctx)
}
