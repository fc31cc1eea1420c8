package langwatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextSlotWinsOverFallbackStack(t *testing.T) {
	c, _ := newTestClient(t)

	ctxX, trX := c.StartTrace(context.Background(), WithTraceName("x"))
	defer trX.End()
	_, trY := c.StartTrace(context.Background(), WithTraceName("y"))
	defer trY.End()

	// trY is on top of the fallback stack, but ctxX still resolves to X.
	assert.Same(t, trX, CurrentTrace(ctxX))
	assert.Same(t, trY, CurrentTrace(context.Background()))
}

func TestFallbackStackResolvesWithoutContext(t *testing.T) {
	c, _ := newTestClient(t)

	ctx, tr := c.StartTrace(context.Background(), WithTraceName("req"))
	defer tr.End()
	_, span := tr.StartSpan(ctx, WithSpanName("outer"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// A goroutine spawned without context plumbing still finds the
		// in-flight trace and span.
		assert.Same(t, tr, CurrentTrace(context.Background()))
		assert.Same(t, span, CurrentSpan(context.Background()))
	}()
	<-done
	span.End()
}

func TestFallbackStackRemovalByIdentity(t *testing.T) {
	s := &ambientStack[int]{}
	s.push(1)
	s.push(2)
	s.push(3)

	// Out-of-order removal deletes the right entry, not the top.
	assert.True(t, s.remove(2))
	top, ok := s.top()
	require.True(t, ok)
	assert.Equal(t, 3, top)

	// Removing an absent entry degrades to a no-op.
	assert.False(t, s.remove(2))
	assert.Equal(t, 2, s.len())

	s.push(3)
	// Duplicate entries are removed one at a time, latest first.
	assert.True(t, s.remove(3))
	assert.True(t, s.remove(3))
	assert.False(t, s.remove(3))
}

func TestCurrentSpanAdoptsForeignOtelSpan(t *testing.T) {
	c, sr := newTestClient(t)

	// A span started directly through the host's tracer, outside the SDK.
	ctx, otelSpan := c.tracer.Start(context.Background(), "host-span")

	adopted := CurrentSpan(ctx)
	require.NotNil(t, adopted)
	adopted.SetModel("gpt-4")
	adopted.RecordInput("hi")

	// Ending the adopted wrapper must not end the host's span.
	adopted.End()
	assert.Empty(t, sr.Ended())

	otelSpan.End()
	s := endedSpan(t, sr, "host-span")
	model, ok := attrValue(s, AttrModel)
	require.True(t, ok)
	assert.Equal(t, "gpt-4", model.AsString())
}

func TestEnsureTraceReusesInFlightTrace(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, tr := c.StartTrace(context.Background(), WithTraceName("req"))
	defer tr.End()

	_, got := c.EnsureTrace(ctx)
	assert.Same(t, tr, got)
}

func TestEnsureTraceStartsBareTraceWhenMissing(t *testing.T) {
	c, sr := newTestClient(t)

	ctx, tr := c.EnsureTrace(context.Background())
	require.NotNil(t, tr)
	assert.Nil(t, tr.RootSpan(), "auto-started traces carry no root span")

	_, span := tr.StartSpan(ctx, WithSpanName("orphan"))
	span.End()
	tr.End()

	endedSpan(t, sr, "orphan")
}

func TestSpanFromContextIgnoresFallback(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, tr := c.StartTrace(context.Background(), WithTraceName("req"))
	defer tr.End()
	_, span := tr.StartSpan(ctx, WithSpanName("work"))
	defer span.End()

	_, ok := SpanFromContext(context.Background())
	assert.False(t, ok)
	_, ok = TraceFromContext(context.Background())
	assert.False(t, ok)
}
