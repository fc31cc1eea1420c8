package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestFilterProcessorRules(t *testing.T) {
	fp := NewFilterProcessor(tracetest.NewSpanRecorder(), []string{
		"healthcheck",
		"internal.*",
	})

	assert.True(t, fp.Excluded("healthcheck"))
	assert.True(t, fp.Excluded("internal.cleanup"))
	assert.True(t, fp.Excluded("internal."))
	assert.False(t, fp.Excluded("healthcheck-deep"))
	assert.False(t, fp.Excluded("internal"))
	assert.False(t, fp.Excluded("work"))
}

func TestFilterProcessorSwallowsExcludedSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewFilterProcessor(sr, []string{"healthcheck"})),
	)
	tracer := tp.Tracer("test")

	_, kept := tracer.Start(context.Background(), "work")
	kept.End()
	_, dropped := tracer.Start(context.Background(), "healthcheck")
	dropped.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, "work", sr.Ended()[0].Name())
}

func TestFilterProcessorEmptyRulesKeepEverything(t *testing.T) {
	fp := NewFilterProcessor(tracetest.NewSpanRecorder(), nil)
	assert.False(t, fp.Excluded("anything"))
}
