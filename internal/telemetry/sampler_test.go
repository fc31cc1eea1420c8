package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSwitchableSamplerDelegatesWhenEnabled(t *testing.T) {
	s := NewSwitchableSampler(sdktrace.AlwaysSample())

	result := s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		Name:          "work",
	})
	assert.Equal(t, sdktrace.RecordAndSample, result.Decision)
	assert.False(t, s.Disabled())
}

func TestSwitchableSamplerDropsWhenDisabled(t *testing.T) {
	s := NewSwitchableSampler(sdktrace.AlwaysSample())
	s.SetDisabled(true)

	result := s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		Name:          "work",
	})
	assert.Equal(t, sdktrace.Drop, result.Decision)
	assert.True(t, s.Disabled())

	s.SetDisabled(false)
	result = s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		Name:          "work",
	})
	assert.Equal(t, sdktrace.RecordAndSample, result.Decision)
}

func TestSwitchableSamplerStopsExport(t *testing.T) {
	s := NewSwitchableSampler(sdktrace.ParentBased(sdktrace.AlwaysSample()))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(s),
		sdktrace.WithSpanProcessor(sr),
	)
	tracer := tp.Tracer("test")

	_, before := tracer.Start(context.Background(), "before")
	before.End()

	s.SetDisabled(true)
	_, during := tracer.Start(context.Background(), "during")
	during.End()

	s.SetDisabled(false)
	_, after := tracer.Start(context.Background(), "after")
	after.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	names := make([]string, 0, len(sr.Ended()))
	for _, span := range sr.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"before", "after"}, names)
}

func TestSwitchableSamplerDescription(t *testing.T) {
	s := NewSwitchableSampler(sdktrace.AlwaysSample())
	assert.Contains(t, s.Description(), "AlwaysOnSampler")
}
