package telemetry

import (
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// SwitchableSampler delegates sampling decisions to an inner sampler
// until it is disabled, at which point every span in the process is
// dropped. Disabling export is process-wide: the sampler is shared by
// the whole tracer provider, not scoped to one trace.
type SwitchableSampler struct {
	disabled atomic.Bool
	delegate sdktrace.Sampler
}

// NewSwitchableSampler wraps delegate in a toggle, initially enabled.
func NewSwitchableSampler(delegate sdktrace.Sampler) *SwitchableSampler {
	return &SwitchableSampler{delegate: delegate}
}

// SetDisabled toggles span export for the whole provider.
func (s *SwitchableSampler) SetDisabled(disabled bool) {
	s.disabled.Store(disabled)
}

// Disabled reports the current toggle state.
func (s *SwitchableSampler) Disabled() bool {
	return s.disabled.Load()
}

// ShouldSample implements sdktrace.Sampler.
func (s *SwitchableSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if s.disabled.Load() {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.delegate.ShouldSample(p)
}

// Description implements sdktrace.Sampler.
func (s *SwitchableSampler) Description() string {
	return "SwitchableSampler{" + s.delegate.Description() + "}"
}
