package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRejectsInvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "not-a-url", "https://"} {
		_, _, _, err := Setup(context.Background(), Options{
			Endpoint:    endpoint,
			ServiceName: "test",
		})
		assert.Error(t, err, "endpoint %q", endpoint)
	}
}

func TestSetupBuildsPipeline(t *testing.T) {
	tp, sampler, shutdown, err := Setup(context.Background(), Options{
		Endpoint:          "https://langwatch.test",
		APIKey:            "sk-test",
		ServiceName:       "test",
		Version:           "0.0.1",
		ExcludedSpanNames: []string{"healthcheck"},
	})
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, sampler)
	require.NotNil(t, shutdown)
	assert.False(t, sampler.Disabled())

	// No spans were recorded, so shutdown needs no network.
	assert.NoError(t, shutdown(context.Background()))
}
