package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LANGWATCH_API_KEY",
		"LANGWATCH_ENDPOINT",
		"LANGWATCH_SERVICE_NAME",
		"LANGWATCH_MAX_STRING_LENGTH",
		"LANGWATCH_BATCH_TIMEOUT",
		"LANGWATCH_EXCLUDED_SPAN_NAMES",
		"LANGWATCH_CAPTURE_INPUT",
		"LANGWATCH_CAPTURE_OUTPUT",
		"LANGWATCH_ENABLE_METRICS",
		"LANGWATCH_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "langwatch-go", cfg.ServiceName)
	assert.Equal(t, 5000, cfg.MaxStringLength)
	assert.Zero(t, cfg.BatchTimeout)
	assert.Nil(t, cfg.ExcludedSpanNames)
	assert.True(t, cfg.CaptureInput)
	assert.True(t, cfg.CaptureOutput)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LANGWATCH_API_KEY", "sk-test")
	t.Setenv("LANGWATCH_ENDPOINT", "https://langwatch.example.com")
	t.Setenv("LANGWATCH_SERVICE_NAME", "checkout")
	t.Setenv("LANGWATCH_MAX_STRING_LENGTH", "256")
	t.Setenv("LANGWATCH_BATCH_TIMEOUT", "2s")
	t.Setenv("LANGWATCH_EXCLUDED_SPAN_NAMES", "healthcheck, internal.*,")
	t.Setenv("LANGWATCH_CAPTURE_INPUT", "false")
	t.Setenv("LANGWATCH_ENABLE_METRICS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "https://langwatch.example.com", cfg.Endpoint)
	assert.Equal(t, "checkout", cfg.ServiceName)
	assert.Equal(t, 256, cfg.MaxStringLength)
	assert.Equal(t, 2*time.Second, cfg.BatchTimeout)
	assert.Equal(t, []string{"healthcheck", "internal.*"}, cfg.ExcludedSpanNames)
	assert.False(t, cfg.CaptureInput)
	assert.True(t, cfg.CaptureOutput)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LANGWATCH_MAX_STRING_LENGTH", "not-a-number")
	t.Setenv("LANGWATCH_BATCH_TIMEOUT", "soon")
	t.Setenv("LANGWATCH_CAPTURE_INPUT", "yep")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.MaxStringLength)
	assert.Zero(t, cfg.BatchTimeout)
	assert.True(t, cfg.CaptureInput)
}

func TestValidateRejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "app.langwatch.ai", "ftp://x", "https://"} {
		cfg := Config{Endpoint: endpoint, MaxStringLength: 5000}
		assert.Error(t, cfg.Validate(), "endpoint %q", endpoint)
	}
}

func TestValidateRejectsNonPositiveMaxStringLength(t *testing.T) {
	cfg := Config{Endpoint: DefaultEndpoint, MaxStringLength: 0}
	assert.Error(t, cfg.Validate())
}

func TestValidateAllowsMissingAPIKey(t *testing.T) {
	cfg := Config{Endpoint: DefaultEndpoint, MaxStringLength: 5000}
	assert.NoError(t, cfg.Validate())
}
