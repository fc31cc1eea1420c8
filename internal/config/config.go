// Package config loads SDK configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEndpoint is the hosted LangWatch backend.
const DefaultEndpoint = "https://app.langwatch.ai"

// Config holds all SDK configuration.
type Config struct {
	// APIKey authenticates with the LangWatch backend. Required, but
	// validated by Setup after explicit options are applied.
	APIKey string

	// Endpoint is the base URL of the LangWatch backend.
	Endpoint string

	// ServiceName is reported in the exporter's resource attributes.
	ServiceName string

	// MaxStringLength caps every captured string in span payloads.
	MaxStringLength int

	// BatchTimeout bounds export batching latency. Zero keeps the
	// OpenTelemetry default.
	BatchTimeout time.Duration

	// ExcludedSpanNames are exporter exclusion rules, comma-separated
	// in the environment.
	ExcludedSpanNames []string

	// CaptureInput / CaptureOutput are the process-wide defaults for
	// span payload capture.
	CaptureInput  bool
	CaptureOutput bool

	// EnableMetrics turns on SDK self-instrumentation metrics export.
	EnableMetrics bool

	// LogLevel for SDK logging: debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		APIKey:            envStr("LANGWATCH_API_KEY", ""),
		Endpoint:          envStr("LANGWATCH_ENDPOINT", DefaultEndpoint),
		ServiceName:       envStr("LANGWATCH_SERVICE_NAME", "langwatch-go"),
		MaxStringLength:   envInt("LANGWATCH_MAX_STRING_LENGTH", 5000),
		BatchTimeout:      envDuration("LANGWATCH_BATCH_TIMEOUT", 0),
		ExcludedSpanNames: envList("LANGWATCH_EXCLUDED_SPAN_NAMES"),
		CaptureInput:      envBool("LANGWATCH_CAPTURE_INPUT", true),
		CaptureOutput:     envBool("LANGWATCH_CAPTURE_OUTPUT", true),
		EnableMetrics:     envBool("LANGWATCH_ENABLE_METRICS", false),
		LogLevel:          envStr("LANGWATCH_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable. The API key is
// deliberately not checked here — explicit setup options may still
// provide it.
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: LANGWATCH_ENDPOINT %q is not a valid http(s) URL", c.Endpoint)
	}
	if c.MaxStringLength <= 0 {
		return fmt.Errorf("config: LANGWATCH_MAX_STRING_LENGTH must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
