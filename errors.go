package langwatch

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned by Setup when no API key is configured.
// Setup is the only place the SDK fails hard: silent misconfiguration
// would otherwise mean silent telemetry loss.
var ErrMissingAPIKey = errors.New("langwatch: API key is required (set LANGWATCH_API_KEY or use WithAPIKey)")

// ErrInvalidTracerProvider is returned by Setup when an explicitly
// supplied tracer provider is unusable.
var ErrInvalidTracerProvider = errors.New("langwatch: supplied tracer provider is invalid")

// APIError represents an error response from the LangWatch API with the
// HTTP status code and the server's error message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("langwatch: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
