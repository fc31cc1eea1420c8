package langwatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRESTClient(t *testing.T, handler http.HandlerFunc) *restClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRESTClient(server.URL, "test-key", logger, server.Client())
}

func TestRESTRequestHeaders(t *testing.T) {
	var gotContentType, gotToken, gotRequestID string
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("X-Auth-Token")
		gotRequestID = r.Header.Get("X-Request-Id")
		json.NewEncoder(w).Encode(map[string]string{"path": "/share/x"})
	})

	_, err := rc.shareTrace(context.Background(), "trace-1")
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "test-key", gotToken)
	assert.NotEmpty(t, gotRequestID)
}

func TestEvaluateSendsTraceLinkedBody(t *testing.T) {
	var gotPath string
	var gotBody evaluateBody
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"status": "processed",
			"passed": true,
			"score":  0.9,
		})
	})

	result, err := rc.evaluate(context.Background(), EvaluationRequest{
		Slug:        "faithfulness",
		Name:        "Faithfulness",
		Input:       "question",
		Output:      "answer",
		Settings:    map[string]any{"threshold": 0.5},
		AsGuardrail: true,
	}, "trace-1")
	require.NoError(t, err)

	assert.Equal(t, "/api/evaluations/faithfulness/evaluate", gotPath)
	assert.Equal(t, "trace-1", gotBody.TraceID)
	assert.Equal(t, "Faithfulness", gotBody.Name)
	assert.Equal(t, "question", gotBody.Data.Input)
	assert.Equal(t, "answer", gotBody.Data.Output)
	assert.True(t, gotBody.AsGuardrail)

	assert.Equal(t, EvaluationStatusProcessed, result.Status)
	require.NotNil(t, result.Passed)
	assert.True(t, *result.Passed)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.9, *result.Score, 1e-9)
}

func TestEvaluateRequiresSlug(t *testing.T) {
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := rc.evaluate(context.Background(), EvaluationRequest{Name: "x"}, "")
	assert.Error(t, err)
}

func TestErrorResponseStringShape(t *testing.T) {
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": "invalid api key"}`)
	})

	_, err := rc.shareTrace(context.Background(), "trace-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsNotFound(err))
}

func TestErrorResponseStructuredShape(t *testing.T) {
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error": {"code": "trace_not_found", "message": "no such trace"}}`)
	})

	_, err := rc.shareTrace(context.Background(), "trace-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "trace_not_found", apiErr.Code)
	assert.Equal(t, "no such trace", apiErr.Message)
	assert.True(t, IsNotFound(err))
}

func TestErrorResponseNonJSONBody(t *testing.T) {
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "slow down")
	})

	_, err := rc.shareTrace(context.Background(), "trace-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "slow down", apiErr.Message)
	assert.True(t, IsRateLimited(err))
}

func TestNoContentResponse(t *testing.T) {
	rc := newTestRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, rc.unshareTrace(context.Background(), "trace-1"))
}

func TestRetryOnServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"path": "/share/x"})
	}))
	t.Cleanup(server.Close)

	// nil http.Client selects the retrying default.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rc := newRESTClient(server.URL, "test-key", logger, nil)

	url, err := rc.shareTrace(context.Background(), "trace-1")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/share/x", url)
	assert.Equal(t, 2, calls)
}
