package langwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// restClient is the thin HTTP collaborator behind the public surface's
// out-of-pipeline calls: trace sharing and hosted evaluations. Span data
// itself never flows through here — that is the exporter's job.
type restClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func newRESTClient(baseURL, apiKey string, logger *slog.Logger, httpClient *http.Client) *restClient {
	if httpClient == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 3
		rc.RetryWaitMin = 1 * time.Second
		rc.RetryWaitMax = 10 * time.Second
		rc.HTTPClient.Timeout = 30 * time.Second
		rc.Logger = nil
		httpClient = rc.StandardClient()
	}
	return &restClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpClient,
		logger:  logger,
	}
}

// shareTraceResponse is the wire format of POST /api/trace/{id}/share.
type shareTraceResponse struct {
	Path string `json:"path"`
}

// shareTrace publishes a trace and returns its public URL.
func (rc *restClient) shareTrace(ctx context.Context, traceID string) (string, error) {
	var resp shareTraceResponse
	if err := rc.post(ctx, "/api/trace/"+traceID+"/share", nil, &resp); err != nil {
		return "", err
	}
	return rc.baseURL + resp.Path, nil
}

// unshareTrace revokes a trace's public URL.
func (rc *restClient) unshareTrace(ctx context.Context, traceID string) error {
	return rc.post(ctx, "/api/trace/"+traceID+"/unshare", nil, nil)
}

// evaluateBody is the wire format of POST /api/evaluations/{slug}/evaluate.
type evaluateBody struct {
	Name        string         `json:"name,omitempty"`
	Data        evaluateData   `json:"data"`
	Settings    map[string]any `json:"settings,omitempty"`
	AsGuardrail bool           `json:"as_guardrail"`
	TraceID     string         `json:"trace_id,omitempty"`
}

type evaluateData struct {
	Input          string     `json:"input,omitempty"`
	Output         string     `json:"output,omitempty"`
	Contexts       []RAGChunk `json:"contexts,omitempty"`
	ExpectedOutput string     `json:"expected_output,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// evaluate runs a hosted evaluator against the given data. traceID links
// the evaluation to the trace being annotated and may be empty.
func (rc *restClient) evaluate(ctx context.Context, req EvaluationRequest, traceID string) (*EvaluationResult, error) {
	if req.Slug == "" {
		return nil, fmt.Errorf("langwatch: evaluation slug is required")
	}
	body := evaluateBody{
		TraceID: traceID,
		Name:    req.Name,
		Data: evaluateData{
			Input:          req.Input,
			Output:         req.Output,
			Contexts:       req.Contexts,
			ExpectedOutput: req.ExpectedOutput,
			ConversationID: req.ConversationID,
		},
		Settings:    req.Settings,
		AsGuardrail: req.AsGuardrail,
	}
	var result EvaluationResult
	if err := rc.post(ctx, "/api/evaluations/"+req.Slug+"/evaluate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (rc *restClient) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("langwatch: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("langwatch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", rc.apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := rc.client.Do(req)
	if err != nil {
		return fmt.Errorf("langwatch: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("langwatch: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("langwatch: decode response: %w", err)
	}
	return nil
}

// apiErrorEnvelope covers the two error shapes the backend emits:
// {"error": "..."} and {"error": {"code": ..., "message": ...}}.
type apiErrorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

func parseErrorResponse(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Code:       http.StatusText(statusCode),
		Message:    string(body),
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apiErr
	}
	if envelope.Message != "" {
		apiErr.Message = envelope.Message
	}
	if len(envelope.Error) > 0 {
		var msg string
		if json.Unmarshal(envelope.Error, &msg) == nil && msg != "" {
			apiErr.Message = msg
			return apiErr
		}
		var structured struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &structured) == nil && structured.Message != "" {
			apiErr.Code = structured.Code
			apiErr.Message = structured.Message
		}
	}
	return apiErr
}
