package langwatch

import (
	"time"
)

// SpanType categorizes a span for the LangWatch backend. The set below is
// the conventional vocabulary; the wire format accepts any string.
type SpanType string

const (
	SpanTypeSpan       SpanType = "span"
	SpanTypeLLM        SpanType = "llm"
	SpanTypeChain      SpanType = "chain"
	SpanTypeTool       SpanType = "tool"
	SpanTypeAgent      SpanType = "agent"
	SpanTypeRAG        SpanType = "rag"
	SpanTypeGuardrail  SpanType = "guardrail"
	SpanTypeEvaluation SpanType = "evaluation"
	SpanTypeWorkflow   SpanType = "workflow"
	SpanTypeComponent  SpanType = "component"
	SpanTypeModule     SpanType = "module"
	SpanTypeServer     SpanType = "server"
	SpanTypeClient     SpanType = "client"
	SpanTypeProducer   SpanType = "producer"
	SpanTypeConsumer   SpanType = "consumer"
	SpanTypeTask       SpanType = "task"
	SpanTypeUnknown    SpanType = "unknown"
)

// ChatMessage is one turn of an LLM conversation captured as span input
// or output.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// RAGChunk is one retrieved document fragment attached to a RAG span.
type RAGChunk struct {
	DocumentID string `json:"document_id,omitempty"`
	ChunkID    string `json:"chunk_id,omitempty"`
	Content    any    `json:"content"`
}

// SpanInputOutput is the tagged envelope LangWatch uses to serialize span
// inputs and outputs. Type is one of: text, chat_messages, json, list,
// evaluation, guardrail_result, raw.
type SpanInputOutput struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Timestamps are the episodic markers of a span, in millisecond epochs.
// FirstTokenAt is only filled by streaming operations.
type Timestamps struct {
	StartedAt    int64  `json:"started_at,omitempty"`
	FirstTokenAt *int64 `json:"first_token_at,omitempty"`
	FinishedAt   *int64 `json:"finished_at,omitempty"`
}

// merge applies the set fields of other on top of t, leaving fields other
// does not set untouched.
func (t Timestamps) merge(other Timestamps) Timestamps {
	if other.StartedAt != 0 {
		t.StartedAt = other.StartedAt
	}
	if other.FirstTokenAt != nil {
		t.FirstTokenAt = other.FirstTokenAt
	}
	if other.FinishedAt != nil {
		t.FinishedAt = other.FinishedAt
	}
	return t
}

// SpanError is the wire representation of a captured exception.
type SpanError struct {
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
	HasError   bool   `json:"has_error"`
}

// Money is a monetary amount, used for evaluation costs.
type Money struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// EvaluationStatus is the terminal state of an evaluation run.
type EvaluationStatus string

const (
	EvaluationStatusProcessed EvaluationStatus = "processed"
	EvaluationStatusSkipped   EvaluationStatus = "skipped"
	EvaluationStatusError     EvaluationStatus = "error"
)

// Evaluation is a structured evaluation result attached to a span.
// ID is assigned automatically when empty.
type Evaluation struct {
	ID          string           `json:"evaluation_id,omitempty"`
	Name        string           `json:"name"`
	Type        string           `json:"type,omitempty"`
	IsGuardrail bool             `json:"is_guardrail,omitempty"`
	Status      EvaluationStatus `json:"status,omitempty"`
	Passed      *bool            `json:"passed,omitempty"`
	Score       *float64         `json:"score,omitempty"`
	Label       *string          `json:"label,omitempty"`
	Details     *string          `json:"details,omitempty"`
	Cost        *Money           `json:"cost,omitempty"`
	Error       error            `json:"-"`
	Timestamps  Timestamps       `json:"timestamps,omitzero"`
}

// EvaluationRequest asks the LangWatch backend to run a hosted evaluator
// against the given data.
type EvaluationRequest struct {
	Slug           string         `json:"-"`
	Name           string         `json:"name,omitempty"`
	Input          string         `json:"input,omitempty"`
	Output         string         `json:"output,omitempty"`
	ExpectedOutput string         `json:"expected_output,omitempty"`
	Contexts       []RAGChunk     `json:"contexts,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Settings       map[string]any `json:"settings,omitempty"`
	AsGuardrail    bool           `json:"as_guardrail,omitempty"`
}

// EvaluationResult is the backend's verdict for an EvaluationRequest.
type EvaluationResult struct {
	Status  EvaluationStatus `json:"status"`
	Passed  *bool            `json:"passed,omitempty"`
	Score   *float64         `json:"score,omitempty"`
	Label   *string          `json:"label,omitempty"`
	Details *string          `json:"details,omitempty"`
	Cost    *Money           `json:"cost,omitempty"`
}

// GuardrailResult is the envelope payload for guardrail span outputs.
type GuardrailResult struct {
	Status  EvaluationStatus `json:"status"`
	Passed  bool             `json:"passed"`
	Score   *float64         `json:"score,omitempty"`
	Details *string          `json:"details,omitempty"`
}

func millisPtr(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}
